package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"codeberg.org/mutker/envirod/internal/agent"
	"codeberg.org/mutker/envirod/internal/cloud"
	"codeberg.org/mutker/envirod/internal/compensation"
	"codeberg.org/mutker/envirod/internal/config"
	"codeberg.org/mutker/envirod/internal/control"
	"codeberg.org/mutker/envirod/internal/history"
	"codeberg.org/mutker/envirod/internal/logger"
	"codeberg.org/mutker/envirod/internal/pid"
	"codeberg.org/mutker/envirod/internal/sensor"
	"codeberg.org/mutker/envirod/internal/state"
	"codeberg.org/mutker/envirod/internal/status"
	"codeberg.org/mutker/envirod/internal/telemetry"
)

const startupTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, logger.IsService())
	logger.Debug().Msg("Config loaded")

	if err := pid.Write(cfg.PIDDir); err != nil {
		logger.FatalWithCode(err).Msg("Failed to write pid file")
	}

	code := run(cfg)

	if err := pid.Remove(cfg.PIDDir); err != nil {
		logger.ErrorWithCode(err).Msg("Failed to remove pid file")
	}
	logger.Info().Msg("Exiting...")
	os.Exit(code)
}

func run(cfg *config.Config) int {
	log := logger.Default()

	cred, err := cloud.ParseConnectionString(cfg.ConnectionString)
	if err != nil {
		log.ErrorWithCode(err).Msg("Invalid device connection string")
		return 1
	}

	board, err := sensor.Open(sensor.Config{
		Bus:        cfg.I2CBus,
		BME280Addr: cfg.BME280Addr,
		LTR559Addr: cfg.LTR559Addr,
	})
	if err != nil {
		log.ErrorWithCode(err).Msg("Failed to open sensors")
		return 1
	}
	defer func() {
		if err := board.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to release sensors")
		}
	}()

	thermometer := sensor.NewThermometer(cfg.CPUTempPath, cfg.CPUSensorKey)
	filter, err := compensation.NewFilter(thermometer, cfg.CPUWindow, cfg.CompensationFactor)
	if err != nil {
		log.ErrorWithCode(err).Msg("Failed to seed compensation filter")
		return 1
	}
	log.Debug().Interface("cpu_history", filter.History()).Msg("Compensation filter seeded")

	collector, err := history.NewService(history.Config{
		DBPath:       cfg.HistoryDB,
		BatchSize:    cfg.HistoryBatchSize,
		BatchTimeout: time.Duration(cfg.HistoryTimeout) * time.Second,
		Enabled:      cfg.History,
	}, log.With("history"))
	if err != nil {
		log.ErrorWithCode(err).Msg("Failed to open history")
		return 1
	}
	defer func() {
		if err := collector.Close(); err != nil {
			log.ErrorWithCode(err).Msg("Failed to close history")
		}
	}()

	interval := control.NewState(cfg.Interval)

	client := cloud.NewClient(cred, cloud.Config{
		Endpoint: cfg.Endpoint,
		ModelID:  cfg.ModelID,
		TokenTTL: time.Duration(cfg.TokenTTL) * time.Second,
	}, log.With("cloud"))

	dispatcher := control.NewDispatcher(interval, client, log.With("control"))
	client.SetHandler(dispatcher)

	cycle := telemetry.NewCycle(board, filter, state.NewFileWriter(cfg.StatePath), client, log.With("telemetry")).
		WithRecorder(collector)
	driver := agent.NewDriver(client, cycle, interval, log.With("agent"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	var wg sync.WaitGroup
	if cfg.StatusAddr != "" {
		var readings status.ReadingSource
		if cfg.History {
			readings = collector
		}
		srv := status.NewServer(status.Config{
			Addr:  cfg.StatusAddr,
			Rate:  cfg.StatusRate,
			Burst: cfg.StatusBurst,
		}, dispatcher, interval, client, readings, log.With("status"))

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				log.ErrorWithCode(err).Msg("Status server stopped")
			}
		}()
	}

	connect(ctx, client, log)

	log.Info().
		Int("interval", interval.Interval()).
		Float64("compensation_factor", cfg.CompensationFactor).
		Str("state_path", cfg.StatePath).
		Msg("Agent started")

	exit := 0
	if cfg.Once {
		if err := driver.RunOnce(ctx); err != nil {
			exit = 1
		}
		if err := driver.Close(); err != nil {
			log.ErrorWithCode(err).Msg("Failed to close transport")
			exit = 1
		}
		cancel()
	} else if err := driver.Run(ctx); err != nil {
		log.ErrorWithCode(err).Msg("Failed to close transport")
		exit = 1
	}

	wg.Wait()
	return exit
}

// connect opens the link and fetches the device twin once. Failure is only
// a warning since every cycle reconnects.
func connect(ctx context.Context, client *cloud.Client, log logger.Logger) {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		log.Warn().Err(err).Msg("Initial connect failed, retrying on next cycle")
		return
	}

	twin, err := client.GetTwin(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to get device twin")
		return
	}
	log.Info().RawJSON("twin", twin).Msg("Device twin received")
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
