package config

import (
	"os"
	"strings"

	"codeberg.org/mutker/envirod/internal/control"
	"codeberg.org/mutker/envirod/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultInterval           = 60
	DefaultLogLevel           = "info"
	DefaultStatePath          = "/data/state/enviro.json"
	DefaultCompensationFactor = 2.25
	DefaultCPUWindow          = 5
	DefaultCPUTempPath        = "/sys/class/thermal/thermal_zone0/temp"
	DefaultI2CBus             = "/dev/i2c-1"
	DefaultBME280Addr         = 0x76
	DefaultLTR559Addr         = 0x23
	DefaultModelID            = "dtmi:cloud:peteinthe:enviroplus;1"
	DefaultTokenTTL           = 3600
	DefaultHistoryDB          = "/var/lib/envirod/history.db"
	DefaultHistoryBatchSize   = 10
	DefaultHistoryTimeout     = 300
	DefaultStatusRate         = 5
	DefaultStatusBurst        = 10

	defaultEnvPrefix  = "ENVIROD"
	defaultConfigName = "envirod"
	defaultConfigDir  = "/etc"

	// Environment variable used by the device provisioning tooling
	legacyCredentialEnv = "IOTHUB_DEVICE_CONNECTION_STRING"
)

type Config struct {
	Interval           int     `mapstructure:"interval"`
	ConnectionString   string  `mapstructure:"connection_string"`
	Endpoint           string  `mapstructure:"endpoint"`
	ModelID            string  `mapstructure:"model_id"`
	TokenTTL           int     `mapstructure:"token_ttl"`
	StatePath          string  `mapstructure:"state_path"`
	CompensationFactor float64 `mapstructure:"compensation_factor"`
	CPUWindow          int     `mapstructure:"cpu_window"`
	CPUTempPath        string  `mapstructure:"cpu_temp_path"`
	CPUSensorKey       string  `mapstructure:"cpu_sensor_key"`
	I2CBus             string  `mapstructure:"i2c_bus"`
	BME280Addr         uint16  `mapstructure:"bme280_addr"`
	LTR559Addr         uint16  `mapstructure:"ltr559_addr"`
	History            bool    `mapstructure:"history"`
	HistoryDB          string  `mapstructure:"history_db"`
	HistoryBatchSize   int     `mapstructure:"history_batch_size"`
	HistoryTimeout     int     `mapstructure:"history_batch_timeout"`
	StatusAddr         string  `mapstructure:"status_addr"`
	StatusRate         float64 `mapstructure:"status_rate"`
	StatusBurst        int     `mapstructure:"status_burst"`
	PIDDir             string  `mapstructure:"pid_dir"`
	Once               bool    `mapstructure:"once"`
	LogLevel           string  `mapstructure:"log_level"`
}

// flagKeys maps command line flags to configuration keys
var flagKeys = map[string]string{
	"interval":    "interval",
	"state-path":  "state_path",
	"endpoint":    "endpoint",
	"history":     "history",
	"history-db":  "history_db",
	"status-addr": "status_addr",
	"pid-dir":     "pid_dir",
	"once":        "once",
	"log-level":   "log_level",
}

// Load reads configuration from defaults, the config file, the environment
// and the given command line arguments, in increasing order of precedence.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{
		configPath: os.Getenv(defaultEnvPrefix + "_CONFIG"),
		envPrefix:  defaultEnvPrefix,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	fs := pflag.NewFlagSet("envirod", pflag.ContinueOnError)
	configFlag := fs.String("config", o.configPath, "Path to config file (TOML)")
	fs.Int("interval", DefaultInterval, "Initial telemetry interval in seconds")
	fs.String("state-path", DefaultStatePath, "Path of the last-reading state file")
	fs.String("endpoint", "", "Override the cloud websocket endpoint")
	fs.Bool("history", false, "Record published readings to the history database")
	fs.String("history-db", DefaultHistoryDB, "Path to the history database")
	fs.String("status-addr", "", "Listen address of the local status server (disabled if empty)")
	fs.String("pid-dir", os.TempDir(), "Directory of the PID file")
	fs.Bool("once", false, "Run a single telemetry cycle and exit")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")

	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("connection_string", o.envPrefix+"_CONNECTION_STRING", legacyCredentialEnv); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v.SetConfigType("toml")
	if *configFlag != "" {
		v.SetConfigFile(*configFlag)
		if err := v.ReadInConfig(); err != nil {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	} else {
		v.SetConfigName(defaultConfigName)
		v.AddConfigPath(defaultConfigDir)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errFactory.Wrap(errors.ErrReadConfig, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("connection_string", "")
	v.SetDefault("endpoint", "")
	v.SetDefault("model_id", DefaultModelID)
	v.SetDefault("token_ttl", DefaultTokenTTL)
	v.SetDefault("state_path", DefaultStatePath)
	v.SetDefault("compensation_factor", DefaultCompensationFactor)
	v.SetDefault("cpu_window", DefaultCPUWindow)
	v.SetDefault("cpu_temp_path", DefaultCPUTempPath)
	v.SetDefault("cpu_sensor_key", "")
	v.SetDefault("i2c_bus", DefaultI2CBus)
	v.SetDefault("bme280_addr", DefaultBME280Addr)
	v.SetDefault("ltr559_addr", DefaultLTR559Addr)
	v.SetDefault("history", false)
	v.SetDefault("history_db", DefaultHistoryDB)
	v.SetDefault("history_batch_size", DefaultHistoryBatchSize)
	v.SetDefault("history_batch_timeout", DefaultHistoryTimeout)
	v.SetDefault("status_addr", "")
	v.SetDefault("status_rate", DefaultStatusRate)
	v.SetDefault("status_burst", DefaultStatusBurst)
	v.SetDefault("pid_dir", os.TempDir())
	v.SetDefault("once", false)
	v.SetDefault("log_level", DefaultLogLevel)
}

// Validate checks the loaded values. A missing connection string is an
// error: the agent must not start without a credential.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 || int64(c.Interval) > control.MaxInterval {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}
	if c.CompensationFactor <= 0 {
		return errFactory.WithData(errors.ErrInvalidFactor, c.CompensationFactor)
	}
	if c.CPUWindow < 1 {
		return errFactory.WithData(errors.ErrInvalidWindow, c.CPUWindow)
	}
	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.StatePath == "" {
		return errFactory.WithMessage(errors.ErrMissingConfig, "state_path must not be empty")
	}
	if c.History && c.HistoryDB == "" {
		return errFactory.WithMessage(errors.ErrMissingConfig, "history_db must not be empty when history is enabled")
	}
	if strings.TrimSpace(c.ConnectionString) == "" {
		return errFactory.New(errors.ErrMissingCredential)
	}

	return nil
}
