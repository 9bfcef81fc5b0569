// Package status serves a small local HTTP surface for inspecting the agent
// and invoking its methods without the cloud.
package status

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"codeberg.org/mutker/envirod/internal/cloud"
	"codeberg.org/mutker/envirod/internal/errors"
	"codeberg.org/mutker/envirod/internal/logger"
	"codeberg.org/mutker/envirod/internal/telemetry"
	"github.com/gin-gonic/gin"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
	maxPayloadBytes   = 64 << 10
	defaultReadings   = 10
	maxReadings       = 1000
)

type Config struct {
	Addr  string
	Rate  float64
	Burst int
}

// Invoker executes a named method.
type Invoker interface {
	Invoke(name string, payload []byte) cloud.MethodResponse
}

// IntervalSource reports the sampling interval in seconds.
type IntervalSource interface {
	Interval() int
}

// LinkState reports whether the cloud link is up.
type LinkState interface {
	Connected() bool
}

// ReadingSource returns recent readings, newest first.
type ReadingSource interface {
	Latest(ctx context.Context, limit int) ([]telemetry.Record, error)
}

type Server struct {
	cfg      Config
	engine   *gin.Engine
	invoker  Invoker
	interval IntervalSource
	link     LinkState
	readings ReadingSource
	log      logger.Logger
}

// NewServer builds the router. readings may be nil, in which case
// /readings is not registered.
func NewServer(cfg Config, invoker Invoker, interval IntervalSource, link LinkState,
	readings ReadingSource, log logger.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:      cfg,
		engine:   gin.New(),
		invoker:  invoker,
		interval: interval,
		link:     link,
		readings: readings,
		log:      log,
	}

	s.engine.Use(gin.Recovery(), RequestLogger(log))
	s.engine.Use(RateLimitMiddleware(NewRateLimiter(cfg.Rate, cfg.Burst), log))
	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.health)
	s.engine.GET("/config", s.config)
	s.engine.POST("/methods/:name", s.invoke)
	if s.readings != nil {
		s.engine.GET("/readings", s.latest)
	}
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr).Msg("Status server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.New().Wrap(errors.ErrInitFailed, err).WithData(s.cfg.Addr)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.New().Wrap(errors.ErrShutdownFailed, err)
	}
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"connected": s.link.Connected(),
	})
}

func (s *Server) config(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"interval": s.interval.Interval(),
	})
}

func (s *Server) invoke(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPayloadBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	name := c.Param("name")
	resp := s.invoker.Invoke(name, payload)

	s.log.Info().
		Str("name", name).
		Int("status", resp.Status).
		Msg("Local method invoked")

	c.JSON(resp.Status, resp.Payload)
}

func (s *Server) latest(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultReadings)))
	if err != nil || limit < 1 || limit > maxReadings {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	readings, err := s.readings.Latest(c.Request.Context(), limit)
	if err != nil {
		s.log.ErrorWithCode(err).Msg("Failed to query readings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if readings == nil {
		readings = []telemetry.Record{}
	}

	c.JSON(http.StatusOK, gin.H{
		"readings": readings,
	})
}
