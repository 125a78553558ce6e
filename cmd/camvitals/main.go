package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/camvitals/internal/config"
	"codeberg.org/mutker/camvitals/internal/errors"
	"codeberg.org/mutker/camvitals/internal/face"
	"codeberg.org/mutker/camvitals/internal/history"
	"codeberg.org/mutker/camvitals/internal/logger"
	"codeberg.org/mutker/camvitals/internal/pid"
	"codeberg.org/mutker/camvitals/internal/pipeline"
	"codeberg.org/mutker/camvitals/internal/session"
	"codeberg.org/mutker/camvitals/internal/simulate"
	"codeberg.org/mutker/camvitals/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

var (
	cfg       *config.Config
	store     history.Store
	collector telemetry.Collector
	server    *http.Server
	pidFile   *pid.File
)

func init() {
	var err error
	cfg, err = config.Load(os.Args[1:])
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, logger.IsService())
	logger.Debug().Str("mode", cfg.Mode().String()).Msg("Config loaded")

	pidFile, err = pid.Acquire(os.TempDir())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to acquire PID file")
	}
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	err := run(ctx)
	cleanup()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("camvitals failed")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var err error

	if collector, err = newCollector(); err != nil {
		return err
	}
	if store, err = history.NewService(cfg.History, logger.Default().With("history")); err != nil {
		return err
	}

	src, detector, err := newSource()
	if err != nil {
		return err
	}

	p, err := pipeline.New(cfg.Pipeline, detector,
		pipeline.WithLogger(logger.Default().With("pipeline")),
		pipeline.WithTelemetry(collector),
		pipeline.WithHistory(store),
	)
	if err != nil {
		return err
	}

	logger.Info().Str("session", p.SessionID()).Str("mode", cfg.Mode().String()).Msg("Measuring...")

	report, runErr := p.Run(ctx, src)
	logReport(report)

	// the session is saved even when interrupted
	saveCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if _, err := p.Finish(saveCtx); err != nil {
		logger.Error().Err(err).Msg("failed to save session")
	}

	return runErr
}

func newSource() (pipeline.Source, face.Detector, error) {
	start := time.Now()

	if cfg.Mode() == config.ModeFrames {
		manifest, err := face.LoadManifest(cfg.Manifest)
		if err != nil {
			return nil, nil, err
		}
		src, err := pipeline.NewDirSource(cfg.Frames, cfg.FPS, start)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Int("frames", src.Len()).Str("dir", cfg.Frames).Msg("Reading frames")

		return src, face.ManifestDetector{Manifest: manifest}, nil
	}

	video := simulate.NewVideo(cfg.Simulate.Config, start)

	return video, video.Detector(), nil
}

func newCollector() (telemetry.Collector, error) {
	if !cfg.Telemetry.Enabled {
		return telemetry.Noop(), nil
	}

	reg := prometheus.NewRegistry()
	c, err := telemetry.NewService(cfg.Telemetry, reg)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	server = &http.Server{
		Addr:              cfg.Telemetry.Addr,
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		logger.Info().Str("addr", cfg.Telemetry.Addr).Msg("Serving metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	return c, nil
}

func logReport(r session.Report) {
	if r.TotalReadings < cfg.Pipeline.Session.MinReadings {
		logger.Warn().Int("readings", r.TotalReadings).Msg("Not enough readings for a session report")
		return
	}

	logger.Info().
		Int("heart_rate", r.AverageHeartRate).
		Str("blood_pressure", r.AverageBloodPressure).
		Float64("hrv", r.AverageHRV).
		Int("blood_glucose", r.AverageBloodGlucose).
		Int("confidence", r.Confidence).
		Int("readings", r.TotalReadings).
		Msg("Session report")
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func cleanup() {
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("failed to stop metrics server")
		}
	}
	if collector != nil {
		if err := collector.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close telemetry")
		}
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close history")
		}
	}
	if err := pidFile.Release(); err != nil {
		logger.Error().Err(err).Msg("failed to remove PID file")
	}
	logger.Info().Msg("Exiting...")
}
