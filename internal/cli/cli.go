// Package cli holds the start-up and shut-down sequence shared by the
// command line tools.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"blastsum/internal/config"
	"blastsum/internal/logging"
	"blastsum/internal/metrics"
	"blastsum/internal/tracing"
)

// Env is the ambient state of one command run
type Env struct {
	Config  *config.AppConfig
	Logger  zerolog.Logger
	Counter *logging.LevelCounter
	Metrics *metrics.Metrics
	Tracer  *tracing.Tracer

	log     *logging.Logger
	command string
	started time.Time
}

// Setup loads configuration from configPath (empty for the default search
// path), applies overrides, and starts logging, metrics and tracing
func Setup(command, configPath string, overrides map[string]interface{}) (*Env, error) {
	loader := config.NewConfigLoader()
	loader.SetConfigFile(configPath)
	for key, value := range overrides {
		loader.Set(key, value)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	counter := logging.NewLevelCounter()
	logger := logging.InitGlobalLogger(logging.LogLevel(cfg.Logging.Level), cfg.Logging.Format, counter)

	tracer, err := tracing.NewTracer(tracing.ServiceName, cfg.Tracing.Enabled, cfg.Tracing.Output)
	if err != nil {
		return nil, err
	}

	env := &Env{
		Config:  cfg,
		Counter: counter,
		Metrics: metrics.NewMetrics(),
		Tracer:  tracer,
		log:     logger,
		command: command,
		started: time.Now(),
	}
	env.Logger = env.Module(command)
	env.Logger.Debug().
		Str("input", cfg.Input.Dir).
		Str("output", cfg.Output.Dir).
		Str("store", cfg.Store.Driver).
		Msg("Configuration loaded")

	return env, nil
}

// Module returns a logger for one component of the running command
func (e *Env) Module(module string) zerolog.Logger {
	return logging.WithModule(module).With().Str("command", e.command).Logger()
}

// Verbose switches the run to debug logging. Loggers handed out before the
// call keep their level.
func (e *Env) Verbose() {
	_ = e.log.SetLogLevel(logging.DebugLevel)
	e.Logger = e.Module(e.command)
}

// Context returns a context cancelled on SIGINT or SIGTERM
func (e *Env) Context() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Close writes the metrics textfile and flushes spans
func (e *Env) Close() {
	if err := e.Metrics.WriteTextfile(e.Config.Metrics.Textfile); err != nil {
		e.Logger.Error().Err(err).Str("path", e.Config.Metrics.Textfile).Msg("Failed to write metrics")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Tracer.Shutdown(ctx); err != nil {
		e.Logger.Error().Err(err).Msg("Failed to shut down tracer")
	}

	e.Logger.Info().
		Dur("duration", time.Since(e.started)).
		Int64("warnings", e.Counter.Warnings()).
		Int64("errors", e.Counter.Errors()).
		Msg("Finished")
}

// Fail logs err, closes the environment and exits with status 1
func (e *Env) Fail(msg string, err error) {
	e.Logger.Error().Err(err).Msg(msg)
	e.Close()
	os.Exit(1)
}

// Usage prints a usage line followed by the flag defaults to stderr
func Usage(line string, printDefaults func()) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "Usage: %s\n", line)
		printDefaults()
	}
}
