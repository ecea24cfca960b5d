// Photometryd serves the photometry kit over HTTP: magnitude lookups and
// noise estimates, with live events on a WebSocket and Prometheus metrics.
//
// Shutdown is handled gracefully on SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/large-farva/photometry-kit/internal/app"
	"github.com/large-farva/photometry-kit/internal/config"
	"github.com/large-farva/photometry-kit/internal/metrics"
	"github.com/large-farva/photometry-kit/internal/output"
	"github.com/large-farva/photometry-kit/internal/resolve"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "/etc/photometry/photometry.toml", "Path to config TOML")
		bind       = pflag.String("bind", "", "HTTP bind address (default: server.bind from config)")
		verbose    = pflag.BoolP("verbose", "v", false, "Debug logging")
	)
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		output.Fatal("config load failed", "path", *configPath, "err", err)
	}

	if err := output.SetupLogging(cfg.Logging.Level, *verbose); err != nil {
		output.Warn("unknown log level, using info", "level", cfg.Logging.Level)
	}
	logger := output.Logger.WithPrefix("photometryd")

	m, err := metrics.New(nil)
	if err != nil {
		logger.Fatal("metrics registration failed", "err", err)
	}

	a := app.New(app.Options{
		Logger:   logger,
		Cfg:      cfg,
		Bind:     *bind,
		Resolver: resolve.FromConfig(cfg),
		Metrics:  m,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("photometryd failed", "err", err)
	}

	// Brief pause so in-flight log writes can flush before exit.
	time.Sleep(50 * time.Millisecond)
}
