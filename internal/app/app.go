// Package app wires together the photometryd HTTP API, the WebSocket event
// hub, and the Prometheus collectors. It owns the daemon's lifecycle and is
// the single source of truth for the current operating state.
package app

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/large-farva/photometry-kit/internal/config"
	"github.com/large-farva/photometry-kit/internal/metrics"
	"github.com/large-farva/photometry-kit/internal/noise"
	"github.com/large-farva/photometry-kit/internal/resolve"
	"github.com/large-farva/photometry-kit/internal/telemetry"
	"github.com/large-farva/photometry-kit/internal/ws"
)

// Daemon states.
const (
	StateBooting   = "BOOTING"
	StateIdle      = "IDLE"
	StateResolving = "RESOLVING"
)

// Lookuper resolves an identifier to its magnitude.
type Lookuper interface {
	Lookup(ctx context.Context, id string) (resolve.Result, error)
}

// Options holds everything the App needs from the caller.
type Options struct {
	Logger   *log.Logger
	Cfg      config.Config
	Bind     string
	Resolver Lookuper           // nil builds one from Cfg
	Metrics  *metrics.Collector // nil registers against a private registry
}

// App is the top-level daemon process.
type App struct {
	log        *log.Logger
	cfg        config.Config
	bind       string
	server     *http.Server
	resolver   Lookuper
	instrument noise.Instrument
	metrics    *metrics.Collector

	startedAt time.Time
	lookups   atomic.Int64

	mu       sync.Mutex
	state    string
	inflight int

	wsHub *ws.Hub
}

// New creates an App in the BOOTING state. Call Run to start serving.
func New(opts Options) *App {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = resolve.FromConfig(opts.Cfg)
	}
	m := opts.Metrics
	if m == nil {
		// A fresh registry cannot hold conflicting collectors.
		m, _ = metrics.New(prometheus.NewRegistry())
	}

	return &App{
		log:        logger,
		cfg:        opts.Cfg,
		bind:       opts.Bind,
		resolver:   resolver,
		instrument: noise.FromConfig(opts.Cfg.Instrument),
		metrics:    m,
		startedAt:  time.Now(),
		state:      StateBooting,
		wsHub:      ws.NewHub(logger.WithPrefix("ws")),
	}
}

// Handler returns the daemon's HTTP routes.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/api/status", a.handleStatus)
	mux.HandleFunc("/api/version", a.handleVersion)
	mux.HandleFunc("/api/config", a.handleConfig)
	mux.HandleFunc("/api/bp-mag", a.handleBPMag)
	mux.HandleFunc("/api/noise", a.handleNoise)
	mux.Handle("/metrics", a.metrics.Handler())
	mux.Handle("/ws", a.wsHub.Handler())
	return mux
}

// Run starts the HTTP server, WebSocket hub and heartbeat ticker. It blocks
// until the context is cancelled or the server returns an error.
func (a *App) Run(ctx context.Context) error {
	bind := a.bind
	if bind == "" && a.cfg.Server.Bind != "" {
		bind = a.cfg.Server.Bind
	}
	if bind == "" {
		bind = config.Default().Server.Bind
	}

	a.server = &http.Server{
		Addr:              bind,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}

	a.log.Info("listening", "url", "http://"+ln.Addr().String())

	go a.wsHub.Run(ctx)
	a.transition(StateIdle)
	go a.heartbeatLoop(ctx)

	go func() {
		<-ctx.Done()
		a.log.Info("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.server.Shutdown(shutdownCtx)
	}()

	return a.server.Serve(ln)
}

// State returns the current operating state.
func (a *App) State() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// transition updates the daemon state and broadcasts the change to all
// connected WebSocket clients.
func (a *App) transition(newState string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transitionLocked(newState)
}

func (a *App) transitionLocked(newState string) {
	old := a.state
	if old == newState {
		return
	}
	a.state = newState
	a.log.Debug("state", "from", old, "to", newState)

	a.wsHub.BroadcastJSON(telemetry.StateTransition{
		Event: telemetry.NewEvent(telemetry.EventState),
		From:  old,
		To:    newState,
	})
}

// beginLookup marks a lookup in flight. The daemon reports RESOLVING while
// at least one lookup is running.
func (a *App) beginLookup() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inflight++
	if a.inflight == 1 {
		a.transitionLocked(StateResolving)
	}
}

func (a *App) endLookup() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inflight--
	if a.inflight == 0 {
		a.transitionLocked(StateIdle)
	}
}

func (a *App) inFlight() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inflight
}

// heartbeatLoop sends a periodic heartbeat event so clients can detect
// connectivity and track uptime without polling.
func (a *App) heartbeatLoop(ctx context.Context) {
	t := time.NewTicker(10 * time.Second)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.wsHub.BroadcastJSON(telemetry.Heartbeat{
				Event:         telemetry.NewEvent(telemetry.EventHeartbeat),
				State:         a.State(),
				UptimeSeconds: int64(time.Since(a.startedAt).Seconds()),
				Lookups:       a.lookups.Load(),
			})
		}
	}
}

// emitLog mirrors a daemon log line to WebSocket clients.
func (a *App) emitLog(level log.Level, msg string) {
	a.wsHub.BroadcastJSON(telemetry.LogLine{
		Event:   telemetry.NewEvent(telemetry.EventLog),
		Level:   level.String(),
		Message: msg,
	})
}
