// Package stats serves pool statistics over HTTP: a JSON snapshot of every
// pool and Prometheus gauges.
package stats

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"shardproxy/pkg/topology"
)

const (
	DefaultPort     = 22222
	DefaultAddr     = "0.0.0.0"
	DefaultInterval = 30 * time.Second

	defaultRetryInitial = 100 * time.Millisecond
	defaultRetryMax     = 5 * time.Second
)

var errClosed = errors.New("stats endpoint closed")

type Config struct {
	Port     int
	Addr     string
	Interval time.Duration
	Source   string
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Source == "" {
		c.Source, _ = os.Hostname()
	}
	return c
}

// Endpoint owns the current stats server.
type Endpoint struct {
	cfg    Config
	pools  *topology.PoolSet
	logger *slog.Logger

	listen       func(network, address string) (net.Listener, error)
	retryInitial time.Duration
	retryMax     time.Duration

	mu          sync.Mutex
	current     *server
	closed      bool
	retrying    bool
	cancelRetry context.CancelFunc
	wg          sync.WaitGroup
}

func NewEndpoint(cfg Config, pools *topology.PoolSet) *Endpoint {
	return &Endpoint{
		cfg:    cfg.withDefaults(),
		pools:  pools,
		logger: slog.With("component", "stats"),

		listen:       net.Listen,
		retryInitial: defaultRetryInitial,
		retryMax:     defaultRetryMax,
	}
}

// Start creates the first server and starts listening.
func (e *Endpoint) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errClosed
	}
	if e.current != nil {
		return nil
	}
	return e.create()
}

// Recreate tears the current server down and starts a new one with the same
// port, address, interval, source and pools. When the new server cannot
// bind, the endpoint stays down (Addr returns "") and keeps retrying in the
// background until a bind succeeds or Close is called.
func (e *Endpoint) Recreate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errClosed
	}
	if e.current != nil {
		if err := e.current.stop(); err != nil {
			e.logger.Warn("stats server stop failed", "error", err)
		}
		e.current = nil
	}
	if err := e.create(); err != nil {
		e.logger.Error("stats server down, retrying", "error", err)
		e.startRetry()
		return err
	}
	return nil
}

func (e *Endpoint) create() error {
	srv := newServer(e.cfg, e.pools, e.logger)
	if err := srv.start(e.listen); err != nil {
		return err
	}
	e.current = srv
	return nil
}

// startRetry must be called with e.mu held.
func (e *Endpoint) startRetry() {
	if e.retrying {
		return
	}
	e.retrying = true

	ctx, cancel := context.WithCancel(context.Background())
	e.cancelRetry = cancel
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.retry(ctx)
	}()
}

func (e *Endpoint) retry(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.retryInitial
	b.MaxInterval = e.retryMax
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		select {
		case <-time.After(b.NextBackOff()):
		case <-ctx.Done():
			return
		}

		e.mu.Lock()
		if e.closed || e.current != nil {
			e.retrying = false
			e.mu.Unlock()
			return
		}
		err := e.create()
		if err == nil {
			e.retrying = false
			e.mu.Unlock()
			e.logger.Info("stats server restored", "addr", e.Addr())
			return
		}
		e.mu.Unlock()
		e.logger.Warn("stats server still down", "error", err)
	}
}

func (e *Endpoint) Close() error {
	e.mu.Lock()
	e.closed = true
	if e.cancelRetry != nil {
		e.cancelRetry()
	}
	var err error
	if e.current != nil {
		err = e.current.stop()
		e.current = nil
	}
	e.mu.Unlock()

	e.wg.Wait()
	return err
}

// Addr returns the address the current server listens on, or "".
func (e *Endpoint) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil || e.current.ln == nil {
		return ""
	}
	return e.current.ln.Addr().String()
}

// Handler returns the router of the current server, or nil.
func (e *Endpoint) Handler() http.Handler {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return nil
	}
	return e.current.httpServer.Handler
}
