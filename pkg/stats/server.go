package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shardproxy/pkg/topology"
)

const (
	contentTypeJSON        = "application/json"
	defaultShutdownTimeout = time.Second * 5
)

// server is one incarnation of the stats endpoint. Recreate replaces it
// with a fresh one built from the same Config.
type server struct {
	cfg    Config
	pools  *topology.PoolSet
	logger *slog.Logger

	registry   *prometheus.Registry
	servers    *prometheus.GaugeVec
	backups    *prometheus.GaugeVec
	admissions *prometheus.GaugeVec

	snapshot atomic.Pointer[Snapshot]

	httpServer *http.Server
	ln         net.Listener
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func newServer(cfg Config, pools *topology.PoolSet, logger *slog.Logger) *server {
	s := &server{
		cfg:      cfg,
		pools:    pools,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		servers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shardproxy_pool_servers",
			Help: "Primary servers in the pool.",
		}, []string{"pool"}),
		backups: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shardproxy_pool_backup_servers",
			Help: "Backup servers in the pool.",
		}, []string{"pool"}),
		admissions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shardproxy_pool_admissions",
			Help: "Primary/backup pairs admitted since the pool was built.",
		}, []string{"pool"}),
	}
	s.registry.MustRegister(s.servers, s.backups, s.admissions)
	s.refresh()
	return s
}

// createRouter builds chi router
func (s *server) createRouter() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/pools", s.handlePools)
	r.Get("/pools/{name}", s.handlePool)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	return r
}

func (s *server) start(listen func(network, address string) (net.Listener, error)) error {
	addr := net.JoinHostPort(s.cfg.Addr, strconv.Itoa(s.cfg.Port))
	ln, err := listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("stats listen %s: %w", addr, err)
	}
	s.ln = ln
	s.httpServer = &http.Server{
		Handler:           s.createRouter(),
		ReadHeaderTimeout: time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("stats server error", "error", err)
		}
	}()
	go func() {
		defer s.wg.Done()
		s.aggregate(ctx)
	}()

	s.logger.Info("stats server started", "addr", ln.Addr().String(), "interval", s.cfg.Interval)
	return nil
}

func (s *server) stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	var err error
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("failed to shutdown stats server: %w", shutdownErr)
		}
	}
	s.wg.Wait()
	return err
}

func (s *server) aggregate(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh()
		}
	}
}

// refresh rebuilds the snapshot and the gauges from the pools.
func (s *server) refresh() {
	snap := &Snapshot{
		Source:    s.cfg.Source,
		Timestamp: time.Now().Unix(),
		Pools:     make([]PoolStats, 0, s.pools.Len()),
	}

	s.pools.Range(func(p *topology.Pool) bool {
		ps := PoolStats{
			Name:         p.Name,
			Listen:       p.Listen.PName,
			Hash:         p.Hash.String(),
			Distribution: p.Distribution.String(),
			Servers:      serverStats(p.Servers()),
			Backups:      serverStats(p.Backups()),
			Fingerprints: len(p.Fingerprints()),
			Admissions:   p.AdmissionCount(),
			Version:      p.Version(),
		}
		snap.Pools = append(snap.Pools, ps)

		s.servers.WithLabelValues(p.Name).Set(float64(len(ps.Servers)))
		s.backups.WithLabelValues(p.Name).Set(float64(len(ps.Backups)))
		s.admissions.WithLabelValues(p.Name).Set(float64(ps.Admissions))
		return true
	})

	s.snapshot.Store(snap)
}

func serverStats(servers []*topology.Server) []ServerStats {
	out := make([]ServerStats, 0, len(servers))
	for _, srv := range servers {
		out = append(out, ServerStats{
			Index:   srv.Index,
			Name:    srv.Name,
			Address: srv.PName,
			Weight:  srv.Weight,
		})
	}
	return out
}

func (s *server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("Error encoding response", "error", err)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewOKResponse(s.cfg.Source, time.Now().Unix()))
}

func (s *server) handlePools(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.snapshot.Load())
}

func (s *server) handlePool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	for _, ps := range s.snapshot.Load().Pools {
		if ps.Name == name {
			s.writeJSON(w, http.StatusOK, ps)
			return
		}
	}
	s.writeJSON(w, http.StatusNotFound, NewErrorResponse("pool not found: "+name))
}
