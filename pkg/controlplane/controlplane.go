// Package controlplane turns a loaded pool file into running pools: it
// builds every runtime pool, seeds registry-backed pools from their
// namespace, starts their watches and the stats endpoint.
package controlplane

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"

	"shardproxy/pkg/conf"
	"shardproxy/pkg/listener"
	"shardproxy/pkg/proxyerr"
	"shardproxy/pkg/registry"
	"shardproxy/pkg/stats"
	"shardproxy/pkg/topology"
)

const DefaultSessionTimeout = 30 * time.Second

// DialFunc opens a coordination session.
type DialFunc func(ctx context.Context, connectString string, timeout time.Duration, logger *slog.Logger) (registry.Coordinator, error)

func dialZK(ctx context.Context, connectString string, timeout time.Duration, logger *slog.Logger) (registry.Coordinator, error) {
	s, err := registry.Dial(ctx, connectString, timeout, logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}

type Options struct {
	Registry       registry.Config
	SessionTimeout time.Duration
	// Stats is nil when no stats endpoint should run.
	Stats  *stats.Config
	Dial   DialFunc
	Logger *slog.Logger
}

// Runtime is the set of running pools and what keeps them current.
type Runtime struct {
	Pools *topology.PoolSet
	Stats *stats.Endpoint

	ordered     []*topology.Pool
	sessions    []registry.Coordinator
	reconcilers []*registry.Reconciler
	watches     []<-chan zk.Event
	jobs        []listener.Job

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// Build transforms every pool of cf. Either all pools are built, seeded and
// watched, or an error is returned and every opened session is closed.
func Build(ctx context.Context, cf *conf.Conf, opts Options) (*Runtime, error) {
	if opts.Dial == nil {
		opts.Dial = dialZK
	}
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = DefaultSessionTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	rt := &Runtime{Pools: topology.NewPoolSet()}
	if err := rt.transform(ctx, cf, opts); err != nil {
		rt.Close()
		return nil, err
	}

	if opts.Stats != nil {
		rt.Stats = stats.NewEndpoint(*opts.Stats, rt.Pools)
		if err := rt.Stats.Start(); err != nil {
			rt.Close()
			return nil, fmt.Errorf("%w: %w", proxyerr.ErrTransform, err)
		}
		for _, r := range rt.reconcilers {
			r.SetStats(rt.Stats)
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	rt.cancel = cancel
	for i, r := range rt.reconcilers {
		rt.wg.Add(1)
		go func(r *registry.Reconciler, watch <-chan zk.Event) {
			defer rt.wg.Done()
			r.Run(runCtx, watch)
		}(r, rt.watches[i])
	}
	for _, p := range rt.ordered {
		p.MarkInitialized()
	}

	opts.Logger.Info("control plane built", "pools", len(rt.ordered), "registry_pools", len(rt.reconcilers))
	return rt, nil
}

func (rt *Runtime) transform(ctx context.Context, cf *conf.Conf, opts Options) error {
	for i, decl := range cf.Pools {
		pool, err := topology.NewPool(i, decl)
		if err != nil {
			return err
		}
		if !rt.Pools.Add(pool) {
			return fmt.Errorf("%w: %w: pool %q", proxyerr.ErrTransform, proxyerr.ErrDuplicatePool, pool.Name)
		}
		rt.ordered = append(rt.ordered, pool)

		if !decl.RegistryBacked() {
			continue
		}

		connect := registry.ConnectString(decl.RegistryServers)
		coord, err := opts.Dial(ctx, connect, opts.SessionTimeout, opts.Logger)
		if err != nil {
			return fmt.Errorf("%w: pool %q: registry %s: %w", proxyerr.ErrTransform, pool.Name, connect, err)
		}
		rt.sessions = append(rt.sessions, coord)

		r := registry.NewReconciler(pool, coord, opts.Registry, opts.Logger)
		watch, err := r.Seed(ctx)
		if err != nil {
			return err
		}
		rt.reconcilers = append(rt.reconcilers, r)
		rt.watches = append(rt.watches, watch)
	}
	return nil
}

// Ordered returns the pools in declaration order.
func (rt *Runtime) Ordered() []*topology.Pool {
	return rt.ordered
}

// OnAdmission starts one listener per pool that hands every admission event
// to handle. The listeners stop on Close.
func (rt *Runtime) OnAdmission(ctx context.Context, handle func(topology.AdmissionEvent) error) {
	for _, p := range rt.ordered {
		l := listener.New("admissions/"+p.Name, p.Admissions(), handle)
		l.Start(ctx)
		rt.jobs = append(rt.jobs, l)
	}
}

// Close stops the watches, closes the sessions and the stats endpoint.
func (rt *Runtime) Close() error {
	var errs []error
	rt.once.Do(func() {
		if rt.cancel != nil {
			rt.cancel()
		}
		rt.wg.Wait()
		for _, j := range rt.jobs {
			j.Stop()
		}
		for _, s := range rt.sessions {
			s.Close()
		}
		if rt.Stats != nil {
			if err := rt.Stats.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
