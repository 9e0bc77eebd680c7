package registry

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/go-zookeeper/zk"

	"shardproxy/pkg/conf"
	"shardproxy/pkg/proxyerr"
	"shardproxy/pkg/topology"
)

const (
	DefaultNamespace = "/nodes"
	DefaultInitPoll  = time.Second
)

// Stats is rebuilt after every admission so that it reports the new servers.
type Stats interface {
	Recreate() error
}

type Config struct {
	Namespace string
	InitPoll  time.Duration

	// Bounds of the exponential backoff used to re-arm a lost watch.
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}
	if c.InitPoll <= 0 {
		c.InitPoll = DefaultInitPoll
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = backoff.DefaultInitialInterval
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = backoff.DefaultMaxInterval
	}
	return c
}

// Reconciler admits newly announced pairs into one pool.
type Reconciler struct {
	pool   *topology.Pool
	coord  Coordinator
	stats  Stats
	cfg    Config
	logger *slog.Logger

	expired <-chan struct{}
}

// NewReconciler binds pool to coord. stats may be nil until the stats
// endpoint exists; see SetStats.
func NewReconciler(pool *topology.Pool, coord Coordinator, cfg Config, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		pool:   pool,
		coord:  coord,
		cfg:    cfg.withDefaults(),
		logger: logger.With("pool", pool.Name),
	}
	if s, ok := coord.(interface{ Expired() <-chan struct{} }); ok {
		r.expired = s.Expired()
	}
	return r
}

func (r *Reconciler) SetStats(stats Stats) { r.stats = stats }

// Seed lists the namespace and admits every pair not yet admitted, in
// listing order. An empty namespace leaves the pool as it is. It returns
// the armed watch for Run.
func (r *Reconciler) Seed(ctx context.Context) (<-chan zk.Event, error) {
	children, watch, err := r.coord.ChildrenW(r.cfg.Namespace)
	if err != nil {
		return nil, fmt.Errorf("%w: pool %q: %w", proxyerr.ErrTransform, r.pool.Name, err)
	}

	primaries, backups, err := r.fetch(ctx, children)
	if err != nil {
		return nil, fmt.Errorf("%w: pool %q: %w", proxyerr.ErrTransform, r.pool.Name, err)
	}

	for i := range primaries {
		if r.pool.Known(primaries[i].PName, backups[i].PName) {
			continue
		}
		fp := topology.PairFingerprint(primaries[i].PName, backups[i].PName)
		r.pool.Admit(primaries[i], backups[i], fp)
	}

	r.logger.Info("registry seeded", "namespace", r.cfg.Namespace, "children", len(children),
		"servers", len(r.pool.Servers()))
	return watch, nil
}

// Reconcile handles one child-change notification. It re-lists the
// namespace, which re-arms the watch, and admits at most one new pair.
// The returned watch is nil when listing failed.
func (r *Reconciler) Reconcile(ctx context.Context) (<-chan zk.Event, bool, error) {
	children, watch, err := r.coord.ChildrenW(r.cfg.Namespace)
	if err != nil {
		return nil, false, fmt.Errorf("%w: pool %q: %w", proxyerr.ErrReconcile, r.pool.Name, err)
	}

	if err := r.waitInitialized(ctx); err != nil {
		return watch, false, err
	}

	primaries, backups, err := r.fetch(ctx, children)
	if err != nil {
		return watch, false, fmt.Errorf("%w: pool %q: %w", proxyerr.ErrReconcile, r.pool.Name, err)
	}

	idx, fp, err := candidate(r.pool, primaries, backups)
	if err != nil {
		return watch, false, fmt.Errorf("%w: pool %q: %w", proxyerr.ErrReconcile, r.pool.Name, err)
	}
	if idx < 0 {
		r.logger.Debug("membership unchanged", "children", len(children))
		return watch, false, nil
	}

	if _, ok := r.pool.Admit(primaries[idx], backups[idx], fp); !ok {
		return watch, false, nil
	}
	if r.stats != nil {
		if err := r.stats.Recreate(); err != nil {
			r.logger.Error("stats recreate failed", "error", err)
		}
	}
	return watch, true, nil
}

// candidate scans the pairs from last to first and returns the first one
// whose fingerprint, in either role order, is not admitted. It returns -1
// when every pair is known.
func candidate(pool *topology.Pool, primaries, backups []conf.ServerDeclaration) (int, topology.Fingerprint, error) {
	if len(primaries) == 0 || len(primaries) != len(backups) {
		return -1, 0, fmt.Errorf("%w: %d primaries, %d backups", proxyerr.ErrMembershipMismatch, len(primaries), len(backups))
	}
	for i := len(primaries) - 1; i >= 0; i-- {
		if !pool.Known(primaries[i].PName, backups[i].PName) {
			return i, topology.PairFingerprint(primaries[i].PName, backups[i].PName), nil
		}
	}
	return -1, 0, nil
}

// fetch reads the descriptor of every child, in name order.
func (r *Reconciler) fetch(ctx context.Context, children []string) (primaries, backups []conf.ServerDeclaration, err error) {
	children = slices.Clone(children)
	slices.Sort(children)

	primaries = make([]conf.ServerDeclaration, 0, len(children))
	backups = make([]conf.ServerDeclaration, 0, len(children))
	for _, child := range children {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		data, err := r.coord.Get(path.Join(r.cfg.Namespace, child))
		if err != nil {
			return nil, nil, err
		}
		d, err := ParseDescriptor(data)
		if err != nil {
			return nil, nil, fmt.Errorf("node %s: %w", child, err)
		}
		p, b := d.Pair()
		primaries = append(primaries, p)
		backups = append(backups, b)
	}
	return primaries, backups, nil
}

func (r *Reconciler) waitInitialized(ctx context.Context) error {
	if r.pool.Initialized() {
		return nil
	}
	ticker := time.NewTicker(r.cfg.InitPoll)
	defer ticker.Stop()
	for !r.pool.Initialized() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Run handles notifications from watch until ctx is cancelled. Errors are
// logged and the loop waits for the next notification; a lost watch is
// re-armed with exponential backoff.
func (r *Reconciler) Run(ctx context.Context, watch <-chan zk.Event) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.BackoffInitial
	b.MaxInterval = r.cfg.BackoffMax
	b.MaxElapsedTime = 0
	b.Reset()

	if watch == nil {
		watch = r.rearm(ctx, b)
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("registry watch stopped")
			return

		case <-r.expired:
			watch = r.rearm(ctx, b)

		case ev, ok := <-watch:
			if !ok {
				watch = r.rearm(ctx, b)
				continue
			}

			switch ev.Type {
			case zk.EventNodeChildrenChanged:
				next, admitted, err := r.Reconcile(ctx)
				if err != nil {
					r.logger.Warn("reconciliation abandoned", "error", err)
				} else if admitted {
					r.logger.Info("membership reconciled", "servers", len(r.pool.Servers()))
				}
				if next == nil {
					next = r.rearm(ctx, b)
				}
				watch = next
			default:
				r.logger.Debug("watch fired", "type", ev.Type.String(), "state", ev.State.String(), "error", ev.Err)
				watch = r.rearm(ctx, b)
			}
		}
	}
}

// rearm lists the namespace until a watch is armed or ctx is done.
func (r *Reconciler) rearm(ctx context.Context, b *backoff.ExponentialBackOff) <-chan zk.Event {
	for {
		_, watch, err := r.coord.ChildrenW(r.cfg.Namespace)
		if err == nil {
			b.Reset()
			return watch
		}
		r.logger.Error("failed to watch namespace", "namespace", r.cfg.Namespace, "error", err)

		select {
		case <-time.After(b.NextBackOff()):
		case <-ctx.Done():
			return nil
		}
	}
}
