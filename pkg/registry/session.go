// Package registry keeps registry-backed pools in step with the primary/backup
// pairs announced under a ZooKeeper namespace.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"

	"shardproxy/pkg/conf"
	"shardproxy/pkg/listener"
)

// Coordinator is the part of a coordination session the reconciler uses.
type Coordinator interface {
	// ChildrenW lists the children of path and arms a one-shot watch on them.
	ChildrenW(path string) ([]string, <-chan zk.Event, error)
	Get(path string) ([]byte, error)
	Close()
}

// ConnectString joins the registry servers of a pool as "host:port,host:port".
func ConnectString(servers []conf.ServerDeclaration) string {
	hosts := make([]string, 0, len(servers))
	for _, s := range servers {
		hosts = append(hosts, s.Host+":"+strconv.Itoa(s.Port))
	}
	return strings.Join(hosts, ",")
}

// Session is a ZooKeeper session. It watches its own state and reports
// expiry on Expired so that child watches can be re-armed.
type Session struct {
	conn    *zk.Conn
	watch   *listener.Listener[zk.Event]
	expired chan struct{}
	logger  *slog.Logger
}

// Dial opens a session to connectString and waits up to timeout for it to
// connect.
func Dial(ctx context.Context, connectString string, timeout time.Duration, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("registry", connectString)

	servers := strings.Split(connectString, ",")
	conn, events, err := zk.Connect(servers, timeout, zk.WithLogger(zkLogger{logger}))
	if err != nil {
		return nil, fmt.Errorf("zk connect: %w", err)
	}

	s := &Session{
		conn:    conn,
		expired: make(chan struct{}, 1),
		logger:  logger,
	}
	if err := s.waitConnected(ctx, timeout); err != nil {
		conn.Close()
		return nil, err
	}

	s.watch = listener.New("zk-session", events, s.handleEvent)
	s.watch.Start(context.Background())
	return s, nil
}

func (s *Session) handleEvent(ev zk.Event) error {
	if ev.Type != zk.EventSession {
		return nil
	}
	s.logger.Debug("zk session event", "state", ev.State.String(), "server", ev.Server)
	if ev.State == zk.StateExpired {
		s.logger.Warn("zk session expired, watches will be re-armed")
		select {
		case s.expired <- struct{}{}:
		default:
		}
	}
	return ev.Err
}

// Expired delivers a value after every session expiry.
func (s *Session) Expired() <-chan struct{} { return s.expired }

func (s *Session) ChildrenW(path string) ([]string, <-chan zk.Event, error) {
	children, _, ch, err := s.conn.ChildrenW(path)
	if err != nil {
		return nil, nil, fmt.Errorf("zk children %s: %w", path, err)
	}
	return children, ch, nil
}

func (s *Session) Get(path string) ([]byte, error) {
	data, _, err := s.conn.Get(path)
	if err != nil {
		return nil, fmt.Errorf("zk get %s: %w", path, err)
	}
	return data, nil
}

func (s *Session) Close() {
	s.conn.Close()
	if s.watch != nil {
		s.watch.Stop()
	}
}

func (s *Session) waitConnected(ctx context.Context, timeout time.Duration) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	deadline := time.Now().Add(timeout)
	for {
		st := s.conn.State()
		if st == zk.StateConnected || st == zk.StateHasSession {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("zk: not connected after %s, state=%v", timeout, st)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// zkLogger routes the client's own log lines to slog.
type zkLogger struct {
	l *slog.Logger
}

func (z zkLogger) Printf(format string, args ...any) {
	z.l.Info(fmt.Sprintf(format, args...), "component", "zk")
}
