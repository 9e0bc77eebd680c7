// Package topology holds the runtime pools built from validated
// declarations: their server lists, admitted pair fingerprints and hashing
// context.
package topology

import (
	"sync"
	"sync/atomic"

	"shardproxy/pkg/conf"
)

// Server is a backend in a pool's runtime list. Index is its append
// position and is never reused.
type Server struct {
	conf.ServerDeclaration

	Index int
	Owner string // pool name

	Reachable    bool
	FailureCount int
	NextRetry    int64 // unix ms
}

func newServer(idx int, owner string, d conf.ServerDeclaration) *Server {
	return &Server{
		ServerDeclaration: d,
		Index:             idx,
		Owner:             owner,
		Reachable:         true,
	}
}

// ServerList is append-only. Readers load an immutable snapshot; writers
// copy into a grown slice and publish it.
type ServerList struct {
	mu   sync.Mutex
	snap atomic.Pointer[[]*Server]
}

// Snapshot returns the current servers. The slice must not be modified.
func (l *ServerList) Snapshot() []*Server {
	p := l.snap.Load()
	if p == nil {
		return nil
	}
	return *p
}

func (l *ServerList) Len() int {
	return len(l.Snapshot())
}

func (l *ServerList) Get(idx int) (*Server, bool) {
	servers := l.Snapshot()
	if idx < 0 || idx >= len(servers) {
		return nil, false
	}
	return servers[idx], true
}

// Append adds servers at the next indices and returns them.
func (l *ServerList) Append(owner string, decls ...conf.ServerDeclaration) []*Server {
	l.mu.Lock()
	defer l.mu.Unlock()

	old := l.Snapshot()
	next := make([]*Server, len(old), len(old)+len(decls))
	copy(next, old)

	added := make([]*Server, 0, len(decls))
	for _, d := range decls {
		s := newServer(len(next), owner, d)
		next = append(next, s)
		added = append(added, s)
	}

	l.snap.Store(&next)
	return added
}
