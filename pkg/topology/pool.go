package topology

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zhangyunhao116/skipset"

	"shardproxy/pkg/conf"
	"shardproxy/pkg/hashkit"
	"shardproxy/pkg/proxyerr"
)

// AdmissionBuffer is the capacity of a pool's admission channel.
const AdmissionBuffer = 64

// AdmissionEvent reports a primary/backup pair added to a running pool.
type AdmissionEvent struct {
	ID          uuid.UUID
	Pool        string
	Primary     *Server
	Backup      *Server
	Fingerprint Fingerprint
	At          time.Time
}

// Pool is the runtime form of a validated PoolDeclaration.
type Pool struct {
	Index  int
	Name   string
	Listen conf.ListenDeclaration

	Hash         hashkit.Algo
	KeyHash      hashkit.Func
	Distribution hashkit.Distribution
	HashTag      string
	Protocol     conf.Protocol

	Timeout            int
	Backlog            int
	ClientConnections  int
	RedisDB            int
	ServerConnections  int
	ServerRetryTimeout int64 // ms
	ServerFailureLimit int

	TCPKeepalive   bool
	Preconnect     bool
	Master         bool
	AutoEjectHosts bool

	RedisAuth   string
	RequireAuth bool

	RegistryServers []conf.ServerDeclaration

	servers ServerList
	backups ServerList

	mu           sync.Mutex // serialises admissions
	fingerprints *skipset.FuncSet[Fingerprint]
	continuum    *Continuum

	initialized atomic.Bool
	version     atomic.Uint64
	admitted    atomic.Int64
	admissions  chan AdmissionEvent
}

// NewPool builds the runtime pool for decl. Static primary/backup pairs are
// fingerprinted and count as admitted.
func NewPool(idx int, decl *conf.PoolDeclaration) (*Pool, error) {
	if !decl.Valid {
		return nil, fmt.Errorf("%w: pool %q was not validated", proxyerr.ErrTransform, decl.Name)
	}
	if len(decl.BackupServers) > 0 && len(decl.BackupServers) != len(decl.Servers) {
		return nil, fmt.Errorf("%w: %w: pool %q has %d servers and %d backup servers",
			proxyerr.ErrTransform, proxyerr.ErrBackupMismatch, decl.Name, len(decl.Servers), len(decl.BackupServers))
	}
	if decl.RegistryBacked() && len(decl.Servers) > 0 && len(decl.BackupServers) == 0 {
		return nil, fmt.Errorf("%w: %w: registry-backed pool %q declares servers without backup servers",
			proxyerr.ErrTransform, proxyerr.ErrBackupMismatch, decl.Name)
	}

	keyHash := decl.Hash.Func()
	if keyHash == nil {
		return nil, fmt.Errorf("%w: pool %q has hash selector %d", proxyerr.ErrTransform, decl.Name, int(decl.Hash))
	}

	p := &Pool{
		Index:              idx,
		Name:               decl.Name,
		Listen:             decl.Listen,
		Hash:               decl.Hash,
		KeyHash:            keyHash,
		Distribution:       decl.Distribution,
		HashTag:            decl.HashTag,
		Protocol:           decl.Protocol,
		Timeout:            decl.Timeout,
		Backlog:            decl.Backlog,
		ClientConnections:  decl.ClientConnections,
		RedisDB:            decl.RedisDB,
		ServerConnections:  decl.ServerConnections,
		ServerRetryTimeout: int64(decl.ServerRetryTimeout) * 1000,
		ServerFailureLimit: decl.ServerFailureLimit,
		TCPKeepalive:       decl.TCPKeepalive.Bool(),
		Preconnect:         decl.Preconnect.Bool(),
		Master:             decl.Master.Bool(),
		AutoEjectHosts:     decl.AutoEjectHosts.Bool(),
		RedisAuth:          decl.RedisAuth,
		RequireAuth:        decl.RedisAuth != "",
		RegistryServers:    append([]conf.ServerDeclaration(nil), decl.RegistryServers...),
		fingerprints: skipset.NewFunc[Fingerprint](func(a, b Fingerprint) bool {
			return a < b
		}),
		continuum:  NewContinuum(decl.Distribution, keyHash, DefaultPointsPerWeight),
		admissions: make(chan AdmissionEvent, AdmissionBuffer),
	}

	if len(decl.BackupServers) > 0 {
		p.backups.Append(p.Name, decl.BackupServers...)
	}
	p.servers.Append(p.Name, decl.Servers...)
	if len(decl.BackupServers) > 0 {
		for i := range decl.Servers {
			p.fingerprints.Add(PairFingerprint(decl.Servers[i].PName, decl.BackupServers[i].PName))
		}
	}
	p.continuum.Rebuild(p.servers.Snapshot())

	slog.Debug("transform to pool", "pool", p.Name, "index", idx,
		"servers", p.servers.Len(), "backup_servers", p.backups.Len())
	return p, nil
}

func (p *Pool) Servers() []*Server { return p.servers.Snapshot() }

// Backups is parallel to Servers. Read Servers first: the backup list is
// then at least as long.
func (p *Pool) Backups() []*Server { return p.backups.Snapshot() }

// Known reports whether the pair, in either role order, is admitted.
func (p *Pool) Known(primary, backup string) bool {
	fp, swapped := PairCandidates(primary, backup)
	return p.fingerprints.Contains(fp) || p.fingerprints.Contains(swapped)
}

// Admitted reports whether fp is recorded.
func (p *Pool) Admitted(fp Fingerprint) bool {
	return p.fingerprints.Contains(fp)
}

// Fingerprints returns the admitted fingerprints in ascending order.
func (p *Pool) Fingerprints() []Fingerprint {
	out := make([]Fingerprint, 0, p.fingerprints.Len())
	p.fingerprints.Range(func(fp Fingerprint) bool {
		out = append(out, fp)
		return true
	})
	return out
}

// Admit appends a primary/backup pair at the next indices, records fp and
// refreshes the hashing context. Admitting a recorded fingerprint, or a pair
// already known in either role order, is a no-op that returns false.
func (p *Pool) Admit(primary, backup conf.ServerDeclaration, fp Fingerprint) (AdmissionEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fingerprints.Contains(fp) || p.Known(primary.PName, backup.PName) {
		return AdmissionEvent{}, false
	}

	// Backup goes first: a primary index visible to readers always has its backup.
	bs := p.backups.Append(p.Name, backup)[0]
	ps := p.servers.Append(p.Name, primary)[0]
	p.fingerprints.Add(fp)
	p.continuum.Rebuild(p.servers.Snapshot())
	p.version.Add(1)
	p.admitted.Add(1)

	ev := AdmissionEvent{
		ID:          uuid.New(),
		Pool:        p.Name,
		Primary:     ps,
		Backup:      bs,
		Fingerprint: fp,
		At:          time.Now(),
	}
	select {
	case p.admissions <- ev:
	default:
		slog.Warn("admission channel full, dropping event", "pool", p.Name, "fingerprint", fp.String())
	}

	slog.Info("pair admitted", "pool", p.Name, "primary", primary.PName, "backup", backup.PName,
		"index", ps.Index, "fingerprint", fp.String())
	return ev, true
}

// Admissions delivers an event for every admitted pair.
func (p *Pool) Admissions() <-chan AdmissionEvent { return p.admissions }

// AdmissionCount is the number of pairs admitted after construction.
func (p *Pool) AdmissionCount() int64 { return p.admitted.Load() }

// Version changes on every admission.
func (p *Pool) Version() uint64 { return p.version.Load() }

func (p *Pool) MarkInitialized() { p.initialized.Store(true) }

func (p *Pool) Initialized() bool { return p.initialized.Load() }

func (p *Pool) Continuum() *Continuum { return p.continuum }

// Lookup maps key to a primary server, honouring the pool's hash tag.
func (p *Pool) Lookup(key []byte) (*Server, bool) {
	idx, ok := p.continuum.Lookup(p.hashable(key))
	if !ok {
		return nil, false
	}
	return p.servers.Get(idx)
}

// hashable returns the part of key between the hash tag delimiters, or the
// whole key when the tag is absent or empty.
func (p *Pool) hashable(key []byte) []byte {
	if len(p.HashTag) != 2 {
		return key
	}
	start := bytes.IndexByte(key, p.HashTag[0])
	if start < 0 {
		return key
	}
	end := bytes.IndexByte(key[start+1:], p.HashTag[1])
	if end <= 0 {
		return key
	}
	return key[start+1 : start+1+end]
}
