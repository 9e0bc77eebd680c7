// Package conf loads the pool file: it validates the YAML dialect, parses
// the directives of every pool into declarations, applies defaults and
// checks the pools against each other.
package conf

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"shardproxy/pkg/hashkit"
)

// UnsetNum marks numeric and enum fields that no directive has written.
const UnsetNum = -1

// TriBool is a boolean directive that also remembers whether it was set.
type TriBool int8

const (
	Unset TriBool = UnsetNum
	False TriBool = 0
	True  TriBool = 1
)

func (b TriBool) IsSet() bool { return b != Unset }

func (b TriBool) Bool() bool { return b == True }

func (b TriBool) String() string {
	switch b {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unset"
	}
}

// Protocol is the wire protocol a pool speaks to its clients and servers.
type Protocol int

const (
	Redis Protocol = iota
	SSDB
	Memcache
)

var protocolNames = [...]string{
	Redis:    "redis",
	SSDB:     "ssdb",
	Memcache: "memcache",
}

// ProtocolNames returns the directive values accepted for "protocol".
func ProtocolNames() []string {
	return append([]string(nil), protocolNames[:]...)
}

func (p Protocol) String() string {
	if p < 0 || int(p) >= len(protocolNames) {
		return "unknown"
	}
	return protocolNames[p]
}

// Conf is a loaded pool file. Pools keep their declaration order.
type Conf struct {
	Filename string
	Pools    []*PoolDeclaration
}

// Pool returns the declaration named name, or nil.
func (c *Conf) Pool(name string) *PoolDeclaration {
	for _, p := range c.Pools {
		if p.Name == name {
			return p
		}
	}
	return nil
}

type ListenDeclaration struct {
	PName   string // as written, e.g. "127.0.0.1:22121" or "/tmp/sock 0666"
	Host    string // hostname or socket path
	Port    int
	Perm    os.FileMode
	Network string // "tcp" or "unix"
	Addr    net.Addr
	Valid   bool
}

// PoolDeclaration is one pool as written in the file. Valid is set only
// once defaults and checks have passed; nothing downstream reads an
// invalid declaration.
type PoolDeclaration struct {
	Name   string
	Listen ListenDeclaration

	Hash         hashkit.Algo
	HashTag      string
	Distribution hashkit.Distribution
	Protocol     Protocol

	Timeout            int
	Backlog            int
	ClientConnections  int
	RedisDB            int
	ServerConnections  int
	ServerRetryTimeout int // seconds
	ServerFailureLimit int

	TCPKeepalive   TriBool
	Preconnect     TriBool
	Master         TriBool
	AutoEjectHosts TriBool

	RedisAuth string

	Servers         []ServerDeclaration
	ServerGroups    []ServerGroupDeclaration
	BackupServers   []ServerDeclaration
	RegistryServers []ServerDeclaration

	Valid bool
}

func newPoolDeclaration(name string) *PoolDeclaration {
	return &PoolDeclaration{
		Name:               name,
		Hash:               hashkit.Algo(UnsetNum),
		Distribution:       hashkit.Distribution(UnsetNum),
		Protocol:           Protocol(UnsetNum),
		Timeout:            UnsetNum,
		Backlog:            UnsetNum,
		ClientConnections:  UnsetNum,
		RedisDB:            UnsetNum,
		ServerConnections:  UnsetNum,
		ServerRetryTimeout: UnsetNum,
		ServerFailureLimit: UnsetNum,
		TCPKeepalive:       Unset,
		Preconnect:         Unset,
		Master:             Unset,
		AutoEjectHosts:     Unset,
	}
}

// RegistryBacked reports whether the pool learns its servers from a
// coordination service.
func (p *PoolDeclaration) RegistryBacked() bool {
	return len(p.RegistryServers) > 0
}

// ServerDeclaration is a backend address. It is a value: copies are
// independent and never changed after parsing.
type ServerDeclaration struct {
	PName   string // "host:port", or the socket path
	Name    string // key used by the distribution
	Host    string
	Port    int
	Weight  int
	Network string
	Valid   bool
}

// Resolve looks the address up. Backend resolution is lazy: it happens when
// the data plane first connects, not at load.
func (s ServerDeclaration) Resolve() (net.Addr, error) {
	if s.Network == "unix" {
		addr, err := net.ResolveUnixAddr("unix", s.Host)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", s.PName, err)
		}
		return addr, nil
	}

	addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(s.Host, strconv.Itoa(s.Port)))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", s.PName, err)
	}
	return addr, nil
}

func (s ServerDeclaration) String() string {
	return fmt.Sprintf("%s:%d %s", s.PName, s.Weight, s.Name)
}

// ServerGroupDeclaration is shorthand for several servers on one line.
// Loop marks a round-robin group.
type ServerGroupDeclaration struct {
	Servers []ServerDeclaration
	Loop    bool
}
