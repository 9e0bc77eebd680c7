package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"shardproxy/pkg/hashkit"
	"shardproxy/pkg/proxyerr"
)

func TestParse_SinglePoolDefaults(t *testing.T) {
	src := "alpha:\n  listen: 127.0.0.1:6000\n  servers:\n    - 10.0.0.1:11211:1\n"

	cf, err := Parse("alpha.yml", []byte(src))
	require.NoError(t, err)
	require.Len(t, cf.Pools, 1)

	p := cf.Pools[0]
	require.True(t, p.Valid)
	require.Equal(t, "alpha", p.Name)

	require.True(t, p.Listen.Valid)
	require.Equal(t, "tcp", p.Listen.Network)
	require.Equal(t, "127.0.0.1", p.Listen.Host)
	require.Equal(t, 6000, p.Listen.Port)
	require.NotNil(t, p.Listen.Addr)

	require.Equal(t, hashkit.FNV1a_64, p.Hash)
	require.Equal(t, hashkit.Ketama, p.Distribution)
	require.Equal(t, Redis, p.Protocol)
	require.Equal(t, -1, p.Timeout)
	require.Equal(t, 512, p.Backlog)
	require.Equal(t, 0, p.ClientConnections)
	require.Equal(t, 0, p.RedisDB)
	require.Equal(t, 1, p.ServerConnections)
	require.Equal(t, 30, p.ServerRetryTimeout)
	require.Equal(t, 2, p.ServerFailureLimit)
	require.Equal(t, False, p.TCPKeepalive)
	require.Equal(t, False, p.Preconnect)
	require.Equal(t, False, p.Master)
	require.Equal(t, False, p.AutoEjectHosts)

	require.Len(t, p.Servers, 1)
	s := p.Servers[0]
	require.Equal(t, "10.0.0.1:11211", s.PName)
	require.Equal(t, "10.0.0.1", s.Name, "port 11211 is left out of the name")
	require.Equal(t, 1, s.Weight)
	require.True(t, s.Valid)
}

func TestParse_ExplicitDirectives(t *testing.T) {
	src := `beta:
  listen: /tmp/beta.sock 0660
  hash: murmur
  hash_tag: "{}"
  distribution: modula
  timeout: 400
  backlog: 1024
  client_connections: 100
  protocol: redis
  tcpkeepalive: true
  redis_auth: secret
  redis_db: 3
  preconnect: true
  master: true
  auto_eject_hosts: true
  server_connections: 4
  server_retry_timeout: 5
  server_failure_limit: 7
  servers:
    - 10.0.0.1:6379:2 cache-1
    - /tmp/redis.sock:1
`
	cf, err := Parse("beta.yml", []byte(src))
	require.NoError(t, err)

	p := cf.Pool("beta")
	require.NotNil(t, p)
	require.Equal(t, "unix", p.Listen.Network)
	require.Equal(t, "/tmp/beta.sock", p.Listen.Host)
	require.Equal(t, os.FileMode(0o660), p.Listen.Perm)
	require.Equal(t, hashkit.Murmur, p.Hash)
	require.Equal(t, "{}", p.HashTag)
	require.Equal(t, hashkit.Modula, p.Distribution)
	require.Equal(t, 400, p.Timeout)
	require.Equal(t, 1024, p.Backlog)
	require.Equal(t, 100, p.ClientConnections)
	require.Equal(t, True, p.TCPKeepalive)
	require.Equal(t, "secret", p.RedisAuth)
	require.Equal(t, 3, p.RedisDB)
	require.Equal(t, True, p.Master)
	require.Equal(t, 4, p.ServerConnections)
	require.Equal(t, 5, p.ServerRetryTimeout)
	require.Equal(t, 7, p.ServerFailureLimit)

	require.Len(t, p.Servers, 2)
	require.Equal(t, "cache-1", p.Servers[0].Name)
	require.Equal(t, "10.0.0.1:6379", p.Servers[0].PName)
	require.Equal(t, 2, p.Servers[0].Weight)
	require.Equal(t, "unix", p.Servers[1].Network)
	require.Equal(t, "/tmp/redis.sock", p.Servers[1].Host)
	require.Equal(t, "/tmp/redis.sock", p.Servers[1].Name)
}

func TestParse_Deterministic(t *testing.T) {
	src := []byte(`alpha:
  listen: 127.0.0.1:6000
  servers:
    - 10.0.0.1:6379:1
    - 10.0.0.2:6379:1
beta:
  listen: 127.0.0.1:6001
  hash: crc32a
  servers:
    - 10.0.0.3:6379:1 10.0.0.4:6379:1 loop
`)
	first, err := Parse("a.yml", src)
	require.NoError(t, err)
	second, err := Parse("a.yml", src)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestParse_GroupExpansion(t *testing.T) {
	src := `alpha:
  listen: 127.0.0.1:6000
  servers:
    - 10.0.0.1:6379:1 10.0.0.2:6379:1 loop
    - 10.0.0.3:6379:2 10.0.0.4:6379:1 10.0.0.5:6379:1
`
	cf, err := Parse("groups.yml", []byte(src))
	require.NoError(t, err)

	p := cf.Pools[0]
	require.Len(t, p.ServerGroups, 2)
	require.True(t, p.ServerGroups[0].Loop)
	require.False(t, p.ServerGroups[1].Loop)

	var names []string
	for _, s := range p.Servers {
		names = append(names, s.PName)
	}
	require.Equal(t, []string{
		"10.0.0.1:6379", "10.0.0.2:6379",
		"10.0.0.3:6379", "10.0.0.4:6379", "10.0.0.5:6379",
	}, names)
	require.Equal(t, 2, p.Servers[2].Weight)

	// expansion copies by value
	p.Servers[0].Name = "changed"
	require.Equal(t, "10.0.0.1:6379", p.ServerGroups[0].Servers[0].Name)
}

func TestParse_SingleLoopGroup(t *testing.T) {
	src := "alpha:\n  listen: 127.0.0.1:6000\n  servers:\n    - 10.0.0.1:6379:1 loop\n"

	cf, err := Parse("loop.yml", []byte(src))
	require.NoError(t, err)
	require.Len(t, cf.Pools[0].ServerGroups, 1)
	require.True(t, cf.Pools[0].ServerGroups[0].Loop)
	require.Len(t, cf.Pools[0].Servers, 1)
}

func TestParse_ServerNameWithColon(t *testing.T) {
	src := "alpha:\n  listen: 127.0.0.1:6000\n  servers:\n    - 10.0.0.1:6379:1 redis:main\n    - /tmp/redis.sock:2 cache:local\n"

	cf, err := Parse("names.yml", []byte(src))
	require.NoError(t, err)

	p := cf.Pools[0]
	require.Empty(t, p.ServerGroups)
	require.Len(t, p.Servers, 2)
	require.Equal(t, "10.0.0.1:6379", p.Servers[0].PName)
	require.Equal(t, "redis:main", p.Servers[0].Name)
	require.Equal(t, "/tmp/redis.sock", p.Servers[1].PName)
	require.Equal(t, "cache:local", p.Servers[1].Name)
	require.Equal(t, 2, p.Servers[1].Weight)
}

func TestParse_RegistryBackedWithoutServers(t *testing.T) {
	src := `gamma:
  listen: 127.0.0.1:6002
  zookeeperservers:
    - 10.0.1.1:2181:1
    - 10.0.1.2:2181:1
`
	cf, err := Parse("zk.yml", []byte(src))
	require.NoError(t, err)

	p := cf.Pools[0]
	require.True(t, p.RegistryBacked())
	require.Empty(t, p.Servers)
	require.Len(t, p.RegistryServers, 2)
	require.Equal(t, "10.0.1.2", p.RegistryServers[1].Host)
	require.Equal(t, 2181, p.RegistryServers[1].Port)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		class   error
		detail  error
		message string
	}{
		{
			name:    "unknown directive",
			src:     "alpha:\n  listen: 127.0.0.1:6000\n  colour: red\n  servers:\n    - 10.0.0.1:6379:1\n",
			class:   proxyerr.ErrDirective,
			detail:  proxyerr.ErrUnknownDirective,
			message: `directive "colour" is unknown`,
		},
		{
			name:    "directive names are case sensitive",
			src:     "alpha:\n  Listen: 127.0.0.1:6000\n  servers:\n    - 10.0.0.1:6379:1\n",
			class:   proxyerr.ErrDirective,
			detail:  proxyerr.ErrUnknownDirective,
			message: `directive "Listen" is unknown`,
		},
		{
			name:    "duplicate directive",
			src:     "alpha:\n  listen: 127.0.0.1:6000\n  hash: md5\n  hash: crc16\n  servers:\n    - 10.0.0.1:6379:1\n",
			class:   proxyerr.ErrDirective,
			detail:  proxyerr.ErrDuplicateDirective,
			message: `directive "hash" is a duplicate`,
		},
		{
			name:    "duplicate listen directive",
			src:     "alpha:\n  listen: 127.0.0.1:6000\n  listen: 127.0.0.1:6001\n  servers:\n    - 10.0.0.1:6379:1\n",
			class:   proxyerr.ErrDirective,
			detail:  proxyerr.ErrDuplicateDirective,
			message: `directive "listen" is a duplicate`,
		},
		{
			name:    "invalid hash",
			src:     "alpha:\n  listen: 127.0.0.1:6000\n  hash: sha1\n  servers:\n    - 10.0.0.1:6379:1\n",
			class:   proxyerr.ErrDirective,
			detail:  proxyerr.ErrInvalidValue,
			message: `directive "hash" is not a valid hash`,
		},
		{
			name:    "invalid distribution",
			src:     "alpha:\n  listen: 127.0.0.1:6000\n  distribution: rendezvous\n  servers:\n    - 10.0.0.1:6379:1\n",
			class:   proxyerr.ErrDirective,
			detail:  proxyerr.ErrInvalidValue,
			message: "is not a valid distribution",
		},
		{
			name:    "invalid protocol",
			src:     "alpha:\n  listen: 127.0.0.1:6000\n  protocol: http\n  servers:\n    - 10.0.0.1:6379:1\n",
			class:   proxyerr.ErrDirective,
			detail:  proxyerr.ErrInvalidValue,
			message: "protocol error",
		},
		{
			name:    "negative number",
			src:     "alpha:\n  listen: 127.0.0.1:6000\n  timeout: -5\n  servers:\n    - 10.0.0.1:6379:1\n",
			class:   proxyerr.ErrDirective,
			detail:  proxyerr.ErrInvalidValue,
			message: "is not a number",
		},
		{
			name:    "invalid bool",
			src:     "alpha:\n  listen: 127.0.0.1:6000\n  preconnect: yes\n  servers:\n    - 10.0.0.1:6379:1\n",
			class:   proxyerr.ErrDirective,
			detail:  proxyerr.ErrInvalidValue,
			message: `is not "true" or "false"`,
		},
		{
			name:    "hash tag length",
			src:     "alpha:\n  listen: 127.0.0.1:6000\n  hash_tag: \"{\"\n  servers:\n    - 10.0.0.1:6379:1\n",
			class:   proxyerr.ErrDirective,
			detail:  proxyerr.ErrInvalidValue,
			message: "is not a valid hash tag string with two characters",
		},
		{
			name:    "listen without port",
			src:     "alpha:\n  listen: localhost\n  servers:\n    - 10.0.0.1:6379:1\n",
			class:   proxyerr.ErrDirective,
			detail:  proxyerr.ErrInvalidValue,
			message: `invalid "hostname:port" format string`,
		},
		{
			name:    "listen port out of range",
			src:     "alpha:\n  listen: 127.0.0.1:70000\n  servers:\n    - 10.0.0.1:6379:1\n",
			class:   proxyerr.ErrDirective,
			detail:  proxyerr.ErrInvalidValue,
			message: "invalid port",
		},
		{
			name:    "listen permission",
			src:     "alpha:\n  listen: /tmp/a.sock 0999\n  servers:\n    - 10.0.0.1:6379:1\n",
			class:   proxyerr.ErrDirective,
			detail:  proxyerr.ErrInvalidValue,
			message: "invalid file permission",
		},
		{
			name:    "zero weight",
			src:     "alpha:\n  listen: 127.0.0.1:6000\n  servers:\n    - 10.0.0.1:6379:0\n",
			class:   proxyerr.ErrDirective,
			detail:  proxyerr.ErrInvalidValue,
			message: "zero weight",
		},
		{
			name:    "server without weight",
			src:     "alpha:\n  listen: 127.0.0.1:6000\n  servers:\n    - 10.0.0.1\n",
			class:   proxyerr.ErrDirective,
			detail:  proxyerr.ErrInvalidValue,
			message: "format string",
		},
		{
			name:    "bare token in group",
			src:     "alpha:\n  listen: 127.0.0.1:6000\n  servers:\n    - 10.0.0.1:6379:1 10.0.0.2:6379:1 loopy\n",
			class:   proxyerr.ErrDirective,
			detail:  proxyerr.ErrInvalidValue,
			message: `invalid token "loopy"`,
		},
		{
			name:    "empty value",
			src:     "alpha:\n  listen:\n  servers:\n    - 10.0.0.1:6379:1\n",
			class:   proxyerr.ErrDirective,
			detail:  proxyerr.ErrInvalidValue,
			message: "invalid empty value",
		},
		{
			name:   "missing listen",
			src:    "alpha:\n  servers:\n    - 10.0.0.1:6379:1\n",
			class:  proxyerr.ErrValidation,
			detail: proxyerr.ErrMissingListen,
		},
		{
			name:   "zero server connections",
			src:    "alpha:\n  listen: 127.0.0.1:6000\n  server_connections: 0\n  servers:\n    - 10.0.0.1:6379:1\n",
			class:  proxyerr.ErrValidation,
			detail: proxyerr.ErrZeroServerConnections,
		},
		{
			name:   "auth on memcache pool",
			src:    "alpha:\n  listen: 127.0.0.1:6000\n  protocol: memcache\n  redis_auth: secret\n  servers:\n    - 10.0.0.1:11211:1\n",
			class:  proxyerr.ErrValidation,
			detail: proxyerr.ErrAuthNotAllowed,
		},
		{
			name:   "servers and groups mixed",
			src:    "alpha:\n  listen: 127.0.0.1:6000\n  servers:\n    - 10.0.0.1:6379:1\n    - 10.0.0.2:6379:1 10.0.0.3:6379:1\n",
			class:  proxyerr.ErrValidation,
			detail: proxyerr.ErrMixedServerForms,
		},
		{
			name:   "no servers",
			src:    "alpha:\n  listen: 127.0.0.1:6000\n  backupservers:\n    - 10.0.0.1:6379:1\n",
			class:  proxyerr.ErrValidation,
			detail: proxyerr.ErrNoServers,
		},
		{
			name:   "duplicate listen",
			src:    "alpha:\n  listen: 127.0.0.1:6000\n  servers:\n    - 10.0.0.1:6379:1\nbeta:\n  listen: 127.0.0.1:6000\n  servers:\n    - 10.0.0.2:6379:1\n",
			class:  proxyerr.ErrValidation,
			detail: proxyerr.ErrDuplicateListen,
		},
		{
			name:   "duplicate pool",
			src:    "alpha:\n  listen: 127.0.0.1:6000\n  servers:\n    - 10.0.0.1:6379:1\nalpha:\n  listen: 127.0.0.1:6001\n  servers:\n    - 10.0.0.2:6379:1\n",
			class:  proxyerr.ErrValidation,
			detail: proxyerr.ErrDuplicatePool,
		},
		{
			name:  "flow style",
			src:   "alpha: {listen: 127.0.0.1:6000, servers: [10.0.0.1:11211:1]}\n",
			class: proxyerr.ErrLoad,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cf, err := Parse("bad.yml", []byte(tt.src))
			require.Error(t, err)
			require.Nil(t, cf)
			require.ErrorIs(t, err, tt.class)
			if tt.detail != nil {
				require.ErrorIs(t, err, tt.detail)
			}
			if tt.message != "" {
				require.Contains(t, err.Error(), tt.message)
			}
		})
	}
}

func TestParse_DuplicateListenCheckedBeforeNames(t *testing.T) {
	src := "alpha:\n  listen: 127.0.0.1:6000\n  servers:\n    - 10.0.0.1:6379:1\nalpha:\n  listen: 127.0.0.1:6000\n  servers:\n    - 10.0.0.2:6379:1\n"

	_, err := Parse("both.yml", []byte(src))
	require.ErrorIs(t, err, proxyerr.ErrDuplicateListen)
	require.NotErrorIs(t, err, proxyerr.ErrDuplicatePool)
}

func TestConfValidate_NoPools(t *testing.T) {
	cf := &Conf{Filename: "empty.yml"}
	err := cf.validate()
	require.ErrorIs(t, err, proxyerr.ErrValidation)
	require.ErrorIs(t, err, proxyerr.ErrNoPools)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pools.yml")
	require.NoError(t, os.WriteFile(path, []byte("alpha:\n  listen: 127.0.0.1:6000\n  servers:\n    - 10.0.0.1:6379:1\n"), 0o644))

	cf, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, path, cf.Filename)
	require.Len(t, cf.Pools, 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.ErrorIs(t, err, proxyerr.ErrLoad)
}

func TestParseServer(t *testing.T) {
	tests := []struct {
		in   string
		want ServerDeclaration
	}{
		{
			in:   "10.0.0.1:6379:1",
			want: ServerDeclaration{PName: "10.0.0.1:6379", Name: "10.0.0.1:6379", Host: "10.0.0.1", Port: 6379, Weight: 1, Network: "tcp", Valid: true},
		},
		{
			in:   "10.0.0.1:11211:3",
			want: ServerDeclaration{PName: "10.0.0.1:11211", Name: "10.0.0.1", Host: "10.0.0.1", Port: 11211, Weight: 3, Network: "tcp", Valid: true},
		},
		{
			in:   "cache.local:6380:1 shard-a",
			want: ServerDeclaration{PName: "cache.local:6380", Name: "shard-a", Host: "cache.local", Port: 6380, Weight: 1, Network: "tcp", Valid: true},
		},
		{
			in:   "/var/run/redis.sock:2 local",
			want: ServerDeclaration{PName: "/var/run/redis.sock", Name: "local", Host: "/var/run/redis.sock", Weight: 2, Network: "unix", Valid: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseServer(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestServerDeclaration_Resolve(t *testing.T) {
	s, err := parseServer("127.0.0.1:6379:1")
	require.NoError(t, err)

	addr, err := s.Resolve()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:6379", addr.String())
}

func TestDirectives(t *testing.T) {
	require.ElementsMatch(t, []string{
		"listen", "hash", "hash_tag", "distribution", "timeout", "backlog", "client_connections",
		"protocol", "tcpkeepalive", "redis_auth", "redis_db", "preconnect", "master", "auto_eject_hosts",
		"server_connections", "server_retry_timeout", "server_failure_limit",
		"servers", "backupservers", "zookeeperservers",
	}, Directives())
}
