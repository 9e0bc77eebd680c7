package conf

import (
	"cmp"
	"fmt"
	"slices"

	"shardproxy/pkg/hashkit"
	"shardproxy/pkg/proxyerr"
)

const (
	DefaultHash               = hashkit.FNV1a_64
	DefaultDistribution       = hashkit.Ketama
	DefaultTimeout            = -1
	DefaultBacklog            = 512
	DefaultClientConnections  = 0
	DefaultProtocol           = Redis
	DefaultRedisDB            = 0
	DefaultServerConnections  = 1
	DefaultServerRetryTimeout = 30 // seconds
	DefaultServerFailureLimit = 2
)

// validate fills unset fields with defaults and checks a single pool.
func (p *PoolDeclaration) validate() error {
	if !p.Listen.Valid {
		return fmt.Errorf("%w: %w: pool %q", proxyerr.ErrValidation, proxyerr.ErrMissingListen, p.Name)
	}

	if int(p.Hash) == UnsetNum {
		p.Hash = DefaultHash
	}
	if int(p.Distribution) == UnsetNum {
		p.Distribution = DefaultDistribution
	}
	if p.Timeout == UnsetNum {
		p.Timeout = DefaultTimeout
	}
	if p.Backlog == UnsetNum {
		p.Backlog = DefaultBacklog
	}
	if p.ClientConnections == UnsetNum {
		p.ClientConnections = DefaultClientConnections
	}
	if int(p.Protocol) == UnsetNum {
		p.Protocol = DefaultProtocol
	}
	if p.RedisDB == UnsetNum {
		p.RedisDB = DefaultRedisDB
	}
	for _, b := range []*TriBool{&p.TCPKeepalive, &p.Preconnect, &p.Master, &p.AutoEjectHosts} {
		if !b.IsSet() {
			*b = False
		}
	}
	switch p.ServerConnections {
	case UnsetNum:
		p.ServerConnections = DefaultServerConnections
	case 0:
		return fmt.Errorf("%w: %w: pool %q", proxyerr.ErrValidation, proxyerr.ErrZeroServerConnections, p.Name)
	}
	if p.ServerRetryTimeout == UnsetNum {
		p.ServerRetryTimeout = DefaultServerRetryTimeout
	}
	if p.ServerFailureLimit == UnsetNum {
		p.ServerFailureLimit = DefaultServerFailureLimit
	}

	if p.RedisAuth != "" && p.Protocol != Redis {
		return fmt.Errorf("%w: %w: pool %q speaks %s", proxyerr.ErrValidation, proxyerr.ErrAuthNotAllowed, p.Name, p.Protocol)
	}

	if len(p.ServerGroups) > 0 {
		if len(p.Servers) > 0 {
			return fmt.Errorf("%w: %w: pool %q", proxyerr.ErrValidation, proxyerr.ErrMixedServerForms, p.Name)
		}
		for _, g := range p.ServerGroups {
			p.Servers = append(p.Servers, g.Servers...)
		}
	}

	if len(p.Servers) == 0 && !p.RegistryBacked() {
		return fmt.Errorf("%w: %w: pool %q has no servers", proxyerr.ErrValidation, proxyerr.ErrNoServers, p.Name)
	}

	p.Valid = true
	return nil
}

// validate checks every pool and then the pools against each other.
func (c *Conf) validate() error {
	for _, p := range c.Pools {
		if err := p.validate(); err != nil {
			return fmt.Errorf("'%s': %w", c.Filename, err)
		}
	}

	if len(c.Pools) == 0 {
		return fmt.Errorf("%w: %w: '%s'", proxyerr.ErrValidation, proxyerr.ErrNoPools, c.Filename)
	}

	pools := slices.Clone(c.Pools)

	slices.SortStableFunc(pools, func(a, b *PoolDeclaration) int {
		return cmp.Compare(a.Listen.PName, b.Listen.PName)
	})
	for i := 1; i < len(pools); i++ {
		if pools[i-1].Listen.PName == pools[i].Listen.PName {
			return fmt.Errorf("%w: %w: '%s': pools %q and %q listen on %s", proxyerr.ErrValidation, proxyerr.ErrDuplicateListen,
				c.Filename, pools[i-1].Name, pools[i].Name, pools[i].Listen.PName)
		}
	}

	slices.SortStableFunc(pools, func(a, b *PoolDeclaration) int {
		return cmp.Compare(a.Name, b.Name)
	})
	for i := 1; i < len(pools); i++ {
		if pools[i-1].Name == pools[i].Name {
			return fmt.Errorf("%w: %w: '%s': pool %q", proxyerr.ErrValidation, proxyerr.ErrDuplicatePool, c.Filename, pools[i].Name)
		}
	}

	return nil
}
