package conf

import (
	"fmt"
	"log/slog"
	"os"

	"shardproxy/pkg/confdoc"
	"shardproxy/pkg/proxyerr"
)

// Load reads and parses the pool file at path.
func Load(path string) (*Conf, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open '%s': %w", proxyerr.ErrLoad, path, err)
	}
	return Parse(path, data)
}

// Parse validates the dialect of src, parses its directives and applies
// defaults. Either every pool is valid or an error is returned.
func Parse(name string, src []byte) (*Conf, error) {
	if err := confdoc.Validate(name, src); err != nil {
		return nil, err
	}

	events, err := confdoc.Events(src)
	if err != nil {
		return nil, err
	}

	cf, err := parseEvents(name, events)
	if err != nil {
		return nil, err
	}

	if err := cf.validate(); err != nil {
		return nil, err
	}

	cf.dump(slog.Default())
	return cf, nil
}

func (c *Conf) dump(logger *slog.Logger) {
	logger.Debug("conf loaded", "file", c.Filename, "pools", len(c.Pools))
	for _, p := range c.Pools {
		servers := make([]string, 0, len(p.Servers))
		for _, s := range p.Servers {
			servers = append(servers, s.String())
		}
		logger.Debug("pool",
			"pool", p.Name,
			"listen", p.Listen.PName,
			"timeout", p.Timeout,
			"backlog", p.Backlog,
			"hash", p.Hash.String(),
			"hash_tag", p.HashTag,
			"distribution", p.Distribution.String(),
			"client_connections", p.ClientConnections,
			"protocol", p.Protocol.String(),
			"preconnect", p.Preconnect.Bool(),
			"auto_eject_hosts", p.AutoEjectHosts.Bool(),
			"server_connections", p.ServerConnections,
			"server_retry_timeout", p.ServerRetryTimeout,
			"server_failure_limit", p.ServerFailureLimit,
			"servers", servers,
		)
	}
}
