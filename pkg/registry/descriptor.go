package registry

import (
	"encoding/json"
	"fmt"
	"strconv"

	"shardproxy/pkg/conf"
	"shardproxy/pkg/proxyerr"
)

// Descriptor is the data of a membership node: one primary and its backup.
type Descriptor struct {
	IP        string `json:"ip"`
	Port      int    `json:"port"`
	SlaveIP   string `json:"slave_ip"`
	SlavePort int    `json:"slave_port"`
}

// ParseDescriptor decodes node data. Both addresses are required; missing
// ports are 0.
func ParseDescriptor(data []byte) (Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("%w: malformed descriptor: %w", proxyerr.ErrReconcile, err)
	}
	if d.IP == "" || d.SlaveIP == "" {
		return Descriptor{}, fmt.Errorf("%w: %w: descriptor %s", proxyerr.ErrReconcile, proxyerr.ErrMissingAddress, data)
	}
	return d, nil
}

// Pair returns the primary and backup declarations, each with weight 1.
func (d Descriptor) Pair() (primary, backup conf.ServerDeclaration) {
	return announced(d.IP, d.Port), announced(d.SlaveIP, d.SlavePort)
}

func announced(ip string, port int) conf.ServerDeclaration {
	return conf.ServerDeclaration{
		PName:   ip + ":" + strconv.Itoa(port),
		Name:    ip,
		Host:    ip,
		Port:    port,
		Weight:  1,
		Network: "tcp",
		Valid:   true,
	}
}
