package conf

import (
	"net"
	"os"
	"strconv"
	"strings"

	"shardproxy/pkg/hashkit"
	"shardproxy/pkg/proxyerr"
)

// DefaultKetamaPort is left out of default server names so that keys hash
// the same way they do in libmemcached.
const DefaultKetamaPort = 11211

// setter applies one directive value to a pool.
type setter func(p *PoolDeclaration, value string) error

// fault is a setter failure; the parser adds the file, pool and directive.
type fault struct {
	detail error
	reason string
}

func (f *fault) Error() string { return f.reason }

func duplicate() error {
	return &fault{detail: proxyerr.ErrDuplicateDirective, reason: "is a duplicate"}
}

func invalid(reason string) error {
	return &fault{detail: proxyerr.ErrInvalidValue, reason: reason}
}

var commands = map[string]setter{
	"listen":               setListen,
	"hash":                 setEnum(hashkit.AlgoNames(), func(p *PoolDeclaration) *hashkit.Algo { return &p.Hash }, "is not a valid hash"),
	"hash_tag":             setHashTag,
	"distribution":         setEnum(hashkit.DistributionNames(), func(p *PoolDeclaration) *hashkit.Distribution { return &p.Distribution }, "is not a valid distribution"),
	"timeout":              setNum(func(p *PoolDeclaration) *int { return &p.Timeout }),
	"backlog":              setNum(func(p *PoolDeclaration) *int { return &p.Backlog }),
	"client_connections":   setNum(func(p *PoolDeclaration) *int { return &p.ClientConnections }),
	"protocol":             setEnum(ProtocolNames(), func(p *PoolDeclaration) *Protocol { return &p.Protocol }, "protocol error"),
	"tcpkeepalive":         setBool(func(p *PoolDeclaration) *TriBool { return &p.TCPKeepalive }),
	"redis_auth":           setString(func(p *PoolDeclaration) *string { return &p.RedisAuth }),
	"redis_db":             setNum(func(p *PoolDeclaration) *int { return &p.RedisDB }),
	"preconnect":           setBool(func(p *PoolDeclaration) *TriBool { return &p.Preconnect }),
	"master":               setBool(func(p *PoolDeclaration) *TriBool { return &p.Master }),
	"auto_eject_hosts":     setBool(func(p *PoolDeclaration) *TriBool { return &p.AutoEjectHosts }),
	"server_connections":   setNum(func(p *PoolDeclaration) *int { return &p.ServerConnections }),
	"server_retry_timeout": setNum(func(p *PoolDeclaration) *int { return &p.ServerRetryTimeout }),
	"server_failure_limit": setNum(func(p *PoolDeclaration) *int { return &p.ServerFailureLimit }),
	"servers":              appendServer,
	"backupservers":        appendPlain(func(p *PoolDeclaration) *[]ServerDeclaration { return &p.BackupServers }),
	"zookeeperservers":     appendPlain(func(p *PoolDeclaration) *[]ServerDeclaration { return &p.RegistryServers }),
}

// Directives returns the names the command table accepts.
func Directives() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	return names
}

func setString(field func(*PoolDeclaration) *string) setter {
	return func(p *PoolDeclaration, value string) error {
		sp := field(p)
		if *sp != "" {
			return duplicate()
		}
		*sp = value
		return nil
	}
}

func setHashTag(p *PoolDeclaration, value string) error {
	if p.HashTag != "" {
		return duplicate()
	}
	if len(value) != 2 {
		return invalid("is not a valid hash tag string with two characters")
	}
	p.HashTag = value
	return nil
}

func setNum(field func(*PoolDeclaration) *int) setter {
	return func(p *PoolDeclaration, value string) error {
		np := field(p)
		if *np != UnsetNum {
			return duplicate()
		}
		n, ok := atoi(value)
		if !ok {
			return invalid("is not a number")
		}
		*np = n
		return nil
	}
}

func setBool(field func(*PoolDeclaration) *TriBool) setter {
	return func(p *PoolDeclaration, value string) error {
		bp := field(p)
		if bp.IsSet() {
			return duplicate()
		}
		switch value {
		case "true":
			*bp = True
		case "false":
			*bp = False
		default:
			return invalid(`is not "true" or "false"`)
		}
		return nil
	}
}

// setEnum stores the table index of value. The index is the selector used
// by the runtime lookup tables.
func setEnum[T ~int](names []string, field func(*PoolDeclaration) *T, reason string) setter {
	return func(p *PoolDeclaration, value string) error {
		ep := field(p)
		if int(*ep) != UnsetNum {
			return duplicate()
		}
		for i, name := range names {
			if name == value {
				*ep = T(i)
				return nil
			}
		}
		return invalid(reason)
	}
}

func setListen(p *PoolDeclaration, value string) error {
	l := &p.Listen
	if l.Valid {
		return duplicate()
	}

	decl := ListenDeclaration{PName: value}
	if strings.HasPrefix(value, "/") {
		// "socket_path [permissions]"
		decl.Network = "unix"
		decl.Host = value
		if i := strings.LastIndexByte(value, ' '); i >= 0 {
			decl.Host = strings.TrimRight(value[:i], " ")
			perm, err := strconv.ParseUint(value[i+1:], 8, 32)
			if err != nil || perm > 0o777 {
				return invalid(`has an invalid file permission in "socket_path permission" format string`)
			}
			decl.Perm = os.FileMode(perm)
		}
		addr, err := net.ResolveUnixAddr("unix", decl.Host)
		if err != nil {
			return invalid("has an unresolvable socket path: " + err.Error())
		}
		decl.Addr = addr
	} else {
		// "hostname:port", split at the last colon
		i := strings.LastIndexByte(value, ':')
		if i < 0 {
			return invalid(`has an invalid "hostname:port" format string`)
		}
		port, ok := atoi(value[i+1:])
		if !ok || !validPort(port) {
			return invalid(`has an invalid port in "hostname:port" format string`)
		}
		decl.Network = "tcp"
		decl.Host = value[:i]
		decl.Port = port
		addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(decl.Host, strconv.Itoa(port)))
		if err != nil {
			return invalid("has an unresolvable address: " + err.Error())
		}
		decl.Addr = addr
	}

	decl.Valid = true
	*l = decl
	return nil
}

// appendServer handles one "servers" entry. A single address, optionally
// followed by a name, is a plain server. Two or more addresses, or an entry
// ending in "loop", is a server group. A second token that does not parse as
// an address is a name, even when it contains ':'.
func appendServer(p *PoolDeclaration, value string) error {
	tokens := strings.Fields(value)
	if len(tokens) == 0 {
		return invalid(`has an invalid "hostname:port:weight [name]" format string`)
	}

	plain := len(tokens) == 1 ||
		len(tokens) == 2 && !(isGroupMember(tokens[0]) && isGroupMember(tokens[1]))
	if plain && tokens[len(tokens)-1] != "loop" {
		s, err := parseServer(value)
		if err != nil {
			return err
		}
		p.Servers = append(p.Servers, s)
		return nil
	}

	group, err := parseServerGroup(tokens)
	if err != nil {
		return err
	}
	p.ServerGroups = append(p.ServerGroups, group)
	return nil
}

func appendPlain(field func(*PoolDeclaration) *[]ServerDeclaration) setter {
	return func(p *PoolDeclaration, value string) error {
		s, err := parseServer(value)
		if err != nil {
			return err
		}
		list := field(p)
		*list = append(*list, s)
		return nil
	}
}

func isAddressToken(tk string) bool {
	return strings.HasPrefix(tk, "/") || strings.Contains(tk, ":")
}

// isGroupMember reports whether tk is a complete "hostname:port:weight" or
// "/path:weight" address.
func isGroupMember(tk string) bool {
	if !isAddressToken(tk) {
		return false
	}
	_, err := parseServer(tk)
	return err == nil
}

func parseServerGroup(tokens []string) (ServerGroupDeclaration, error) {
	var group ServerGroupDeclaration
	for i, tk := range tokens {
		if tk == "loop" && i == len(tokens)-1 {
			group.Loop = true
			break
		}
		if !isAddressToken(tk) {
			return ServerGroupDeclaration{}, invalid(`has an invalid token "` + tk + `" in "hostname:port:weight ... [loop]" format string`)
		}
		s, err := parseServer(tk)
		if err != nil {
			return ServerGroupDeclaration{}, err
		}
		group.Servers = append(group.Servers, s)
	}
	if len(group.Servers) == 0 {
		return ServerGroupDeclaration{}, invalid(`has no servers in "hostname:port:weight ... [loop]" format string`)
	}
	return group, nil
}

const serverFormat = `"hostname:port:weight [name]" or "/path/unix_socket:weight [name]" format string`

// parseServer reads "hostname:port:weight [name]" or
// "/path/unix_socket:weight [name]" from the end.
func parseServer(value string) (ServerDeclaration, error) {
	rest := strings.TrimSpace(value)
	var name string
	if i := strings.LastIndexByte(rest, ' '); i >= 0 {
		name = rest[i+1:]
		rest = strings.TrimRight(rest[:i], " ")
	}

	i := strings.LastIndexByte(rest, ':')
	if i < 0 {
		return ServerDeclaration{}, invalid("has an invalid " + serverFormat)
	}
	weightStr, addr := rest[i+1:], rest[:i]

	s := ServerDeclaration{Network: "tcp"}
	if strings.HasPrefix(rest, "/") {
		s.Network = "unix"
		s.Host = addr
		s.PName = addr
	} else {
		j := strings.LastIndexByte(addr, ':')
		if j <= 0 {
			return ServerDeclaration{}, invalid("has an invalid " + serverFormat)
		}
		port, ok := atoi(addr[j+1:])
		if !ok || !validPort(port) {
			return ServerDeclaration{}, invalid(`has an invalid port in "hostname:port:weight [name]" format string`)
		}
		s.Host = addr[:j]
		s.Port = port
		s.PName = addr
	}

	weight, ok := atoi(weightStr)
	if !ok {
		return ServerDeclaration{}, invalid(`has an invalid weight in "hostname:port:weight [name]" format string`)
	}
	if weight == 0 {
		return ServerDeclaration{}, invalid(`has a zero weight in "hostname:port:weight [name]" format string`)
	}
	s.Weight = weight

	switch {
	case name != "":
		s.Name = name
	case s.Port == DefaultKetamaPort:
		s.Name = s.Host
	default:
		s.Name = s.PName
	}

	s.Valid = true
	return s, nil
}

// atoi accepts only non-empty decimal digits.
func atoi(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func validPort(port int) bool {
	return port > 0 && port <= 65535
}
