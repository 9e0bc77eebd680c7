package proxyerr

import "errors"

// Error classes. Every error returned by the control plane wraps exactly one of them.
var (
	ErrLoad       = errors.New("shardproxy: load")
	ErrDirective  = errors.New("shardproxy: directive")
	ErrValidation = errors.New("shardproxy: validation")
	ErrTransform  = errors.New("shardproxy: transform")
	ErrReconcile  = errors.New("shardproxy: reconcile")
)

var (
	ErrUnknownDirective   = errors.New("unknown directive")
	ErrDuplicateDirective = errors.New("duplicate directive")
	ErrInvalidValue       = errors.New("invalid value")

	ErrNoPools               = errors.New("no pools")
	ErrMissingListen         = errors.New("missing listen")
	ErrNoServers             = errors.New("no servers")
	ErrZeroServerConnections = errors.New("server_connections cannot be 0")
	ErrAuthNotAllowed        = errors.New("redis_auth is only valid for a redis pool")
	ErrMixedServerForms      = errors.New("servers and server groups are mixed")
	ErrDuplicateListen       = errors.New("duplicate listen address")
	ErrDuplicatePool         = errors.New("duplicate pool name")

	ErrBackupMismatch = errors.New("backup servers do not match servers")

	ErrMissingAddress     = errors.New("missing server address")
	ErrMembershipMismatch = errors.New("primary and backup membership differ")
)
