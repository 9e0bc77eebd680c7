package stats

type Status string

const (
	// StatusOK is used for health-check responses.
	StatusOK Status = "OK"

	// StatusError indicates a request failed.
	StatusError Status = "error"
)

// Response is the envelope of non-snapshot answers.
type Response struct {
	Status    Status `json:"status,omitempty"`
	Source    string `json:"source,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}

func NewOKResponse(source string, ts int64) Response {
	return Response{Status: StatusOK, Source: source, Timestamp: ts}
}

func NewErrorResponse(err string) Response {
	return Response{Status: StatusError, Error: err}
}

// Snapshot is the aggregated view of every pool.
type Snapshot struct {
	Source    string      `json:"source"`
	Timestamp int64       `json:"timestamp"`
	Pools     []PoolStats `json:"pools"`
}

type PoolStats struct {
	Name         string        `json:"name"`
	Listen       string        `json:"listen"`
	Hash         string        `json:"hash"`
	Distribution string        `json:"distribution"`
	Servers      []ServerStats `json:"servers"`
	Backups      []ServerStats `json:"backup_servers"`
	Fingerprints int           `json:"fingerprints"`
	Admissions   int64         `json:"admissions"`
	Version      uint64        `json:"version"`
}

type ServerStats struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Weight  int    `json:"weight"`
}
