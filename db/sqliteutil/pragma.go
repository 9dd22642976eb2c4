package sqliteutil

import (
	"fmt"
	"strings"
)

// Pragmas lists connection pragmas carried on a modernc DSN.
type Pragmas struct {
	WAL           bool
	BusyTimeoutMS int
	ForeignKeys   bool
	// TxLock selects the BEGIN mode (deferred, immediate, exclusive).
	TxLock string
}

// DefaultPragmas lets readers proceed while a single writer holds the lock
// and waits out short write contention.
var DefaultPragmas = Pragmas{WAL: true, BusyTimeoutMS: 5000, TxLock: "immediate"}

// Apply appends the pragmas missing from dsn. In-memory DSNs are returned
// unchanged.
func (p Pragmas) Apply(dsn string) string {
	if dsn == "" || IsMemory(dsn) {
		return dsn
	}
	lower := strings.ToLower(dsn)
	if p.WAL && !strings.Contains(lower, "_pragma=journal_mode") {
		dsn = addPragma(dsn, "journal_mode(WAL)")
	}
	if p.BusyTimeoutMS > 0 && !strings.Contains(lower, "_pragma=busy_timeout") {
		dsn = addPragma(dsn, fmt.Sprintf("busy_timeout(%d)", p.BusyTimeoutMS))
	}
	if p.ForeignKeys && !strings.Contains(lower, "_pragma=foreign_keys") {
		dsn = addPragma(dsn, "foreign_keys(1)")
	}
	if p.TxLock != "" && !strings.Contains(lower, "_txlock=") {
		dsn = addParam(dsn, "_txlock="+p.TxLock)
	}
	return dsn
}

// IsMemory reports whether dsn names an in-memory database.
func IsMemory(dsn string) bool {
	lower := strings.ToLower(dsn)
	return dsn == ":memory:" || strings.HasPrefix(lower, "file::memory:") || strings.Contains(lower, "mode=memory")
}

func addPragma(dsn, pragma string) string {
	return addParam(dsn, "_pragma="+pragma)
}

func addParam(dsn, param string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + param
}
