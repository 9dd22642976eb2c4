package recordstore

import (
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/viant/bigquery"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	// DriverBigQuery opens a read-only article source maintained elsewhere.
	DriverBigQuery = "bigquery"
)

// DetectDriver infers the database/sql driver from a DSN.
func DetectDriver(dsn string) (string, bool) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", false
	}
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DriverPostgres, true
	case strings.HasPrefix(lower, "mysql://"):
		return DriverMySQL, true
	case strings.HasPrefix(lower, "bigquery://"), strings.HasPrefix(lower, "bq://"):
		return DriverBigQuery, true
	case strings.HasPrefix(lower, "file:"), lower == ":memory:", strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".db"):
		return DriverSQLite, true
	case strings.Contains(lower, "@tcp("), strings.Contains(lower, "@unix("):
		return DriverMySQL, true
	}
	return "", false
}

// NormalizeDSN strips the URL scheme the MySQL driver does not accept and
// expands the bq:// shorthand.
func NormalizeDSN(driver, dsn string) string {
	lower := strings.ToLower(dsn)
	switch {
	case driver == DriverMySQL && strings.HasPrefix(lower, "mysql://"):
		return dsn[len("mysql://"):]
	case driver == DriverBigQuery && strings.HasPrefix(lower, "bq://"):
		return "bigquery://" + dsn[len("bq://"):]
	}
	return dsn
}

// rebind rewrites ? placeholders for drivers using numbered parameters.
func rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
