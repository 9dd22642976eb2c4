package sqliteutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// FilePath returns the database file behind dsn, or "" for in-memory DSNs.
func FilePath(dsn string) string {
	if dsn == "" || IsMemory(dsn) {
		return ""
	}
	path := strings.TrimPrefix(dsn, "file:")
	if idx := strings.Index(path, "?"); idx >= 0 {
		path = path[:idx]
	}
	return ExpandHome(path)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// PrepareLocation creates the parent directory of the database file.
func PrepareLocation(ctx context.Context, dsn string) error {
	path := FilePath(dsn)
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	fs := afs.New()
	if ok, _ := fs.Exists(ctx, dir); ok {
		return nil
	}
	if err := fs.Create(ctx, dir, file.DefaultDirOsMode, true); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}

// IsConstraint reports whether err is a SQLite constraint violation.
func IsConstraint(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
