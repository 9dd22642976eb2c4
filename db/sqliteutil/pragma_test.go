package sqliteutil

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPragmasApply(t *testing.T) {
	got := DefaultPragmas.Apply("/tmp/index.sqlite")
	want := "/tmp/index.sqlite?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if again := DefaultPragmas.Apply(got); again != got {
		t.Fatalf("expected idempotent apply, got %s", again)
	}
	if got := DefaultPragmas.Apply(":memory:"); got != ":memory:" {
		t.Fatalf("expected memory dsn unchanged, got %s", got)
	}
	fk := Pragmas{ForeignKeys: true}.Apply("a.db?cache=shared")
	if !strings.HasSuffix(fk, "&_pragma=foreign_keys(1)") {
		t.Fatalf("unexpected dsn %s", fk)
	}
}

func TestFilePath(t *testing.T) {
	if got := FilePath("file:/data/x.sqlite?_pragma=busy_timeout(1)"); got != "/data/x.sqlite" {
		t.Fatalf("unexpected path %s", got)
	}
	if got := FilePath("file::memory:?cache=shared"); got != "" {
		t.Fatalf("expected empty path, got %s", got)
	}
}

func TestPrepareLocation(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "deeper")
	dsn := filepath.Join(dir, "index.sqlite") + "?_pragma=journal_mode(WAL)"
	if err := PrepareLocation(context.Background(), dsn); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("expected directory %s: %v", dir, err)
	}
}

func TestIsConstraint(t *testing.T) {
	if IsConstraint(nil) {
		t.Fatalf("nil is not a constraint error")
	}
	if !IsConstraint(errors.New("UNIQUE constraint failed: items.id")) {
		t.Fatalf("expected message match")
	}
}
