package db

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"
)

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"010_report_indexes.sql":        {Data: []byte("SELECT 10;")},
		"002_report_artifact.sql":       {Data: []byte("SELECT 2;")},
		"001_consultation_report.sql":   {Data: []byte("CREATE TABLE patient (id UUID PRIMARY KEY);")},
		"readme.sql":                    {Data: []byte("-- no version prefix")},
		"abc_invalid.sql":               {Data: []byte("-- non-numeric prefix")},
		"notes.txt":                     {Data: []byte("not sql")},
		"archive/003_old_something.sql": {Data: []byte("SELECT 3;")},
	}

	migrations, err := NewMigratorFS(nil, fsys).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}

	want := []int{1, 2, 10}
	if len(migrations) != len(want) {
		t.Fatalf("expected %d migrations, got %d", len(want), len(migrations))
	}
	for i, v := range want {
		if migrations[i].Version != v {
			t.Errorf("migration[%d]: expected version %d, got %d", i, v, migrations[i].Version)
		}
	}
	if migrations[0].Name != "001_consultation_report.sql" {
		t.Errorf("unexpected name %s", migrations[0].Name)
	}
	if !strings.HasPrefix(migrations[0].SQL, "CREATE TABLE patient") {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"001_a.sql":  {Data: []byte("SELECT 1;")},
		"0001_b.sql": {Data: []byte("SELECT 1;")},
	}
	if _, err := NewMigratorFS(nil, fsys).LoadMigrations(); err == nil {
		t.Error("expected error for duplicate versions")
	}
}

func TestLoadMigrations_FromDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "001_core.sql"), []byte("SELECT 1;"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 1 || migrations[0].Version != 1 {
		t.Errorf("unexpected migrations %+v", migrations)
	}
}

func TestLoadMigrations_EmptyDir(t *testing.T) {
	migrations, err := NewMigrator(nil, t.TempDir()).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected 0 migrations from empty dir, got %d", len(migrations))
	}
}

func TestLoadMigrations_NonExistentDir(t *testing.T) {
	if _, err := NewMigrator(nil, "/nonexistent/path/to/migrations").LoadMigrations(); err == nil {
		t.Error("expected error for non-existent directory")
	}
}

func TestPendingAndStatus(t *testing.T) {
	migrations := []Migration{
		{Version: 1, Name: "001_consultation_report.sql"},
		{Version: 2, Name: "002_report_artifact.sql"},
		{Version: 3, Name: "003_indexes.sql"},
	}
	appliedAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	applied := map[int]time.Time{1: appliedAt}

	p := pending(migrations, applied)
	if len(p) != 2 || p[0].Version != 2 || p[1].Version != 3 {
		t.Errorf("unexpected pending set %+v", p)
	}

	st := statusOf(migrations, applied)
	if len(st) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(st))
	}
	if !st[0].Applied || st[0].AppliedAt == nil || !st[0].AppliedAt.Equal(appliedAt) {
		t.Errorf("expected first migration applied at %v, got %+v", appliedAt, st[0])
	}
	for _, s := range st[1:] {
		if s.Applied || s.AppliedAt != nil {
			t.Errorf("expected %s pending, got %+v", s.Name, s)
		}
	}
}
