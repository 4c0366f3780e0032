package db_test

import (
	"path/filepath"
	"strings"
	"testing"

	"tapeproxy/internal/storage/db"
	dbmodel "tapeproxy/internal/storage/model"
)

func TestDefaultPath(t *testing.T) {
	path, err := db.DefaultPath("history.db")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(path, filepath.Join("tapeproxy", "history.db")) {
		t.Errorf("path got %q, want .../tapeproxy/history.db", path)
	}
}

func TestOpenAndMigrate(t *testing.T) {
	gdb, err := db.Open(filepath.Join(t.TempDir(), "history.db"), "tapeproxy_", nil)
	if err != nil {
		t.Fatal(err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatal(err)
	}
	defer sqlDB.Close()

	if err := gdb.AutoMigrate(&dbmodel.DispatchRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	t.Run("表名带前缀且为单数", func(t *testing.T) {
		var name string
		row := sqlDB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='tapeproxy_dispatch_record'")
		if err := row.Scan(&name); err != nil {
			t.Errorf("dispatch table missing: %v", err)
		}
	})

	t.Run("分发记录可写入读回", func(t *testing.T) {
		rec := dbmodel.DispatchRecord{
			PlayerID:   "p1",
			TraceID:    "t1",
			Mode:       "playing",
			Method:     "GET",
			URI:        "http://up/a",
			StatusCode: 200,
			Outcome:    "replayed",
			Timestamp:  1,
		}
		if err := gdb.Create(&rec).Error; err != nil {
			t.Fatal(err)
		}
		var got dbmodel.DispatchRecord
		if err := gdb.First(&got, rec.ID).Error; err != nil {
			t.Fatal(err)
		}
		if got.PlayerID != "p1" || got.Outcome != "replayed" || got.URI != "http://up/a" {
			t.Errorf("row got %+v", got)
		}
	})
}

func TestOpenCreatesNestedDirectory(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "state", "history", "history.db")
	gdb, err := db.Open(nested, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatal(err)
	}
	defer sqlDB.Close()
	if err := sqlDB.Ping(); err != nil {
		t.Errorf("ping: %v", err)
	}
}
