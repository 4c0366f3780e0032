package repo_test

import (
	"path/filepath"
	"testing"
	"time"

	"tapeproxy/internal/storage/db"
	dbmodel "tapeproxy/internal/storage/model"
	"tapeproxy/internal/storage/repo"
	"tapeproxy/pkg/domain"
)

func newDispatchRepo(t *testing.T) *repo.DispatchRepo {
	t.Helper()
	gdb, err := db.Open(filepath.Join(t.TempDir(), "dispatch_test.db"), "test_", nil)
	if err != nil {
		t.Fatalf("初始化数据库失败: %v", err)
	}
	if err := gdb.AutoMigrate(&dbmodel.DispatchRecord{}); err != nil {
		t.Fatalf("迁移失败: %v", err)
	}
	r := repo.NewDispatchRepo(gdb)
	t.Cleanup(func() {
		r.Stop()
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return r
}

func outcome(player, outc, method, uri string) domain.DispatchOutcome {
	return domain.DispatchOutcome{
		Player:     domain.PlayerID(player),
		TraceID:    "trace-" + player,
		Mode:       "playing",
		RecordName: "case",
		Method:     method,
		URI:        uri,
		StatusCode: 200,
		Outcome:    outc,
		Timestamp:  time.Now().UnixMilli(),
	}
}

func TestDispatchRecordAndQuery(t *testing.T) {
	r := newDispatchRepo(t)

	r.RecordDispatch(outcome("p1", "replayed", "GET", "http://up/a"))
	r.RecordDispatch(outcome("p1", "mismatch", "POST", "http://up/b"))
	r.RecordDispatch(outcome("p2", "recorded", "GET", "http://up/c"))
	r.Flush()

	t.Run("按播放器过滤", func(t *testing.T) {
		records, total, err := r.Query(repo.QueryOptions{PlayerID: "p1"})
		if err != nil {
			t.Fatal(err)
		}
		if total != 2 || len(records) != 2 {
			t.Errorf("total got %d, records got %d, want 2", total, len(records))
		}
		for _, rec := range records {
			if rec.PlayerID != "p1" {
				t.Errorf("player got %q, want p1", rec.PlayerID)
			}
		}
	})

	t.Run("按结果过滤", func(t *testing.T) {
		records, total, err := r.Query(repo.QueryOptions{Outcome: "mismatch"})
		if err != nil {
			t.Fatal(err)
		}
		if total != 1 {
			t.Fatalf("total got %d, want 1", total)
		}
		if records[0].Method != "POST" {
			t.Errorf("method got %q, want POST", records[0].Method)
		}
	})

	t.Run("URI模糊匹配", func(t *testing.T) {
		_, total, err := r.Query(repo.QueryOptions{URI: "up/c"})
		if err != nil {
			t.Fatal(err)
		}
		if total != 1 {
			t.Errorf("total got %d, want 1", total)
		}
	})

	t.Run("无条件返回全部", func(t *testing.T) {
		_, total, err := r.Query(repo.QueryOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if total != 3 {
			t.Errorf("total got %d, want 3", total)
		}
	})

	t.Run("分页限制", func(t *testing.T) {
		records, total, err := r.Query(repo.QueryOptions{Limit: 2})
		if err != nil {
			t.Fatal(err)
		}
		if total != 3 || len(records) != 2 {
			t.Errorf("total got %d, records got %d", total, len(records))
		}
	})
}

func TestDispatchQueryTimeRange(t *testing.T) {
	r := newDispatchRepo(t)

	base := time.Now().UnixMilli()
	for i, ts := range []int64{base - 2000, base - 1000, base} {
		o := outcome("p1", "replayed", "GET", "http://up/a")
		o.TraceID = "t" + string(rune('0'+i))
		o.Timestamp = ts
		r.RecordDispatch(o)
	}
	r.Flush()

	records, total, err := r.Query(repo.QueryOptions{StartTime: base - 1000, EndTime: base - 1})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Fatalf("total got %d, want 1", total)
	}
	if records[0].Timestamp != base-1000 {
		t.Errorf("timestamp got %d, want %d", records[0].Timestamp, base-1000)
	}

	// 结果按时间倒序
	all, _, err := r.Query(repo.QueryOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Timestamp != base {
		t.Errorf("expected newest first, got %v", all)
	}
}

func TestDispatchDelete(t *testing.T) {
	r := newDispatchRepo(t)

	r.RecordDispatch(outcome("p1", "replayed", "GET", "http://up/a"))
	r.RecordDispatch(outcome("p2", "recorded", "GET", "http://up/b"))
	r.Flush()

	t.Run("按播放器删除", func(t *testing.T) {
		if err := r.DeleteByPlayer("p1"); err != nil {
			t.Fatal(err)
		}
		_, total, err := r.Query(repo.QueryOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if total != 1 {
			t.Errorf("total got %d, want 1", total)
		}
	})

	t.Run("删除旧记录", func(t *testing.T) {
		old := outcome("p3", "error", "GET", "http://up/old")
		old.Timestamp = time.Now().AddDate(0, 0, -30).UnixMilli()
		r.RecordDispatch(old)
		r.Flush()

		deleted, err := r.CleanupOldRecords(7)
		if err != nil {
			t.Fatal(err)
		}
		if deleted != 1 {
			t.Errorf("deleted got %d, want 1", deleted)
		}
	})

	t.Run("清空全部", func(t *testing.T) {
		if err := r.ClearAll(); err != nil {
			t.Fatal(err)
		}
		_, total, err := r.Query(repo.QueryOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if total != 0 {
			t.Errorf("total got %d, want 0", total)
		}
	})
}
