package cassette_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"tapeproxy/internal/cassette"
	"tapeproxy/pkg/domain"
)

func TestCassetteNew(t *testing.T) {
	t.Run("文件不存在时集合为空", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing.json")
		c, err := cassette.New(path)
		if err != nil {
			t.Fatal(err)
		}
		if len(c.Names()) != 0 {
			t.Errorf("names got %v, want empty", c.Names())
		}
	})

	t.Run("非法JSON报IO错误", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.json")
		if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := cassette.New(path); !errors.Is(err, domain.ErrIoFailure) {
			t.Errorf("err got %v, want ErrIoFailure", err)
		}
	})

	t.Run("保留文件中的记录顺序", func(t *testing.T) {
		doc := `{
  "zeta": [],
  "alpha": [],
  "mid": []
}`
		path := filepath.Join(t.TempDir(), "tape.json")
		if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
			t.Fatal(err)
		}
		c, err := cassette.New(path)
		if err != nil {
			t.Fatal(err)
		}
		names := c.Names()
		want := []string{"zeta", "alpha", "mid"}
		if len(names) != len(want) {
			t.Fatalf("names got %v", names)
		}
		for i := range want {
			if names[i] != want[i] {
				t.Errorf("names[%d] got %q, want %q", i, names[i], want[i])
			}
		}
	})
}

func TestCassetteSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tape.json")
	c, err := cassette.New(path)
	if err != nil {
		t.Fatal(err)
	}

	rec := cassette.NewRecord("登录流程")
	rec.Write(exchange("POST", "http://up/login"))
	rec.Write(exchange("GET", "http://up/profile"))
	if err := c.Save(rec); err != nil {
		t.Fatal(err)
	}

	reloaded, err := cassette.New(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reloaded.Contains("登录流程") {
		t.Fatalf("record missing after reload, names: %v", reloaded.Names())
	}

	got := reloaded.Find("登录流程")
	if got == nil {
		t.Fatal("find returned nil")
	}
	if got.Len() != 2 {
		t.Errorf("len got %d, want 2", got.Len())
	}
	first, err := got.Read()
	if err != nil {
		t.Fatal(err)
	}
	if first.Request.Method != "POST" || first.Request.URI != "http://up/login" {
		t.Errorf("first exchange got %s %s", first.Request.Method, first.Request.URI)
	}
}

func TestCassetteSaveReplacesRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tape.json")
	c, err := cassette.New(path)
	if err != nil {
		t.Fatal(err)
	}

	old := cassette.NewRecord("case")
	old.Write(exchange("GET", "http://up/old"))
	if err := c.Save(old); err != nil {
		t.Fatal(err)
	}

	updated := cassette.NewRecord("case")
	updated.Write(exchange("GET", "http://up/new"))
	updated.Write(exchange("GET", "http://up/new2"))
	if err := c.Save(updated); err != nil {
		t.Fatal(err)
	}

	reloaded, err := cassette.New(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(reloaded.Names()) != 1 {
		t.Fatalf("names got %v, want single record", reloaded.Names())
	}
	rec := reloaded.Find("case")
	if rec.Len() != 2 {
		t.Errorf("len got %d, want 2", rec.Len())
	}
	first, _ := rec.Read()
	if first.Request.URI != "http://up/new" {
		t.Errorf("first got %q, want replaced content", first.Request.URI)
	}
}

func TestCassetteFindIndependentCursors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tape.json")
	c, err := cassette.New(path)
	if err != nil {
		t.Fatal(err)
	}
	rec := cassette.NewRecord("case")
	rec.Write(exchange("GET", "http://up/a"))
	if err := c.Save(rec); err != nil {
		t.Fatal(err)
	}

	first := c.Find("case")
	second := c.Find("case")
	if _, err := first.Read(); err != nil {
		t.Fatal(err)
	}
	// 第一个实例的游标推进不影响第二个
	if _, err := second.Read(); err != nil {
		t.Errorf("second cursor affected by first: %v", err)
	}

	if c.Find("missing") != nil {
		t.Error("find of missing record should return nil")
	}
}

func TestCassetteSaveCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "tape.json")
	c, err := cassette.New(path)
	if err != nil {
		t.Fatal(err)
	}
	rec := cassette.NewRecord("case")
	rec.Write(exchange("GET", "http://up/a"))
	if err := c.Save(rec); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("cassette file not created: %v", err)
	}
}
