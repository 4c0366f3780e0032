package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"tapeproxy/internal/config"
	"tapeproxy/pkg/domain"
)

func TestNewConfig(t *testing.T) {
	cfg := config.NewConfig()
	if cfg.Control.Addr != "127.0.0.1:7455" {
		t.Errorf("control addr got %q", cfg.Control.Addr)
	}
	if cfg.Sqlite.Db != "history.db" || cfg.Sqlite.Prefix != "tapeproxy_" {
		t.Errorf("sqlite defaults got %q %q", cfg.Sqlite.Db, cfg.Sqlite.Prefix)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level got %q", cfg.Log.Level)
	}
	if len(cfg.Log.Writer) != 1 || cfg.Log.Writer[0] != "console" {
		t.Errorf("log writer got %v", cfg.Log.Writer)
	}
}

func TestLoad(t *testing.T) {
	t.Run("覆盖默认配置", func(t *testing.T) {
		doc := `
control:
  addr: "0.0.0.0:9000"
player:
  baseAddress: "http://127.0.0.1:5555/"
  remoteAddress: "http://api.example.com"
  cassettePath: "./tapes/demo.json"
log:
  level: info
`
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
			t.Fatal(err)
		}
		cfg, err := config.Load(path)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Control.Addr != "0.0.0.0:9000" {
			t.Errorf("control addr got %q", cfg.Control.Addr)
		}
		if cfg.Player.BaseAddress != "http://127.0.0.1:5555/" {
			t.Errorf("base address got %q", cfg.Player.BaseAddress)
		}
		if cfg.Log.Level != "info" {
			t.Errorf("log level got %q", cfg.Log.Level)
		}
		// 未出现的字段保留默认值
		if cfg.Sqlite.Prefix != "tapeproxy_" {
			t.Errorf("sqlite prefix got %q", cfg.Sqlite.Prefix)
		}
	})

	t.Run("文件不存在报IO错误", func(t *testing.T) {
		if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, domain.ErrIoFailure) {
			t.Errorf("err got %v, want ErrIoFailure", err)
		}
	})

	t.Run("非法YAML报IO错误", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.yaml")
		if err := os.WriteFile(path, []byte(":\n  - ]["), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := config.Load(path); !errors.Is(err, domain.ErrIoFailure) {
			t.Errorf("err got %v, want ErrIoFailure", err)
		}
	})
}
