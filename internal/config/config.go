package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"tapeproxy/pkg/domain"
)

// Config 配置文件结构体
type Config struct {
	Version string `yaml:"version"`
	Control struct {
		Addr string `yaml:"addr"`
	} `yaml:"control"`
	Player struct {
		BaseAddress   string `yaml:"baseAddress"`
		RemoteAddress string `yaml:"remoteAddress"`
		CassettePath  string `yaml:"cassettePath"`
	} `yaml:"player"`
	Sqlite struct {
		Db     string `yaml:"db"`
		Prefix string `yaml:"prefix"`
	} `yaml:"sqlite"`
	Log struct {
		Level  string   `yaml:"level"`
		Writer []string `yaml:"writer"`
	} `yaml:"log"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	cfg := &Config{Version: "1.0.0"}
	cfg.Control.Addr = "127.0.0.1:7455"
	cfg.Sqlite.Db = "history.db"
	cfg.Sqlite.Prefix = "tapeproxy_"
	cfg.Log.Level = "debug"
	cfg.Log.Writer = []string{"console"}
	return cfg
}

// Load 读取并解析 YAML 配置文件，在默认配置之上覆盖
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read config %s: %v", domain.ErrIoFailure, path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config %s: %v", domain.ErrIoFailure, path, err)
	}
	return cfg, nil
}
