package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	glog "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"tapeproxy/internal/logger"
	"tapeproxy/pkg/domain"
)

// Open 打开 sqlite 历史库，文件与父目录不存在时创建。
// name 为绝对路径时直接使用，否则放到用户配置目录的 tapeproxy 子目录下。
func Open(name, tablePrefix string, log logger.Logger) (*gorm.DB, error) {
	if log == nil {
		log = logger.NewNop()
	}

	path := name
	if !filepath.IsAbs(path) {
		p, err := DefaultPath(name)
		if err != nil {
			return nil, err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create db directory for %s: %v", domain.ErrIoFailure, path, err)
	}

	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: queryLogger{l: log, slow: time.Second},
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   tablePrefix,
			SingularTable: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite %s: %v", domain.ErrIoFailure, path, err)
	}

	// sqlite 单写者，串行化连接避免 busy 竞争
	if sqlDB, err := gdb.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	return gdb, nil
}

// DefaultPath 返回历史库在用户配置目录下的默认位置
func DefaultPath(name string) (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("%w: resolve user config dir: %v", domain.ErrIoFailure, err)
	}
	return filepath.Join(base, "tapeproxy", name), nil
}

// queryLogger 把 GORM 日志并入项目日志，只保留错误与慢查询
type queryLogger struct {
	l    logger.Logger
	slow time.Duration
}

func (q queryLogger) LogMode(glog.LogLevel) glog.Interface { return q }

func (q queryLogger) Info(_ context.Context, _ string, _ ...any) {}

func (q queryLogger) Warn(_ context.Context, msg string, args ...any) {
	q.l.Warn(msg, "detail", fmt.Sprint(args...))
}

func (q queryLogger) Error(_ context.Context, msg string, args ...any) {
	q.l.Error(msg, "detail", fmt.Sprint(args...))
}

func (q queryLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		sql, rows := fc()
		q.l.Err(err, "历史库SQL失败", "sql", sql, "rows", rows)
		return
	}
	if elapsed := time.Since(begin); elapsed > q.slow {
		sql, _ := fc()
		q.l.Warn("历史库慢查询", "sql", sql, "elapsedMs", elapsed.Milliseconds())
	}
}
