package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/gorm"

	"tapeproxy/internal/config"
	"tapeproxy/internal/httpapi"
	"tapeproxy/internal/logger"
	"tapeproxy/internal/service"
	"tapeproxy/internal/storage/db"
	"tapeproxy/internal/storage/model"
	"tapeproxy/internal/storage/repo"
	"tapeproxy/pkg/api"
	"tapeproxy/pkg/domain"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径，缺省使用内置默认值")
	flag.Parse()

	cfg := config.NewConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			os.Stderr.WriteString("load config: " + err.Error() + "\n")
			os.Exit(1)
		}
		cfg = loaded
	}

	log := logger.New(cfg)
	log.Info("应用启动", "version", cfg.Version, "control", cfg.Control.Addr)

	// 历史存储，初始化失败时降级为不落历史
	var (
		gdb          *gorm.DB
		dispatchRepo *repo.DispatchRepo
	)
	if opened, err := db.Open(cfg.Sqlite.Db, cfg.Sqlite.Prefix, log); err != nil {
		log.Err(err, "历史库初始化失败，不记录分发历史")
	} else if err := opened.AutoMigrate(&model.DispatchRecord{}); err != nil {
		log.Err(err, "历史库迁移失败，不记录分发历史")
		if sqlDB, derr := opened.DB(); derr == nil {
			_ = sqlDB.Close()
		}
	} else {
		gdb = opened
		dispatchRepo = repo.NewDispatchRepo(gdb)
		log.Debug("历史库就绪", "db", cfg.Sqlite.Db)
	}

	opts := make([]service.Option, 0, 1)
	if dispatchRepo != nil {
		opts = append(opts, service.WithSink(dispatchRepo))
	}
	svc := api.NewService(log, opts...)

	// 按配置预建一个播放器
	if cfg.Player.BaseAddress != "" && cfg.Player.RemoteAddress != "" {
		id, err := svc.StartPlayer(domain.PlayerConfig{
			BaseAddress:   cfg.Player.BaseAddress,
			RemoteAddress: cfg.Player.RemoteAddress,
			CassettePath:  cfg.Player.CassettePath,
		})
		if err != nil {
			log.Err(err, "创建预置播放器失败", "base", cfg.Player.BaseAddress)
		} else {
			log.Info("预置播放器就绪", "player", string(id))
		}
	}

	var history httpapi.History
	if dispatchRepo != nil {
		history = dispatchRepo
	}
	ctrl := &http.Server{
		Addr:    cfg.Control.Addr,
		Handler: httpapi.NewServer(svc, history),
	}
	go func() {
		if err := ctrl.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Err(err, "控制接口监听退出", "addr", cfg.Control.Addr)
		}
	}()
	log.Info("控制接口已启动", "addr", cfg.Control.Addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("应用关闭中...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ctrl.Shutdown(shutdownCtx); err != nil {
		log.Warn("控制接口关闭失败", "error", err)
	}

	if err := svc.Close(); err != nil {
		log.Warn("关闭播放器失败", "error", err)
	}

	if dispatchRepo != nil {
		dispatchRepo.Stop()
	}
	if gdb != nil {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	log.Info("应用已关闭")
}
