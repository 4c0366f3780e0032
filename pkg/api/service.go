package api

import (
	"tapeproxy/internal/logger"
	"tapeproxy/internal/service"
	"tapeproxy/pkg/domain"
)

// Service 服务接口
type Service interface {
	// StartPlayer 创建播放器并启动监听
	StartPlayer(cfg domain.PlayerConfig) (domain.PlayerID, error)

	// LoadCassette 为指定播放器装载磁带
	LoadCassette(id domain.PlayerID, path string) error

	// Play 进入回放状态
	Play(id domain.PlayerID, name string) error

	// Record 进入录制状态
	Record(id domain.PlayerID, name string) error

	// Stop 结束当前回放或录制
	Stop(id domain.PlayerID) error

	// ClosePlayer 关闭并移除播放器
	ClosePlayer(id domain.PlayerID) error

	// GetPlayer 查询播放器状态
	GetPlayer(id domain.PlayerID) (domain.PlayerInfo, error)

	// ListPlayers 列出所有播放器
	ListPlayers() []domain.PlayerInfo

	// Close 关闭所有播放器
	Close() error
}

// NewService 创建并返回服务接口实现
func NewService(l logger.Logger, opts ...service.Option) Service {
	return service.New(l, opts...)
}
