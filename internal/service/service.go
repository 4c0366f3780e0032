package service

import (
	"fmt"
	"sync"

	"tapeproxy/internal/logger"
	"tapeproxy/internal/player"
	"tapeproxy/pkg/domain"
)

type svc struct {
	mu      sync.Mutex
	players map[domain.PlayerID]*player.Player
	log     logger.Logger
	sink    player.DispatchSink
}

// Option 服务层可选配置
type Option func(*svc)

// WithSink 指定分发结果接收器，透传给新建的播放器
func WithSink(sink player.DispatchSink) Option {
	return func(s *svc) {
		s.sink = sink
	}
}

// New 创建并返回服务层实例
func New(l logger.Logger, opts ...Option) *svc {
	if l == nil {
		l = logger.NewNop()
	}
	s := &svc{players: make(map[domain.PlayerID]*player.Player), log: l}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartPlayer 创建播放器并启动监听，返回实例ID
func (s *svc) StartPlayer(cfg domain.PlayerConfig) (domain.PlayerID, error) {
	p, err := player.New(cfg.BaseAddress, cfg.RemoteAddress,
		player.WithLogger(s.log), player.WithSink(s.sink))
	if err != nil {
		return "", err
	}

	if cfg.CassettePath != "" {
		if err := p.LoadCassette(cfg.CassettePath); err != nil {
			return "", err
		}
	}

	if err := p.Start(); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.players[p.ID()] = p
	s.mu.Unlock()

	s.log.Info("创建播放器成功", "player", string(p.ID()),
		"base", cfg.BaseAddress, "remote", cfg.RemoteAddress)
	return p.ID(), nil
}

// LoadCassette 为指定播放器装载磁带
func (s *svc) LoadCassette(id domain.PlayerID, path string) error {
	p, err := s.find(id)
	if err != nil {
		return err
	}
	return p.LoadCassette(path)
}

// Play 让指定播放器进入回放状态
func (s *svc) Play(id domain.PlayerID, name string) error {
	p, err := s.find(id)
	if err != nil {
		return err
	}
	return p.Play(name)
}

// Record 让指定播放器进入录制状态
func (s *svc) Record(id domain.PlayerID, name string) error {
	p, err := s.find(id)
	if err != nil {
		return err
	}
	return p.Record(name)
}

// Stop 结束指定播放器当前的回放或录制
func (s *svc) Stop(id domain.PlayerID) error {
	p, err := s.find(id)
	if err != nil {
		return err
	}
	return p.Stop()
}

// ClosePlayer 关闭并移除指定播放器
func (s *svc) ClosePlayer(id domain.PlayerID) error {
	s.mu.Lock()
	p, ok := s.players[id]
	if ok {
		delete(s.players, id)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrPlayerNotFound, id)
	}

	err := p.Close()
	s.log.Info("播放器已移除", "player", string(id))
	return err
}

// GetPlayer 返回指定播放器视图信息
func (s *svc) GetPlayer(id domain.PlayerID) (domain.PlayerInfo, error) {
	p, err := s.find(id)
	if err != nil {
		return domain.PlayerInfo{}, err
	}
	return p.Info(), nil
}

// ListPlayers 返回所有播放器的视图信息
func (s *svc) ListPlayers() []domain.PlayerInfo {
	s.mu.Lock()
	players := make([]*player.Player, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, p)
	}
	s.mu.Unlock()

	infos := make([]domain.PlayerInfo, 0, len(players))
	for _, p := range players {
		infos = append(infos, p.Info())
	}
	return infos
}

// Close 关闭所有播放器
func (s *svc) Close() error {
	s.mu.Lock()
	players := make([]*player.Player, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, p)
	}
	s.players = make(map[domain.PlayerID]*player.Player)
	s.mu.Unlock()

	var firstErr error
	for _, p := range players {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// find 按ID查找播放器
func (s *svc) find(id domain.PlayerID) (*player.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrPlayerNotFound, id)
	}
	return p, nil
}
