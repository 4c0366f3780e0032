package player

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tapeproxy/internal/cassette"
	"tapeproxy/internal/logger"
	"tapeproxy/internal/mock"
	"tapeproxy/pkg/domain"
)

// DispatchSink 接收每次代理分发的结果，用于落历史记录
type DispatchSink interface {
	// RecordDispatch 记录一次分发结果
	RecordDispatch(outcome domain.DispatchOutcome)
}

// Player 录制/回放代理播放器。
// 一个实例监听一个本地地址，按状态机决定把测试请求转发到真实上游（录制）
// 还是从磁带记录中回放。所有状态读写与请求分发都串行在同一把锁下进行。
type Player struct {
	mu    sync.Mutex
	state domain.State

	id       domain.PlayerID
	base     string
	baseURL  *url.URL
	upstream *mock.Upstream
	client   *http.Client

	cas *cassette.Cassette
	rec *cassette.Record

	srv *http.Server
	ln  net.Listener

	log  logger.Logger
	sink DispatchSink
}

// Option 播放器可选配置
type Option func(*Player)

// WithLogger 指定日志组件
func WithLogger(l logger.Logger) Option {
	return func(p *Player) {
		if l != nil {
			p.log = l
		}
	}
}

// WithSink 指定分发结果接收器
func WithSink(s DispatchSink) Option {
	return func(p *Player) {
		p.sink = s
	}
}

// WithClient 指定转发上游时使用的 HTTP 客户端
func WithClient(c *http.Client) Option {
	return func(p *Player) {
		if c != nil {
			p.client = c
		}
	}
}

// New 创建播放器。base 为本地监听地址，remote 为真实上游地址，均不可为空。
func New(base, remote string, opts ...Option) (*Player, error) {
	if base == "" {
		return nil, fmt.Errorf("%w: base address is empty", domain.ErrInvalidArgument)
	}
	if remote == "" {
		return nil, fmt.Errorf("%w: remote address is empty", domain.ErrInvalidArgument)
	}

	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	baseURL, err := url.Parse(base)
	if err != nil || baseURL.Host == "" {
		return nil, fmt.Errorf("%w: base address %q", domain.ErrInvalidArgument, base)
	}

	up, err := mock.ParseUpstream(remote)
	if err != nil {
		return nil, err
	}

	p := &Player{
		state:    domain.StateOff,
		id:       domain.PlayerID(uuid.New().String()),
		base:     base,
		baseURL:  baseURL,
		upstream: up,
		client:   &http.Client{Timeout: 30 * time.Second},
		log:      logger.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// ID 返回播放器实例ID
func (p *Player) ID() domain.PlayerID {
	return p.id
}

// BaseAddress 返回本地监听地址
func (p *Player) BaseAddress() string {
	return p.base
}

// Addr 返回实际监听地址，未启动时为空字符串。
// 监听端口配置为 0 时由系统分配，以此取得真实端口。
func (p *Player) Addr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ln == nil {
		return ""
	}
	return p.ln.Addr().String()
}

// RemoteAddress 返回上游地址
func (p *Player) RemoteAddress() string {
	return p.upstream.Raw
}

// State 返回当前状态
func (p *Player) State() domain.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Info 返回播放器视图信息
func (p *Player) Info() domain.PlayerInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	info := domain.PlayerInfo{
		ID:            p.id,
		BaseAddress:   p.base,
		RemoteAddress: p.upstream.Raw,
		State:         p.state.String(),
	}
	if p.rec != nil {
		info.RecordName = p.rec.Name()
	}
	return info
}

// LoadCassette 装载磁带文件，任意状态下可调用，替换已装载的磁带
func (p *Player) LoadCassette(path string) error {
	cas, err := cassette.New(path)
	if err != nil {
		return err
	}
	p.Load(cas)
	p.log.Info("装载磁带完成", "player", string(p.id), "cassette", path, "records", len(cas.Names()))
	return nil
}

// Load 装载已构建的磁带实例，任意状态下可调用
func (p *Player) Load(cas *cassette.Cassette) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cas = cas
}

// Cassette 返回当前装载的磁带，未装载时为 nil
func (p *Player) Cassette() *cassette.Cassette {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cas
}

// Start 启动本地监听并进入 Idle 状态，仅允许从 Off 状态调用
func (p *Player) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != domain.StateOff {
		return fmt.Errorf("%w: start requires off, current %s", domain.ErrInvalidState, p.state)
	}

	ln, err := net.Listen("tcp", p.baseURL.Host)
	if err != nil {
		return fmt.Errorf("%w: listen %s: %v", domain.ErrIoFailure, p.baseURL.Host, err)
	}

	p.ln = ln
	p.srv = &http.Server{Handler: http.HandlerFunc(p.dispatch)}
	go func(srv *http.Server, ln net.Listener) {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			p.log.Err(err, "播放器监听退出", "player", string(p.id), "addr", p.base)
		}
	}(p.srv, ln)

	p.state = domain.StateIdle
	p.log.Info("播放器已启动", "player", string(p.id), "addr", p.base, "remote", p.upstream.Raw)
	return nil
}

// Play 进入回放状态，使用磁带中指定名字的记录，仅允许从 Idle 状态调用
func (p *Player) Play(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != domain.StateIdle {
		return fmt.Errorf("%w: play requires idle, current %s", domain.ErrInvalidState, p.state)
	}
	if p.cas == nil {
		return fmt.Errorf("%w: player %s", domain.ErrCassetteNotLoaded, p.id)
	}
	rec := p.cas.Find(name)
	if rec == nil {
		return fmt.Errorf("%w: record %q in cassette %s", domain.ErrRecordNotFound, name, p.cas.Path())
	}

	p.rec = rec
	p.state = domain.StatePlaying
	p.log.Info("开始回放", "player", string(p.id), "record", name, "exchanges", rec.Len())
	return nil
}

// Record 进入录制状态，以指定名字新建记录，仅允许从 Idle 状态调用
func (p *Player) Record(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != domain.StateIdle {
		return fmt.Errorf("%w: record requires idle, current %s", domain.ErrInvalidState, p.state)
	}
	if p.cas == nil {
		return fmt.Errorf("%w: player %s", domain.ErrCassetteNotLoaded, p.id)
	}

	p.rec = cassette.NewRecord(name)
	p.state = domain.StateRecording
	p.log.Info("开始录制", "player", string(p.id), "record", name)
	return nil
}

// Stop 结束当前回放或录制并回到 Idle。录制状态下把记录保存进磁带并落盘，
// 落盘失败时记录保留在内存中且状态仍回到 Idle。
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == domain.StateOff {
		return fmt.Errorf("%w: stop requires started player, current %s", domain.ErrInvalidState, p.state)
	}
	return p.stopLocked()
}

// stopLocked 在持锁状态下执行 Stop 的清理逻辑
func (p *Player) stopLocked() error {
	var saveErr error
	if p.state == domain.StateRecording && p.rec != nil {
		if err := p.cas.Save(p.rec); err != nil {
			saveErr = err
			p.log.Err(err, "保存录制记录失败", "player", string(p.id), "record", p.rec.Name())
		} else {
			p.log.Info("保存录制记录完成", "player", string(p.id),
				"record", p.rec.Name(), "exchanges", p.rec.Len())
		}
	}
	if p.rec != nil {
		p.rec.Rewind()
	}
	p.rec = nil
	p.state = domain.StateIdle
	return saveErr
}

// Close 停止监听并回到 Off 状态。未启动时为空操作，可重复调用。
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == domain.StateOff {
		return nil
	}

	var firstErr error
	if p.state == domain.StatePlaying || p.state == domain.StateRecording {
		firstErr = p.stopLocked()
	}

	if p.srv != nil {
		if err := p.srv.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%w: close listener: %v", domain.ErrIoFailure, err)
		}
	}
	p.srv = nil
	p.ln = nil
	p.state = domain.StateOff
	p.log.Info("播放器已关闭", "player", string(p.id), "addr", p.base)
	return firstErr
}
