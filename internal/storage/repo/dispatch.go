package repo

import (
	"context"
	"sync"
	"time"

	dbmodel "tapeproxy/internal/storage/model"
	"tapeproxy/pkg/domain"

	"gorm.io/gorm"
)

const (
	writeBatchSize = 50
	writeDelay     = 2 * time.Second
	queueDepth     = 256
)

// DispatchRepo 分发历史仓库。写入经有界队列交给单个后台协程批量落库，
// 队列满时直接丢弃记录，代理路径永不被历史写入阻塞。
type DispatchRepo struct {
	BaseRepository[dbmodel.DispatchRecord]
	in       chan *dbmodel.DispatchRecord
	syncCh   chan chan struct{}
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewDispatchRepo 创建分发历史仓库并启动后台写入协程
func NewDispatchRepo(db *gorm.DB) *DispatchRepo {
	r := &DispatchRepo{
		BaseRepository: *NewBaseRepository[dbmodel.DispatchRecord](db),
		in:             make(chan *dbmodel.DispatchRecord, queueDepth),
		syncCh:         make(chan chan struct{}),
		quit:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	go r.writeLoop()
	return r
}

// writeLoop 攒批落库：凑满一批立即提交，否则在本批首条记录入队 writeDelay 后提交
func (r *DispatchRepo) writeLoop() {
	defer close(r.done)

	pending := make([]*dbmodel.DispatchRecord, 0, writeBatchSize)
	var delay <-chan time.Time

	commit := func() {
		if len(pending) == 0 {
			return
		}
		// 落库失败只丢本批数据
		_ = r.CreateBatch(context.Background(), pending)
		pending = pending[:0]
		delay = nil
	}
	drain := func() {
		for {
			select {
			case rec := <-r.in:
				pending = append(pending, rec)
			default:
				return
			}
		}
	}

	for {
		select {
		case rec := <-r.in:
			pending = append(pending, rec)
			if len(pending) >= writeBatchSize {
				commit()
			} else if delay == nil {
				delay = time.After(writeDelay)
			}
		case <-delay:
			commit()
		case ack := <-r.syncCh:
			drain()
			commit()
			close(ack)
		case <-r.quit:
			drain()
			commit()
			return
		}
	}
}

// RecordDispatch 记录一次分发结果，队列满时丢弃
func (r *DispatchRepo) RecordDispatch(outcome domain.DispatchOutcome) {
	rec := &dbmodel.DispatchRecord{
		PlayerID:   string(outcome.Player),
		TraceID:    outcome.TraceID,
		Mode:       outcome.Mode,
		RecordName: outcome.RecordName,
		Method:     outcome.Method,
		URI:        outcome.URI,
		StatusCode: outcome.StatusCode,
		Outcome:    outcome.Outcome,
		Error:      outcome.Error,
		Timestamp:  outcome.Timestamp,
		CreatedAt:  time.Now(),
	}
	select {
	case r.in <- rec:
	default:
	}
}

// Flush 等待队列中已有的记录全部落库，查询前调用可见最新数据
func (r *DispatchRepo) Flush() {
	ack := make(chan struct{})
	select {
	case r.syncCh <- ack:
		<-ack
	case <-r.done:
	}
}

// Stop 停止后台写入，落库剩余记录后返回
func (r *DispatchRepo) Stop() {
	r.stopOnce.Do(func() { close(r.quit) })
	<-r.done
}

// QueryOptions 查询选项
type QueryOptions struct {
	PlayerID   string
	Mode       string // playing / recording / idle
	Outcome    string // replayed / recorded / mismatch / error
	Method     string
	URI        string
	RecordName string
	StartTime  int64
	EndTime    int64
	Page       int
	Limit      int
}

// Apply 实现 Filter 接口
func (opts QueryOptions) Apply(db *gorm.DB) *gorm.DB {
	if opts.PlayerID != "" {
		db = db.Where("player_id = ?", opts.PlayerID)
	}
	if opts.Mode != "" {
		db = db.Where("mode = ?", opts.Mode)
	}
	if opts.Outcome != "" {
		db = db.Where("outcome = ?", opts.Outcome)
	}
	if opts.Method != "" {
		db = db.Where("method = ?", opts.Method)
	}
	if opts.URI != "" {
		db = db.Where("uri LIKE ?", "%"+opts.URI+"%")
	}
	if opts.RecordName != "" {
		db = db.Where("record_name = ?", opts.RecordName)
	}
	if opts.StartTime > 0 {
		db = db.Where("timestamp >= ?", opts.StartTime)
	}
	if opts.EndTime > 0 {
		db = db.Where("timestamp <= ?", opts.EndTime)
	}
	return db
}

// Query 查询分发历史，按时间倒序
func (r *DispatchRepo) Query(opts QueryOptions) ([]dbmodel.DispatchRecord, int64, error) {
	ctx := context.Background()

	total, err := r.Count(ctx, opts)
	if err != nil {
		return nil, 0, err
	}

	if opts.Page <= 0 {
		opts.Page = 1
	}
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	if opts.Limit > 1000 {
		opts.Limit = 1000
	}

	list, err := r.FindAll(ctx, opts,
		&Pagination{Page: opts.Page, Limit: opts.Limit},
		Orders{{Field: "timestamp", Sort: "DESC"}})
	if err != nil {
		return nil, 0, err
	}

	records := make([]dbmodel.DispatchRecord, 0, len(list))
	for _, item := range list {
		records = append(records, *item)
	}
	return records, total, nil
}

// DeleteOldRecords 删除指定时间点之前的记录
func (r *DispatchRepo) DeleteOldRecords(beforeTimestamp int64) (int64, error) {
	result := r.Db.Where("timestamp < ?", beforeTimestamp).Delete(&dbmodel.DispatchRecord{})
	return result.RowsAffected, result.Error
}

// playerFilter 按播放器ID筛选
type playerFilter struct {
	playerID string
}

func (f playerFilter) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("player_id = ?", f.playerID)
}

// DeleteByPlayer 删除指定播放器的记录
func (r *DispatchRepo) DeleteByPlayer(playerID string) error {
	return r.Delete(context.Background(), playerFilter{playerID: playerID})
}

// CleanupOldRecords 根据保留天数清理旧记录
func (r *DispatchRepo) CleanupOldRecords(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = 7
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays).UnixMilli()
	return r.DeleteOldRecords(cutoff)
}

// ClearAll 清空所有记录
func (r *DispatchRepo) ClearAll() error {
	return r.Db.Where("1 = 1").Delete(&dbmodel.DispatchRecord{}).Error
}
