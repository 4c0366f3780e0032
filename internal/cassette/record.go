package cassette

import (
	"fmt"

	"tapeproxy/internal/mock"
	"tapeproxy/pkg/domain"
)

// Record 以名字标识的有序交换序列，带读取游标。
// 只是一个游标容器，对 HTTP 与 JSON 均无感知。
type Record struct {
	name      string
	exchanges []mock.Exchange
	index     int
}

// NewRecord 创建空记录
func NewRecord(name string) *Record {
	return &Record{name: name}
}

// newRecordWith 以既有交换序列创建记录，游标置 0
func newRecordWith(name string, exchanges []mock.Exchange) *Record {
	owned := make([]mock.Exchange, len(exchanges))
	copy(owned, exchanges)
	return &Record{name: name, exchanges: owned}
}

// Name 返回记录名
func (r *Record) Name() string {
	return r.name
}

// Read 返回游标处的交换并前移游标
func (r *Record) Read() (mock.Exchange, error) {
	if r.index >= len(r.exchanges) {
		return mock.Exchange{}, fmt.Errorf("%w: record %q exhausted after %d exchanges",
			domain.ErrEndOfRecord, r.name, len(r.exchanges))
	}
	ex := r.exchanges[r.index]
	r.index++
	return ex, nil
}

// Write 追加一个交换到末尾，仅在录制时使用
func (r *Record) Write(ex mock.Exchange) {
	r.exchanges = append(r.exchanges, ex)
	r.index = len(r.exchanges)
}

// Rewind 游标归零
func (r *Record) Rewind() {
	r.index = 0
}

// Len 返回交换数量
func (r *Record) Len() int {
	return len(r.exchanges)
}
