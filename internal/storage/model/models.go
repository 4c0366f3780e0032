package model

import (
	"time"
)

// DispatchRecord 分发历史表（每次代理请求的处理结果）
type DispatchRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	PlayerID   string    `gorm:"index" json:"playerId"`
	TraceID    string    `gorm:"index" json:"traceId"`
	Mode       string    `json:"mode"`                // playing / recording / idle
	RecordName string    `json:"recordName"`          // 录制/回放时使用的记录名
	Method     string    `json:"method"`              // 请求方法
	URI        string    `json:"uri"`                 // 请求 URI
	StatusCode int       `json:"statusCode"`          // 写回客户端的状态码
	Outcome    string    `gorm:"index" json:"outcome"` // replayed / recorded / mismatch / error
	Error      string    `gorm:"type:text" json:"error"`
	Timestamp  int64     `gorm:"index" json:"timestamp"`
	CreatedAt  time.Time `json:"createdAt"`
}
