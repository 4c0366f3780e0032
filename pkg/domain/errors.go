package domain

import "errors"

// 构造相关错误
var (
	ErrInvalidArgument = errors.New("invalid argument")
)

// 状态机相关错误
var (
	ErrInvalidState      = errors.New("invalid state")
	ErrCassetteNotLoaded = errors.New("cassette not loaded")
	ErrRecordNotFound    = errors.New("record not found")
	ErrPlayerNotFound    = errors.New("player not found")
)

// 记录游标相关错误
var (
	ErrEndOfRecord = errors.New("end of record")
)

// 持久化相关错误
var (
	ErrIoFailure = errors.New("io failure")
)

// 上游相关错误
var (
	ErrUpstreamFailure = errors.New("upstream failure")
)
