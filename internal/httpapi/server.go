package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	api "tapeproxy/pkg/api"
	"tapeproxy/pkg/domain"
	"tapeproxy/pkg/errx"

	dbmodel "tapeproxy/internal/storage/model"
	"tapeproxy/internal/storage/repo"
)

// History 分发历史查询接口
type History interface {
	// Flush 刷新缓冲，保证查询可见最新数据
	Flush()
	// Query 按条件查询分发历史
	Query(opts repo.QueryOptions) ([]dbmodel.DispatchRecord, int64, error)
}

// Server 提供控制面的 HTTP 接口入口
type Server struct {
	svc     api.Service
	history History
}

// NewServer 创建 HTTP 接口服务，history 可为 nil（未启用历史存储）
func NewServer(svc api.Service, history History) *Server {
	return &Server{svc: svc, history: history}
}

// ServeHTTP 处理所有控制面 HTTP 请求
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ErrInvalidRequest.withError(err))
		return
	}
	res := s.dispatch(r.Context(), &req)
	writeResponse(w, res)
}

// Request 表示通用请求结构
type Request struct {
	Method string          `json:"method"`
	ID     string          `json:"id,omitempty"`
	Params json.RawMessage `json:"params"`
}

// Response 表示通用响应结构
type Response struct {
	ID     string       `json:"id,omitempty"`
	Result interface{}  `json:"result,omitempty"`
	Error  *ErrorObject `json:"error,omitempty"`
}

// ErrorObject 表示错误信息
type ErrorObject struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ApiError 表示内部错误类型
type ApiError struct {
	Code string
	Err  error
}

func (e ApiError) withError(err error) ApiError {
	return ApiError{Code: e.Code, Err: err}
}

var (
	// ErrInvalidRequest 无效请求
	ErrInvalidRequest = ApiError{Code: "invalid_request"}
	// ErrMethodNotFound 方法不存在
	ErrMethodNotFound = ApiError{Code: "method_not_found"}
	// ErrInvalidParams 参数错误
	ErrInvalidParams = ApiError{Code: "invalid_params"}
	// ErrInternal 内部错误
	ErrInternal = ApiError{Code: "internal"}
)

// playerStartParams 播放器创建参数
type playerStartParams struct {
	BaseAddress   string `json:"baseAddress"`
	RemoteAddress string `json:"remoteAddress"`
	CassettePath  string `json:"cassettePath,omitempty"`
}

// playerOnlyParams 仅包含播放器标识的参数
type playerOnlyParams struct {
	PlayerID string `json:"playerId"`
}

// recordParams 回放/录制参数
type recordParams struct {
	PlayerID   string `json:"playerId"`
	RecordName string `json:"recordName"`
}

// cassetteLoadParams 磁带装载参数
type cassetteLoadParams struct {
	PlayerID     string `json:"playerId"`
	CassettePath string `json:"cassettePath"`
}

// historyQueryParams 历史查询参数
type historyQueryParams struct {
	PlayerID   string `json:"playerId,omitempty"`
	Mode       string `json:"mode,omitempty"`
	Outcome    string `json:"outcome,omitempty"`
	Method     string `json:"method,omitempty"`
	URI        string `json:"uri,omitempty"`
	RecordName string `json:"recordName,omitempty"`
	StartTime  int64  `json:"startTime,omitempty"`
	EndTime    int64  `json:"endTime,omitempty"`
	Page       int    `json:"page,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// playerStartResult 播放器创建结果
type playerStartResult struct {
	PlayerID string `json:"playerId"`
}

// historyQueryResult 历史查询结果
type historyQueryResult struct {
	Total   int64                    `json:"total"`
	Records []dbmodel.DispatchRecord `json:"records"`
}

// dispatch 根据 method 分发请求
func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	var (
		result interface{}
		err    *ErrorObject
	)
	switch req.Method {
	case "player.start":
		result, err = s.handlePlayerStart(ctx, req.Params)
	case "player.play":
		result, err = s.handlePlayerPlay(ctx, req.Params)
	case "player.record":
		result, err = s.handlePlayerRecord(ctx, req.Params)
	case "player.stop":
		result, err = s.handlePlayerStop(ctx, req.Params)
	case "player.close":
		result, err = s.handlePlayerClose(ctx, req.Params)
	case "player.state":
		result, err = s.handlePlayerState(ctx, req.Params)
	case "player.list":
		result, err = s.handlePlayerList(ctx, req.Params)
	case "cassette.load":
		result, err = s.handleCassetteLoad(ctx, req.Params)
	case "history.query":
		result, err = s.handleHistoryQuery(ctx, req.Params)
	default:
		err = toErrorObject(ErrMethodNotFound)
	}
	return &Response{ID: req.ID, Result: result, Error: err}
}

// writeResponse 写出统一响应
func writeResponse(w http.ResponseWriter, res *Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	_ = enc.Encode(res)
}

// writeError 写出错误响应
func writeError(w http.ResponseWriter, apiErr ApiError) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	_ = enc.Encode(&Response{Error: toErrorObject(apiErr)})
}

// toErrorObject 转换错误为响应错误对象
func toErrorObject(e ApiError) *ErrorObject {
	msg := e.Code
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return &ErrorObject{Code: e.Code, Message: msg}
}

// toServiceError 把服务层错误映射为带业务码的错误对象
func toServiceError(err error) *ErrorObject {
	var code errx.Code
	switch {
	case errors.Is(err, domain.ErrPlayerNotFound):
		code = errx.CodePlayerNotFound
	case errors.Is(err, domain.ErrInvalidState):
		code = errx.CodeInvalidState
	case errors.Is(err, domain.ErrCassetteNotLoaded):
		code = errx.CodeCassetteNotLoaded
	case errors.Is(err, domain.ErrRecordNotFound):
		code = errx.CodeRecordNotFound
	default:
		return toErrorObject(ErrInternal.withError(err))
	}
	return &ErrorObject{Code: string(code), Message: err.Error()}
}

// handlePlayerStart 处理播放器创建
func (s *Server) handlePlayerStart(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	_ = ctx
	var p playerStartParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, toErrorObject(ErrInvalidParams.withError(err))
	}
	if p.BaseAddress == "" || p.RemoteAddress == "" {
		return nil, toErrorObject(ErrInvalidParams.withError(
			errors.New("baseAddress and remoteAddress are required")))
	}
	id, err := s.svc.StartPlayer(domain.PlayerConfig{
		BaseAddress:   p.BaseAddress,
		RemoteAddress: p.RemoteAddress,
		CassettePath:  p.CassettePath,
	})
	if err != nil {
		return nil, toServiceError(err)
	}
	return &playerStartResult{PlayerID: string(id)}, nil
}

// handlePlayerPlay 处理进入回放
func (s *Server) handlePlayerPlay(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	_ = ctx
	var p recordParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, toErrorObject(ErrInvalidParams.withError(err))
	}
	if p.PlayerID == "" || p.RecordName == "" {
		return nil, toErrorObject(ErrInvalidParams.withError(
			errors.New("playerId and recordName are required")))
	}
	if err := s.svc.Play(domain.PlayerID(p.PlayerID), p.RecordName); err != nil {
		return nil, toServiceError(err)
	}
	return nil, nil
}

// handlePlayerRecord 处理进入录制
func (s *Server) handlePlayerRecord(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	_ = ctx
	var p recordParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, toErrorObject(ErrInvalidParams.withError(err))
	}
	if p.PlayerID == "" || p.RecordName == "" {
		return nil, toErrorObject(ErrInvalidParams.withError(
			errors.New("playerId and recordName are required")))
	}
	if err := s.svc.Record(domain.PlayerID(p.PlayerID), p.RecordName); err != nil {
		return nil, toServiceError(err)
	}
	return nil, nil
}

// handlePlayerStop 处理结束回放/录制
func (s *Server) handlePlayerStop(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	_ = ctx
	var p playerOnlyParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, toErrorObject(ErrInvalidParams.withError(err))
	}
	if p.PlayerID == "" {
		return nil, toErrorObject(ErrInvalidParams.withError(errors.New("playerId is required")))
	}
	if err := s.svc.Stop(domain.PlayerID(p.PlayerID)); err != nil {
		return nil, toServiceError(err)
	}
	return nil, nil
}

// handlePlayerClose 处理播放器关闭
func (s *Server) handlePlayerClose(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	_ = ctx
	var p playerOnlyParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, toErrorObject(ErrInvalidParams.withError(err))
	}
	if p.PlayerID == "" {
		return nil, toErrorObject(ErrInvalidParams.withError(errors.New("playerId is required")))
	}
	if err := s.svc.ClosePlayer(domain.PlayerID(p.PlayerID)); err != nil {
		return nil, toServiceError(err)
	}
	return nil, nil
}

// handlePlayerState 处理播放器状态查询
func (s *Server) handlePlayerState(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	_ = ctx
	var p playerOnlyParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, toErrorObject(ErrInvalidParams.withError(err))
	}
	if p.PlayerID == "" {
		return nil, toErrorObject(ErrInvalidParams.withError(errors.New("playerId is required")))
	}
	info, err := s.svc.GetPlayer(domain.PlayerID(p.PlayerID))
	if err != nil {
		return nil, toServiceError(err)
	}
	return &info, nil
}

// handlePlayerList 处理播放器列表查询
func (s *Server) handlePlayerList(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	_ = ctx
	_ = params
	return s.svc.ListPlayers(), nil
}

// handleCassetteLoad 处理磁带装载
func (s *Server) handleCassetteLoad(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	_ = ctx
	var p cassetteLoadParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, toErrorObject(ErrInvalidParams.withError(err))
	}
	if p.PlayerID == "" || p.CassettePath == "" {
		return nil, toErrorObject(ErrInvalidParams.withError(
			errors.New("playerId and cassettePath are required")))
	}
	if err := s.svc.LoadCassette(domain.PlayerID(p.PlayerID), p.CassettePath); err != nil {
		return nil, toServiceError(err)
	}
	return nil, nil
}

// handleHistoryQuery 处理分发历史查询
func (s *Server) handleHistoryQuery(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	_ = ctx
	if s.history == nil {
		return nil, toErrorObject(ErrInternal.withError(errors.New("history store is not enabled")))
	}
	var p historyQueryParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, toErrorObject(ErrInvalidParams.withError(err))
		}
	}

	s.history.Flush()
	records, total, err := s.history.Query(repo.QueryOptions{
		PlayerID:   p.PlayerID,
		Mode:       p.Mode,
		Outcome:    p.Outcome,
		Method:     p.Method,
		URI:        p.URI,
		RecordName: p.RecordName,
		StartTime:  p.StartTime,
		EndTime:    p.EndTime,
		Page:       p.Page,
		Limit:      p.Limit,
	})
	if err != nil {
		return nil, toErrorObject(ErrInternal.withError(err))
	}
	return &historyQueryResult{Total: total, Records: records}, nil
}
