package player

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"tapeproxy/internal/logger"
	"tapeproxy/internal/mock"
	"tapeproxy/pkg/domain"
)

// dispatch 处理一个测试客户端请求。
// 整个分发过程持有状态锁，保证同一播放器上的请求严格串行、
// 游标推进与录制追加不会交错。
func (p *Player) dispatch(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	traceID := uuid.New().String()
	l := p.log.With(
		"traceID", traceID,
		"player", string(p.id),
		"method", r.Method,
		"uri", r.URL.RequestURI(),
	)

	outcome := domain.DispatchOutcome{
		Player:    p.id,
		TraceID:   traceID,
		Mode:      p.state.String(),
		Method:    r.Method,
		URI:       r.URL.RequestURI(),
		Timestamp: time.Now().UnixMilli(),
	}
	if p.rec != nil {
		outcome.RecordName = p.rec.Name()
	}
	defer func() {
		if v := recover(); v != nil {
			code := domain.CodeException
			switch p.state {
			case domain.StatePlaying:
				code = domain.CodePlayException
			case domain.StateRecording:
				code = domain.CodeRecordException
			}
			p.writePlayerError(w, r, code, fmt.Errorf("dispatch panic: %v", v), &outcome)
			if p.sink != nil {
				p.sink.RecordDispatch(outcome)
			}
		}
	}()

	switch p.state {
	case domain.StatePlaying:
		p.servePlay(w, r, l, &outcome)
	case domain.StateRecording:
		p.serveRecord(w, r, l, &outcome)
	default:
		err := fmt.Errorf("%w: player is not in operation, current %s", domain.ErrInvalidState, p.state)
		l.Warn("非回放/录制状态收到请求", "state", p.state.String())
		p.writePlayerError(w, r, domain.CodeException, err, &outcome)
	}

	if p.sink != nil {
		p.sink.RecordDispatch(outcome)
	}
}

// servePlay 回放分发：读取游标处的录制交换，比对请求后写出录制响应
func (p *Player) servePlay(w http.ResponseWriter, r *http.Request, l logger.Logger, outcome *domain.DispatchOutcome) {
	ex, err := p.rec.Read()
	if err != nil {
		l.Err(err, "回放读取录制交换失败")
		p.writePlayerError(w, r, domain.CodePlayException, err, outcome)
		return
	}

	live, err := mock.RequestFromHTTP(r, p.upstream)
	if err != nil {
		l.Err(err, "回放解析客户端请求失败")
		p.writePlayerError(w, r, domain.CodePlayException, err, outcome)
		return
	}

	if ex.Request == nil || ex.Response == nil {
		err := fmt.Errorf("%w: record %q holds incomplete exchange", domain.ErrEndOfRecord, p.rec.Name())
		l.Err(err, "回放遇到不完整交换")
		p.writePlayerError(w, r, domain.CodePlayException, err, outcome)
		return
	}

	if !ex.Request.Equal(live) {
		err := fmt.Errorf("request does not match recorded exchange: %s %s", live.Method, live.URI)
		l.Warn("回放请求与录制不一致",
			"recordedMethod", ex.Request.Method, "recordedURI", ex.Request.URI)
		p.writePlayerError(w, r, domain.CodeRequestNotFound, err, outcome)
		outcome.Outcome = "mismatch"
		return
	}

	if err := ex.Response.WriteTo(w); err != nil {
		l.Err(err, "回放写出响应失败")
		outcome.Outcome = "error"
		outcome.Error = err.Error()
		return
	}

	outcome.StatusCode = ex.Response.StatusCode
	outcome.Outcome = "replayed"
	l.Debug("回放响应完成", "status", ex.Response.StatusCode)
}

// serveRecord 录制分发：把请求转发到真实上游，记录交换后把上游响应透传给客户端
func (p *Player) serveRecord(w http.ResponseWriter, r *http.Request, l logger.Logger, outcome *domain.DispatchOutcome) {
	req, err := mock.RequestFromHTTP(r, p.upstream)
	if err != nil {
		l.Err(err, "录制解析客户端请求失败")
		p.writePlayerError(w, r, domain.CodeRecordException, err, outcome)
		return
	}

	upReq, err := req.ToHTTP()
	if err != nil {
		l.Err(err, "录制构造上游请求失败")
		p.writePlayerError(w, r, domain.CodeRecordException, err, outcome)
		return
	}
	upReq = upReq.WithContext(r.Context())

	upResp, err := p.client.Do(upReq)
	if err != nil {
		err = fmt.Errorf("%w: %s %s: %v", domain.ErrUpstreamFailure, req.Method, req.URI, err)
		l.Err(err, "转发上游请求失败")
		p.writePlayerError(w, r, domain.CodeRecordException, err, outcome)
		return
	}
	defer upResp.Body.Close()

	resp, err := mock.ResponseFromHTTP(upResp)
	if err != nil {
		l.Err(err, "录制解析上游响应失败")
		p.writePlayerError(w, r, domain.CodeRecordException, err, outcome)
		return
	}

	p.rec.Write(mock.Exchange{Request: req, Response: resp})

	if err := resp.WriteTo(w); err != nil {
		l.Err(err, "录制写出响应失败")
		outcome.Outcome = "error"
		outcome.Error = err.Error()
		return
	}

	outcome.StatusCode = resp.StatusCode
	outcome.Outcome = "recorded"
	l.Debug("录制交换完成", "status", resp.StatusCode, "exchanges", p.rec.Len())
}

// writePlayerError 写出播放器错误响应：特殊状态码加诊断文本正文
func (p *Player) writePlayerError(w http.ResponseWriter, r *http.Request, code int, err error, outcome *domain.DispatchOutcome) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	fmt.Fprintf(w, "%s %s\n%v\n", r.Method, r.URL.RequestURI(), err)

	outcome.StatusCode = code
	outcome.Outcome = "error"
	outcome.Error = err.Error()
}
