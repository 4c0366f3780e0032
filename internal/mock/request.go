package mock

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"tapeproxy/pkg/domain"
)

// Upstream 上游目标地址，保留原始字符串形式用于拼接回放 URI
type Upstream struct {
	Raw string
	URL *url.URL
}

// ParseUpstream 解析上游地址
func ParseUpstream(s string) (*Upstream, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: remote address is empty", domain.ErrInvalidArgument)
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid remote address %q", domain.ErrInvalidArgument, s)
	}
	return &Upstream{Raw: s, URL: u}, nil
}

// Request 规范化后的请求镜像
type Request struct {
	Method  string            `json:"method"`
	URI     string            `json:"uri"`
	Content *string           `json:"content,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Cookies []Cookie          `json:"cookies,omitempty"`
}

// RequestFromHTTP 由入站请求构造规范化镜像。
// 入站监听地址的 scheme/authority 被丢弃，URI 由上游原始地址与入站 path+query 拼接而成，
// Host 头与 Cookie 域名统一改写为上游，正文按声明字符集解码。
func RequestFromHTTP(r *http.Request, up *Upstream) (*Request, error) {
	m := &Request{
		Method:  r.Method,
		URI:     up.Raw + r.URL.RequestURI(),
		Headers: make(map[string]string, len(r.Header)+1),
	}

	if r.Body != nil {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		if len(raw) > 0 {
			content := DecodeBody(raw, r.Header.Get("Content-Type"))
			m.Content = &content
		}
	}

	for name, values := range r.Header {
		m.Headers[http.CanonicalHeaderKey(name)] = strings.Join(values, ", ")
	}
	// 服务端入站请求的 Host 不在 Header 中，统一以上游 authority 记录
	if r.Host != "" {
		m.Headers["Host"] = up.URL.Host
	}

	for _, c := range r.Cookies() {
		m.Cookies = append(m.Cookies, CookieFromHTTP(c, up.URL.Hostname()))
	}

	return m, nil
}

// ToHTTP 重建出站请求，仅在录制时使用。
// 受限头按标准库的专用字段设置，其余走自由头表。
func (m *Request) ToHTTP() (*http.Request, error) {
	var body io.Reader
	var length int64
	if m.Content != nil {
		raw := EncodeBody(*m.Content)
		body = bytes.NewReader(raw)
		length = int64(len(raw))
	}

	req, err := http.NewRequest(m.Method, m.URI, body)
	if err != nil {
		return nil, fmt.Errorf("build outbound request: %w", err)
	}
	if m.Content != nil {
		req.ContentLength = length
	}

	for _, ck := range m.Cookies {
		req.AddCookie(ck.ToHTTP())
	}

	for name, value := range m.Headers {
		if err := applyRequestHeader(req, http.CanonicalHeaderKey(name), value); err != nil {
			return nil, err
		}
	}
	return req, nil
}

// applyRequestHeader 应用单个请求头，受限头走专用字段
func applyRequestHeader(req *http.Request, name, value string) error {
	switch name {
	case "Connection":
		switch {
		case strings.EqualFold(value, "keep-alive"):
			req.Close = false
		case strings.EqualFold(value, "close"):
			req.Close = true
		default:
			req.Header.Set(name, value)
		}
	case "Content-Length":
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid Content-Length %q: %w", value, err)
		}
		req.ContentLength = n
	case "Date", "If-Modified-Since":
		t, err := http.ParseTime(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
		req.Header.Set(name, t.UTC().Format(http.TimeFormat))
	case "Expect":
		remainder := stripToken(value, "100-continue")
		if remainder != "" {
			req.Header.Set(name, remainder)
		}
	case "Host":
		req.Host = value
	case "Transfer-Encoding":
		if strings.EqualFold(value, "chunked") {
			req.TransferEncoding = []string{"chunked"}
		} else {
			req.TransferEncoding = splitTokens(value)
		}
	case "Cookie":
		// Cookie 已通过 AddCookie 写入，头值以录制内容为准
		req.Header.Set(name, value)
	default:
		req.Header.Set(name, value)
	}
	return nil
}

// stripToken 从逗号分隔的头值中剔除指定 token
func stripToken(value, token string) string {
	var kept []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" || strings.EqualFold(part, token) {
			continue
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, ", ")
}

// splitTokens 拆分逗号分隔的头值
func splitTokens(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Equal 判断录制请求与实时请求是否匹配。
// 比较方法、URI、正文、头集合与 Cookie 集合；
// 录制侧携带 Connection: Keep-Alive 而实时请求完全没有 Connection 头时，
// 先从录制副本中剔除该头再比较。
func (m *Request) Equal(live *Request) bool {
	if live == nil {
		return false
	}
	if m.Method != live.Method {
		return false
	}
	if m.URI != live.URI {
		return false
	}

	if (m.Content == nil) != (live.Content == nil) {
		return false
	}
	if m.Content != nil && *m.Content != *live.Content {
		return false
	}

	recorded := canonicalHeaders(m.Headers)
	actual := canonicalHeaders(live.Headers)
	if v, ok := recorded["Connection"]; ok && strings.EqualFold(v, "keep-alive") {
		if _, present := actual["Connection"]; !present {
			delete(recorded, "Connection")
		}
	}
	if (len(recorded) == 0) != (len(actual) == 0) {
		return false
	}
	if len(recorded) != len(actual) {
		return false
	}
	for k, v := range recorded {
		if actual[k] != v {
			return false
		}
	}

	if (len(m.Cookies) == 0) != (len(live.Cookies) == 0) {
		return false
	}
	if len(m.Cookies) != len(live.Cookies) {
		return false
	}
	for _, rc := range m.Cookies {
		lc, ok := findCookie(live.Cookies, rc.Name)
		if !ok || !rc.Equal(lc) {
			return false
		}
	}
	return true
}

// canonicalHeaders 复制头表并规范化键名
func canonicalHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[http.CanonicalHeaderKey(k)] = v
	}
	return out
}
