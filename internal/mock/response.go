package mock

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Response 规范化后的响应镜像，回放时原样送出
type Response struct {
	StatusCode        int
	StatusDescription string
	Content           *string
	Headers           map[string]string
	Cookies           []Cookie
}

// responseEnvelope 响应的磁带序列化外壳（content 单独处理）
type responseEnvelope struct {
	StatusCode        int               `json:"statusCode"`
	StatusDescription string            `json:"statusDescription"`
	Headers           map[string]string `json:"headers,omitempty"`
	Cookies           []Cookie          `json:"cookies,omitempty"`
}

// MarshalJSON 序列化响应。
// 正文文本本身是合法 JSON 时以结构化 JSON 形式内嵌，否则作为字符串写入；
// 缺失时整个 content 字段省略。
func (m *Response) MarshalJSON() ([]byte, error) {
	doc, err := json.Marshal(responseEnvelope{
		StatusCode:        m.StatusCode,
		StatusDescription: m.StatusDescription,
		Headers:           m.Headers,
		Cookies:           m.Cookies,
	})
	if err != nil {
		return nil, err
	}
	if m.Content == nil {
		return doc, nil
	}
	if gjson.Valid(*m.Content) {
		return sjson.SetRawBytes(doc, "content", []byte(*m.Content))
	}
	return sjson.SetBytes(doc, "content", *m.Content)
}

// UnmarshalJSON 反序列化响应，内嵌 JSON 正文还原为紧凑形式的 JSON 文本（原文中的空白不保留）
func (m *Response) UnmarshalJSON(data []byte) error {
	var env struct {
		responseEnvelope
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	m.StatusCode = env.StatusCode
	m.StatusDescription = env.StatusDescription
	m.Headers = env.Headers
	m.Cookies = env.Cookies
	m.Content = nil

	if len(env.Content) > 0 {
		parsed := gjson.ParseBytes(env.Content)
		var content string
		if parsed.Type == gjson.String {
			content = parsed.String()
		} else {
			var buf bytes.Buffer
			if err := json.Compact(&buf, env.Content); err != nil {
				return err
			}
			content = buf.String()
		}
		m.Content = &content
	}
	return nil
}

// ResponseFromHTTP 由上游响应构造规范化镜像。
// Content-Length 大于 0 时读取正文并按声明字符集解码。
func ResponseFromHTTP(resp *http.Response) (*Response, error) {
	m := &Response{
		StatusCode:        resp.StatusCode,
		StatusDescription: statusDescription(resp),
		Headers:           make(map[string]string, len(resp.Header)),
	}

	if resp.ContentLength > 0 && resp.Body != nil {
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		content := DecodeBody(raw, resp.Header.Get("Content-Type"))
		m.Content = &content
	}

	for name, values := range resp.Header {
		m.Headers[http.CanonicalHeaderKey(name)] = strings.Join(values, ", ")
	}

	for _, c := range resp.Cookies() {
		m.Cookies = append(m.Cookies, CookieFromHTTP(c, c.Domain))
	}

	return m, nil
}

// statusDescription 提取响应的原因短语
func statusDescription(resp *http.Response) string {
	if _, reason, ok := strings.Cut(resp.Status, " "); ok && reason != "" {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}

// WriteTo 将镜像响应写出到监听端。
// 受限响应头走专用处理，Content-Length 按实际写出的正文重新生成；
// 写出正文即提交响应，此后不再变更响应属性。
func (m *Response) WriteTo(w http.ResponseWriter) error {
	h := w.Header()
	for name := range h {
		h.Del(name)
	}

	for name, value := range m.Headers {
		applyResponseHeader(h, http.CanonicalHeaderKey(name), value)
	}

	for _, ck := range m.Cookies {
		http.SetCookie(w, ck.ToHTTP())
	}

	var body []byte
	if m.Content != nil {
		body = EncodeBody(*m.Content)
		h.Set("Content-Length", strconv.Itoa(len(body)))
	}

	w.WriteHeader(m.StatusCode)
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return fmt.Errorf("write response body: %w", err)
		}
	}
	return nil
}

// applyResponseHeader 应用单个响应头，受限头走专用处理
func applyResponseHeader(h http.Header, name, value string) {
	switch name {
	case "Connection":
		if !strings.EqualFold(value, "keep-alive") {
			h.Set("Connection", "close")
		}
	case "Content-Length":
		// 正文重新序列化后由监听端按实际字节数生成
	case "Content-Type":
		h.Set("Content-Type", value)
	case "Location":
		h.Set("Location", value)
	case "Transfer-Encoding":
		// chunked 由标准库在缺省 Content-Length 时自动采用
	case "Set-Cookie":
		// Cookie 经由 Cookies 字段回放
	default:
		h.Set(name, value)
	}
}
