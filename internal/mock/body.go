package mock

import (
	"mime"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DecodeBody 按 Content-Type 声明的字符集将正文字节解码为文本，
// 未声明或无法识别时回退 UTF-8
func DecodeBody(raw []byte, contentType string) string {
	if len(raw) == 0 {
		return ""
	}

	charset := declaredCharset(contentType)
	if charset == "" {
		return string(raw)
	}

	enc, err := htmlindex.Get(charset)
	if err != nil || enc == unicode.UTF8 {
		return string(raw)
	}

	decoded, _, err := transform.Bytes(enc.NewDecoder(), raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

// EncodeBody 将文本正文编码为出站字节（统一使用 UTF-8）
func EncodeBody(content string) []byte {
	return []byte(content)
}

// declaredCharset 提取 Content-Type 中声明的字符集名称
func declaredCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(params["charset"])
}
