package mock

import (
	"net/http"
	"time"
)

// Cookie 磁带中持久化的 Cookie 记录，缺省字段在序列化时省略
type Cookie struct {
	Name       string     `json:"Name"`
	Value      string     `json:"Value"`
	Domain     string     `json:"Domain"`
	Comment    string     `json:"Comment,omitempty"`
	CommentUri string     `json:"CommentUri,omitempty"`
	Discard    bool       `json:"Discard,omitempty"`
	Expired    bool       `json:"Expired,omitempty"`
	Expires    *time.Time `json:"Expires,omitempty"`
	Path       string     `json:"Path,omitempty"`
	Port       string     `json:"Port,omitempty"`
	Secure     bool       `json:"Secure,omitempty"`
}

// CookieFromHTTP 由标准库 Cookie 构造持久化记录，域名统一改写为上游主机
func CookieFromHTTP(c *http.Cookie, domain string) Cookie {
	ck := Cookie{
		Name:   c.Name,
		Value:  c.Value,
		Domain: domain,
		Path:   c.Path,
		Secure: c.Secure,
	}
	if !c.Expires.IsZero() {
		expires := c.Expires
		ck.Expires = &expires
		ck.Expired = expires.Before(time.Now())
	}
	return ck
}

// ToHTTP 转换为标准库 Cookie（仅携带标准库支持的字段）
func (c Cookie) ToHTTP() *http.Cookie {
	hc := &http.Cookie{
		Name:   c.Name,
		Value:  c.Value,
		Domain: c.Domain,
		Path:   c.Path,
		Secure: c.Secure,
	}
	if c.Expires != nil {
		hc.Expires = *c.Expires
	}
	return hc
}

// Equal 判断两条 Cookie 记录是否逐字段相等
func (c Cookie) Equal(o Cookie) bool {
	if c.Name != o.Name || c.Value != o.Value || c.Domain != o.Domain {
		return false
	}
	if c.Comment != o.Comment || c.CommentUri != o.CommentUri {
		return false
	}
	if c.Discard != o.Discard || c.Expired != o.Expired || c.Secure != o.Secure {
		return false
	}
	if c.Path != o.Path || c.Port != o.Port {
		return false
	}
	if (c.Expires == nil) != (o.Expires == nil) {
		return false
	}
	if c.Expires != nil && !c.Expires.Equal(*o.Expires) {
		return false
	}
	return true
}

// findCookie 在切片中按名称查找 Cookie
func findCookie(cookies []Cookie, name string) (Cookie, bool) {
	for _, c := range cookies {
		if c.Name == name {
			return c, true
		}
	}
	return Cookie{}, false
}
