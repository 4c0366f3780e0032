package mock_test

import (
	"testing"

	"tapeproxy/internal/mock"
)

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name        string
		raw         []byte
		contentType string
		want        string
	}{
		{"空正文", nil, "text/plain", ""},
		{"未声明字符集按UTF-8", []byte("héllo"), "text/plain", "héllo"},
		{"声明UTF-8", []byte("héllo"), "text/plain; charset=utf-8", "héllo"},
		{"Latin-1解码", []byte{0x63, 0x61, 0x66, 0xE9}, "text/plain; charset=iso-8859-1", "café"},
		{"GBK解码", []byte{0xC4, 0xE3, 0xBA, 0xC3}, "text/html; charset=gbk", "你好"},
		{"未知字符集回退UTF-8", []byte("plain"), "text/plain; charset=nonsense", "plain"},
		{"非法Content-Type回退UTF-8", []byte("plain"), ";;;", "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mock.DecodeBody(tt.raw, tt.contentType)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeBody(t *testing.T) {
	t.Run("UTF-8原样编码", func(t *testing.T) {
		got := mock.EncodeBody("café 你好")
		if string(got) != "café 你好" {
			t.Errorf("got %q, want %q", got, "café 你好")
		}
	})
}
