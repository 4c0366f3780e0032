package cassette_test

import (
	"errors"
	"testing"

	"tapeproxy/internal/cassette"
	"tapeproxy/internal/mock"
	"tapeproxy/pkg/domain"
)

func exchange(method, uri string) mock.Exchange {
	return mock.Exchange{
		Request:  &mock.Request{Method: method, URI: uri},
		Response: &mock.Response{StatusCode: 200, StatusDescription: "OK"},
	}
}

func TestRecordReadWrite(t *testing.T) {
	t.Run("按写入顺序读取", func(t *testing.T) {
		rec := cassette.NewRecord("case")
		rec.Write(exchange("GET", "http://up/a"))
		rec.Write(exchange("GET", "http://up/b"))
		rec.Rewind()

		first, err := rec.Read()
		if err != nil {
			t.Fatal(err)
		}
		if first.Request.URI != "http://up/a" {
			t.Errorf("first got %q", first.Request.URI)
		}
		second, err := rec.Read()
		if err != nil {
			t.Fatal(err)
		}
		if second.Request.URI != "http://up/b" {
			t.Errorf("second got %q", second.Request.URI)
		}
	})

	t.Run("耗尽后返回ErrEndOfRecord", func(t *testing.T) {
		rec := cassette.NewRecord("case")
		rec.Write(exchange("GET", "http://up/a"))
		rec.Rewind()

		if _, err := rec.Read(); err != nil {
			t.Fatal(err)
		}
		if _, err := rec.Read(); !errors.Is(err, domain.ErrEndOfRecord) {
			t.Errorf("err got %v, want ErrEndOfRecord", err)
		}
	})

	t.Run("空记录直接耗尽", func(t *testing.T) {
		rec := cassette.NewRecord("empty")
		if _, err := rec.Read(); !errors.Is(err, domain.ErrEndOfRecord) {
			t.Errorf("err got %v, want ErrEndOfRecord", err)
		}
	})

	t.Run("Rewind重置游标", func(t *testing.T) {
		rec := cassette.NewRecord("case")
		rec.Write(exchange("GET", "http://up/a"))
		rec.Rewind()
		if _, err := rec.Read(); err != nil {
			t.Fatal(err)
		}
		rec.Rewind()
		if _, err := rec.Read(); err != nil {
			t.Errorf("read after rewind failed: %v", err)
		}
	})

	t.Run("Len返回交换数量", func(t *testing.T) {
		rec := cassette.NewRecord("case")
		if rec.Len() != 0 {
			t.Errorf("len got %d, want 0", rec.Len())
		}
		rec.Write(exchange("GET", "http://up/a"))
		rec.Write(exchange("GET", "http://up/b"))
		if rec.Len() != 2 {
			t.Errorf("len got %d, want 2", rec.Len())
		}
	})
}
