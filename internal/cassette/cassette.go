package cassette

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"

	"tapeproxy/internal/mock"
	"tapeproxy/pkg/domain"
)

// Cassette 磁带文件：以记录名为键的交换序列集合，落盘为单个 JSON 文档。
// 记录内的交换顺序有意义（等于录制顺序与回放消费顺序），记录键的顺序无意义。
type Cassette struct {
	path    string
	names   []string
	records map[string][]mock.Exchange
}

// New 打开指定路径的磁带。
// 文件存在时立即解析并缓存全部记录，不存在时集合为空、首次 Save 时创建。
func New(path string) (*Cassette, error) {
	c := &Cassette{
		path:    path,
		records: make(map[string][]mock.Exchange),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("%w: read cassette %s: %v", domain.ErrIoFailure, path, err)
	}

	if err := c.parse(data); err != nil {
		return nil, err
	}
	return c, nil
}

// parse 解析磁带文档，保留文件中的记录出现顺序
func (c *Cassette) parse(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("%w: cassette %s is not valid JSON", domain.ErrIoFailure, c.path)
	}

	var parseErr error
	gjson.ParseBytes(data).ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		var exchanges []mock.Exchange
		if err := json.Unmarshal([]byte(value.Raw), &exchanges); err != nil {
			parseErr = fmt.Errorf("%w: record %q in cassette %s: %v",
				domain.ErrIoFailure, name, c.path, err)
			return false
		}
		c.names = append(c.names, name)
		c.records[name] = exchanges
		return true
	})
	return parseErr
}

// Path 返回磁带文件路径
func (c *Cassette) Path() string {
	return c.path
}

// Contains 判断是否存在指定名字的记录
func (c *Cassette) Contains(name string) bool {
	_, ok := c.records[name]
	return ok
}

// Names 返回全部记录名
func (c *Cassette) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Find 返回指定名字的记录，不存在时返回 nil。
// 每次调用返回独立的 Record 实例，游标互不影响。
func (c *Cassette) Find(name string) *Record {
	exchanges, ok := c.records[name]
	if !ok {
		return nil
	}
	return newRecordWith(name, exchanges)
}

// Save 按名字插入或替换记录，并将整盘磁带重写到文件。
// 先写入同目录临时文件再重命名，单次保存对崩溃是原子的。
func (c *Cassette) Save(rec *Record) error {
	if _, ok := c.records[rec.Name()]; !ok {
		c.names = append(c.names, rec.Name())
	}
	exchanges := make([]mock.Exchange, len(rec.exchanges))
	copy(exchanges, rec.exchanges)
	c.records[rec.Name()] = exchanges

	doc := make(map[string]json.RawMessage, len(c.records))
	for name, exs := range c.records {
		raw, err := json.Marshal(exs)
		if err != nil {
			return fmt.Errorf("%w: marshal record %q: %v", domain.ErrIoFailure, name, err)
		}
		doc[name] = raw
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal cassette: %v", domain.ErrIoFailure, err)
	}

	return c.writeAtomic(data)
}

// writeAtomic 经同目录临时文件落盘后重命名
func (c *Cassette) writeAtomic(data []byte) error {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create cassette dir %s: %v", domain.ErrIoFailure, dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".cassette-*.json")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", domain.ErrIoFailure, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write cassette: %v", domain.ErrIoFailure, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close cassette: %v", domain.ErrIoFailure, err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: rename cassette: %v", domain.ErrIoFailure, err)
	}
	return nil
}
