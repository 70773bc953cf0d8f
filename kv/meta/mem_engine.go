package meta

import (
	"bytes"
	"sync"

	"github.com/petar/GoLLRB/llrb"
)

// MemEngine is an Engine backed by memory. Nothing is written to disk; it is used for tests and for nodes configured
// without a data directory.
type MemEngine struct {
	mu   sync.RWMutex
	data *llrb.LLRB
}

func NewMemEngine() *MemEngine {
	return &MemEngine{data: llrb.New()}
}

func (e *MemEngine) Write(batch []Modify) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, m := range batch {
		switch data := m.Data.(type) {
		case Put:
			e.data.ReplaceOrInsert(memItem{key: data.Key, value: data.Value})
		case Delete:
			e.data.Delete(memItem{key: data.Key})
		}
	}
	return nil
}

func (e *MemEngine) Scan(prefix []byte, fn func(key, value []byte) bool) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	e.data.AscendGreaterOrEqual(memItem{key: prefix}, func(i llrb.Item) bool {
		item := i.(memItem)
		if !bytes.HasPrefix(item.key, prefix) {
			return false
		}
		return fn(item.key, item.value)
	})
	return nil
}

func (e *MemEngine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.data.Len()
}

func (e *MemEngine) Close() error {
	return nil
}

type memItem struct {
	key   []byte
	value []byte
}

func (it memItem) Less(than llrb.Item) bool {
	return bytes.Compare(it.key, than.(memItem).key) < 0
}
