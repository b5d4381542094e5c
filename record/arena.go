package record

import "sync"

// Arena 持有一组记录，按 Handle 查找
type Arena struct {
	mu            sync.RWMutex
	transactional bool
	next          Handle
	records       map[Handle]*Record
}

// NewArena transactional 决定写入完成的状态是否保留到提交
func NewArena(transactional bool) *Arena {
	return &Arena{
		transactional: transactional,
		records:       map[Handle]*Record{},
	}
}

func (a *Arena) Transactional() bool {
	return a.transactional
}

// New 分配一条记录，Handle 单调递增
func (a *Arena) New(columns []Column, state State) *Record {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.next++
	r := newRecord(a.next, columns, state, a.transactional)
	a.records[r.handle] = r
	return r
}

// Get 不存在或已释放时返回 nil
func (a *Arena) Get(h Handle) *Record {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.records[h]
}

// Release 解除记录与 Arena 的关联
func (a *Arena) Release(h Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.records, h)
}

func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.records)
}

// Reset 释放所有记录，Handle 计数不回退
func (a *Arena) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = map[Handle]*Record{}
}
