package event

import (
	"sync"

	"github.com/hatlonely/blockx/log"
	"github.com/hatlonely/blockx/record"
)

type slot struct {
	event  Type
	record record.Handle
}

// Transaction 每个块同一时刻最多一个进行中的动作
type Transaction struct {
	mu     sync.Mutex
	slots  map[BlockID]slot
	logger log.Logger
}

func NewTransaction(logger log.Logger) *Transaction {
	return &Transaction{
		slots:  map[BlockID]slot{},
		logger: log.Or(logger, "transaction"),
	}
}

// Start 占用块的事务槽
// 成功返回 None；已被占用时返回占用者的类型且不覆盖。event 不能为 None
func (t *Transaction) Start(event Type, block BlockID, rec record.Handle) Type {
	if event == None {
		return None
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.slots[block]; ok {
		t.logger.Debug("transaction refused", "block", block, "event", event, "busy", s.event)
		return s.event
	}
	t.slots[block] = slot{event: event, record: rec}
	return None
}

// Finish 无条件释放
func (t *Transaction) Finish(block BlockID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.slots, block)
}

// Event 当前占用块的动作，空闲时为 None
func (t *Transaction) Event(block BlockID) Type {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.slots[block].event
}

// Record 当前动作作用的记录
func (t *Transaction) Record(block BlockID) (record.Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.slots[block]
	return s.record, ok
}

func (t *Transaction) Busy(block BlockID) bool {
	return t.Event(block) != None
}
