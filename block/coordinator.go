package block

import (
	"sync"

	"github.com/hatlonely/blockx/event"
	"github.com/hatlonely/blockx/log"
	"github.com/hatlonely/blockx/message"
	"github.com/pkg/errors"
)

// Block 协调器需要知道的块状态
type Block interface {
	Name() string
	// InQueryMode 正在输入按例查询条件
	InQueryMode() bool
	// IsEmpty 没有当前记录
	IsEmpty() bool
}

type node struct {
	id      event.BlockID
	block   Block
	masters []*Relation
	details []*Relation
	// 主块字段 -> 以该字段为 Key 的关系
	byField map[string][]*Relation
}

// Coordinator 维护块之间的主从关系图
// 未知的块名通过 Reporter 报告一次，调用返回空结果
type Coordinator struct {
	mu       sync.RWMutex
	nodes    map[string]*node
	next     event.BlockID
	reported map[string]bool
	reporter message.Reporter
	logger   log.Logger
}

func NewCoordinator(reporter message.Reporter, logger log.Logger) *Coordinator {
	return &Coordinator{
		nodes:    map[string]*node{},
		reported: map[string]bool{},
		reporter: message.Or(reporter),
		logger:   log.Or(logger, "coordinator"),
	}
}

func (c *Coordinator) nodeLocked(name string) *node {
	n, ok := c.nodes[name]
	if !ok {
		c.next++
		n = &node{id: c.next, byField: map[string][]*Relation{}}
		c.nodes[name] = n
	}
	return n
}

// Register 注册块并返回它的标识，同名块再次注册时替换块并保留标识
func (c *Coordinator) Register(b Block) event.BlockID {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.nodeLocked(b.Name())
	n.block = b
	delete(c.reported, b.Name())
	return n.id
}

// ID 未注册的块返回 false
func (c *Coordinator) ID(name string) (event.BlockID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.nodes[name]
	if !ok || n.block == nil {
		return 0, false
	}
	return n.id, true
}

func (c *Coordinator) Block(name string) Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n, ok := c.nodes[name]; ok {
		return n.block
	}
	return nil
}

// Link 登记关系，允许先于块注册
// 自引用的关系被报告并返回 false；Key 相同的关系重复登记是幂等的
// 同一主块下名称相同但 Key 不同的关系被报告并返回 false
func (c *Coordinator) Link(r *Relation) bool {
	if r == nil {
		return false
	}
	if r.master.block == r.detail.block {
		c.reporter.Report(message.GroupRelation, message.CodeSelfReference, r.name, r.master.block)
		return false
	}

	linked, ok := c.linkLocked(r)
	if !ok {
		c.logger.Warn("duplicate relation name", "relation", r.name, "master", r.master.block)
		c.reporter.Report(message.GroupRelation, message.CodeDuplicateName, r.name, r.master.block)
	}
	return linked
}

// linkLocked 第二个返回值为 false 表示名称冲突
func (c *Coordinator) linkLocked(r *Relation) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	master := c.nodeLocked(r.master.block)
	for _, existing := range master.details {
		if existing == r || existing.master.Equal(r.master) && existing.detail.Equal(r.detail) {
			return true, true
		}
	}
	for _, existing := range master.details {
		if existing.name == r.name {
			return false, false
		}
	}
	detail := c.nodeLocked(r.detail.block)

	master.details = append(master.details, r)
	detail.masters = append(detail.masters, r)
	for _, f := range r.master.fields {
		master.byField[f] = append(master.byField[f], r)
	}
	return true, true
}

// LinkWithOptions 从配置创建关系并登记，配置错误被报告并返回 false
func (c *Coordinator) LinkWithOptions(options *RelationOptions) bool {
	r, err := NewRelationWithOptions(options)
	if err != nil {
		code := message.CodeInvalidKey
		if errors.Is(err, ErrSelfReference) {
			code = message.CodeSelfReference
		}
		name := ""
		if options != nil {
			name = options.Name
		}
		c.logger.Warn("invalid relation", "relation", name, "error", err.Error())
		c.reporter.Report(message.GroupRelation, code, name, err.Error())
		return false
	}
	return c.Link(r)
}

// lookup 找不到块时报告并返回 nil
func (c *Coordinator) lookup(name string) *node {
	c.mu.RLock()
	n, ok := c.nodes[name]
	c.mu.RUnlock()
	if ok && n.block != nil {
		return n
	}

	c.mu.Lock()
	first := !c.reported[name]
	c.reported[name] = true
	c.mu.Unlock()

	if first {
		c.logger.Warn("unknown block", "block", name)
		c.reporter.Report(message.GroupBlock, message.CodeUnknownBlock, name)
	}
	return nil
}

func (c *Coordinator) Masters(block string) []*Relation {
	n := c.lookup(block)
	if n == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Relation(nil), n.masters...)
}

func (c *Coordinator) Details(block string) []*Relation {
	n := c.lookup(block)
	if n == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Relation(nil), n.details...)
}

// Relation 两个块之间的关系，没有时返回 nil
func (c *Coordinator) Relation(master string, detail string) *Relation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.nodes[master]
	if !ok {
		return nil
	}
	for _, r := range n.details {
		if r.detail.block == detail {
			return r
		}
	}
	return nil
}

// GetQueryMaster 沿主块链向上，返回最上层处于查询模式的块，实际执行查询的是这个块
func (c *Coordinator) GetQueryMaster(block string) string {
	if c.lookup(block) == nil {
		return ""
	}

	current := block
	visited := map[string]bool{block: true}
	for {
		next := ""
		for _, r := range c.Masters(current) {
			m := c.lookup(r.master.block)
			if m == nil {
				continue
			}
			if m.block.InQueryMode() && !visited[r.master.block] {
				next = r.master.block
				break
			}
		}
		if next == "" {
			return current
		}
		visited[next] = true
		current = next
	}
}

// AllowQueryMode 从块能否进入按例查询
// 主块在查询模式时关系必须允许孤立查询；主块不在查询模式但没有当前记录时拒绝
func (c *Coordinator) AllowQueryMode(block string) bool {
	if c.lookup(block) == nil {
		return false
	}
	for _, r := range c.Masters(block) {
		m := c.lookup(r.master.block)
		if m == nil {
			return false
		}
		if m.block.InQueryMode() {
			if !r.allowOrphan {
				return false
			}
			continue
		}
		if m.block.IsEmpty() {
			return false
		}
	}
	return true
}

// AllowMasterLess 同一个块，或两者之间的关系允许孤立查询
func (c *Coordinator) AllowMasterLess(master string, detail string) bool {
	if master == detail {
		return true
	}
	if c.lookup(master) == nil || c.lookup(detail) == nil {
		return false
	}
	r := c.Relation(master, detail)
	return r != nil && r.allowOrphan
}

// GetDetailBlocksForField 主块字段变化时需要重新查询的关系
func (c *Coordinator) GetDetailBlocksForField(block string, field string) []*Relation {
	n := c.lookup(block)
	if n == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Relation(nil), n.byField[field]...)
}

// Names 已注册的块
func (c *Coordinator) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var names []string
	for name, n := range c.nodes {
		if n.block != nil {
			names = append(names, name)
		}
	}
	return names
}

// Reset 移除所有关系，块保持注册
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, n := range c.nodes {
		if n.block == nil {
			delete(c.nodes, name)
			continue
		}
		n.masters = nil
		n.details = nil
		n.byField = map[string][]*Relation{}
	}
}
