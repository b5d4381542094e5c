package filter

import (
	"github.com/hatlonely/blockx/record"
)

// Connector 条目与前一个条目的连接方式
type Connector int

const (
	And Connector = iota
	Or
)

func (c Connector) String() string {
	if c == Or {
		return "or"
	}
	return "and"
}

// entry 叶子条件或子结构，二者恰有一个非空
type entry struct {
	conn Connector
	name string
	leaf Filter
	sub  *Structure
}

// Structure 有序的条件树
// 条目按插入顺序从左到右组合，不考虑 and/or 的优先级：a or b and c 等价于 (a or b) and c
type Structure struct {
	name    string
	entries []entry
}

func NewStructure(name ...string) *Structure {
	s := &Structure{}
	if len(name) > 0 {
		s.name = name[0]
	}
	return s
}

func (s *Structure) Name() string {
	return s.name
}

// And 以 and 连接追加过滤条件
// 同一个实例已存在时先删除再追加；显式给出 name 时同名条目被替换
// name 缺省时取过滤条件的参数名，不替换已有条目
func (s *Structure) And(f Filter, name ...string) *Structure {
	return s.addFilter(And, f, name)
}

func (s *Structure) Or(f Filter, name ...string) *Structure {
	return s.addFilter(Or, f, name)
}

// AndStructure 以 and 连接追加子结构，name 缺省时取子结构的名称，规则同 And
func (s *Structure) AndStructure(sub *Structure, name ...string) *Structure {
	return s.addStructure(And, sub, name)
}

func (s *Structure) OrStructure(sub *Structure, name ...string) *Structure {
	return s.addStructure(Or, sub, name)
}

func (s *Structure) addFilter(conn Connector, f Filter, name []string) *Structure {
	if f == nil {
		return s
	}
	n := f.Name()
	s.DeleteFilter(f)
	if len(name) > 0 && name[0] != "" {
		n = name[0]
		s.removeName(n)
	}
	s.entries = append(s.entries, entry{conn: conn, name: n, leaf: f})
	return s
}

func (s *Structure) addStructure(conn Connector, sub *Structure, name []string) *Structure {
	if sub == nil || sub == s {
		return s
	}
	n := sub.name
	s.DeleteStructure(sub)
	if len(name) > 0 && name[0] != "" {
		n = name[0]
		s.removeName(n)
	}
	s.entries = append(s.entries, entry{conn: conn, name: n, sub: sub})
	return s
}

// removeName 只在当前层按名称删除
func (s *Structure) removeName(name string) bool {
	if name == "" {
		return false
	}
	for i, e := range s.entries {
		if e.name == name {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return true
		}
	}
	return false
}

// DeleteName 先在子结构中递归查找，再查找当前层
func (s *Structure) DeleteName(name string) bool {
	for _, e := range s.entries {
		if e.sub != nil && e.sub.DeleteName(name) {
			return true
		}
	}
	return s.removeName(name)
}

func (s *Structure) DeleteFilter(f Filter) bool {
	for _, e := range s.entries {
		if e.sub != nil && e.sub.DeleteFilter(f) {
			return true
		}
	}
	for i, e := range s.entries {
		if e.leaf != nil && e.leaf == f {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Structure) DeleteStructure(sub *Structure) bool {
	for _, e := range s.entries {
		if e.sub != nil && e.sub.DeleteStructure(sub) {
			return true
		}
	}
	for i, e := range s.entries {
		if e.sub == sub {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Filter 按名称递归查找叶子条件
func (s *Structure) Filter(name string) Filter {
	for _, e := range s.entries {
		if e.leaf != nil && e.name == name {
			return e.leaf
		}
	}
	for _, e := range s.entries {
		if e.sub != nil {
			if f := e.sub.Filter(name); f != nil {
				return f
			}
		}
	}
	return nil
}

// Len 当前层的条目数
func (s *Structure) Len() int {
	return len(s.entries)
}

// IsEmpty 整棵树中没有叶子条件
func (s *Structure) IsEmpty() bool {
	for _, e := range s.entries {
		if e.leaf != nil || !e.sub.IsEmpty() {
			return false
		}
	}
	return true
}

func (s *Structure) hasLeaf() bool {
	for _, e := range s.entries {
		if e.leaf != nil {
			return true
		}
	}
	return false
}

// Filters 按树的遍历顺序展开所有叶子条件
func (s *Structure) Filters() []Filter {
	var filters []Filter
	for _, e := range s.entries {
		if e.leaf != nil {
			filters = append(filters, e.leaf)
		} else {
			filters = append(filters, e.sub.Filters()...)
		}
	}
	return filters
}

// Evaluate 从左到右折叠求值，结果已确定的条目不再求值；空结构为真
func (s *Structure) Evaluate(row record.Row) bool {
	result, first := true, true
	for _, e := range s.entries {
		if e.sub != nil && e.sub.IsEmpty() {
			continue
		}
		if first {
			result = e.evaluate(row)
			first = false
			continue
		}
		if e.conn == Or && result || e.conn == And && !result {
			continue
		}
		result = e.evaluate(row)
	}
	return result
}

func (e entry) evaluate(row record.Row) bool {
	if e.leaf != nil {
		return e.leaf.Evaluate(row)
	}
	return e.sub.Evaluate(row)
}

// AsSQL 以 :name 占位符渲染
func (s *Structure) AsSQL() string {
	clause, _ := s.render(NewRenderer(NamedDialect{}))
	return clause
}

// Render 渲染条件子句，参数顺序与占位符出现的顺序一致
func (s *Structure) Render(dialect Dialect) (string, []BindValue) {
	r := NewRenderer(dialect)
	clause, _ := s.render(r)
	return clause, r.BindValues()
}

// RenderTo 使用已有的 Renderer 渲染，用于和其他子句共享占位符编号
func (s *Structure) RenderTo(r *Renderer) string {
	clause, _ := s.render(r)
	return clause
}

// BindValues 按占位符出现的顺序返回参数
func (s *Structure) BindValues() []BindValue {
	_, binds := s.Render(NamedDialect{})
	return binds
}

// render 返回子句以及子句最外层是否是未加括号的 or
func (s *Structure) render(r *Renderer) (string, bool) {
	var (
		clause string
		topOr  bool
	)
	for _, e := range s.entries {
		part, partOr := e.render(r)
		if part == "" {
			continue
		}
		if clause == "" {
			clause, topOr = part, partOr
			continue
		}
		if e.conn == And {
			// 保持从左到右的折叠语义
			if topOr {
				clause = "(" + clause + ")"
			}
			if partOr {
				part = "(" + part + ")"
			}
			clause += " and " + part
			topOr = false
			continue
		}
		clause += " or " + part
		topOr = true
	}
	return clause, topOr
}

func (e entry) render(r *Renderer) (string, bool) {
	if e.leaf != nil {
		return e.leaf.Render(r), false
	}
	clause, topOr := e.sub.render(r)
	if clause == "" {
		return "", false
	}
	if e.sub.hasLeaf() {
		return "(" + clause + ")", false
	}
	return clause, topOr
}

// ToMongo 渲染为 mongo 过滤文档，空结构为 {}
func (s *Structure) ToMongo() map[string]any {
	var doc map[string]any
	for _, e := range s.entries {
		var part map[string]any
		if e.leaf != nil {
			part = e.leaf.ToMongo()
		} else {
			if e.sub.IsEmpty() {
				continue
			}
			part = e.sub.ToMongo()
		}
		if doc == nil {
			doc = part
			continue
		}
		op := "$and"
		if e.conn == Or {
			op = "$or"
		}
		if items, ok := doc[op].([]any); ok && len(doc) == 1 {
			doc = map[string]any{op: append(items, part)}
		} else {
			doc = map[string]any{op: []any{doc, part}}
		}
	}
	if doc == nil {
		return map[string]any{}
	}
	return doc
}

// Clone 深拷贝整棵树，叶子条件通过 Filter.Clone 复制
func (s *Structure) Clone() *Structure {
	c := &Structure{name: s.name, entries: make([]entry, len(s.entries))}
	for i, e := range s.entries {
		c.entries[i] = entry{conn: e.conn, name: e.name}
		if e.leaf != nil {
			c.entries[i].leaf = e.leaf.Clone()
		} else {
			c.entries[i].sub = e.sub.Clone()
		}
	}
	return c
}
