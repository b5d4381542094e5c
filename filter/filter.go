package filter

import (
	"strings"
	"unicode"

	"github.com/hatlonely/blockx/record"
)

// False 没有约束也没有绑定参数的过滤条件渲染为恒假，避免意外的全表查询
const False = "1 = 0"

type Kind string

const (
	KindEquals      Kind = "equals"
	KindLike        Kind = "like"
	KindILike       Kind = "ilike"
	KindBetween     Kind = "between"
	KindGreaterThan Kind = "greaterThan"
	KindLessThan    Kind = "lessThan"
	KindAnyOf       Kind = "anyOf"
	KindNoneOf      Kind = "noneOf"
	KindContains    Kind = "contains"
	KindSubQuery    Kind = "subQuery"
	KindCustom      Kind = "custom"
)

// Filter 过滤条件
type Filter interface {
	Kind() Kind
	Columns() []string
	// Name 绑定参数名，未指定时由列名生成
	Name() string
	Type() record.Type
	Constrained() bool
	BindValues() []BindValue
	Render(r *Renderer) string
	Evaluate(row record.Row) bool
	ToMongo() map[string]any
	// Clone 深拷贝，参数名保持不变
	Clone() Filter
}

type Option func(*base)

// WithName 指定绑定参数名，指定后即使没有约束值也会渲染出占位符
func WithName(name string) Option {
	return func(b *base) {
		if name != "" {
			b.name = name
			b.explicit = true
		}
	}
}

func WithType(t record.Type) Option {
	return func(b *base) {
		b.typ = t
	}
}

type base struct {
	columns     []string
	name        string
	explicit    bool
	typ         record.Type
	constrained bool
}

func newBase(columns []string, opts []Option) base {
	b := base{columns: columns}
	if len(columns) > 0 {
		b.name = bindName(columns[0])
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b *base) Columns() []string {
	return b.columns
}

func (b *base) column() string {
	if len(b.columns) == 0 {
		return ""
	}
	return b.columns[0]
}

func (b *base) Name() string {
	return b.name
}

func (b *base) Constrained() bool {
	return b.constrained
}

// unbound 既没有约束值也没有显式参数名
func (b *base) unbound() bool {
	return !b.constrained && !b.explicit
}

func (b *base) bindType(v any) record.Type {
	if b.typ != record.TypeUnknown {
		return b.typ
	}
	return record.InferType(v)
}

func (b *base) bind(suffix string, v any) BindValue {
	return BindValue{Name: b.name + suffix, Type: b.bindType(v), Value: v}
}

func (b *base) clone() base {
	c := *b
	c.columns = append([]string(nil), b.columns...)
	return c
}

// bindName 列名中不能出现在占位符里的字符替换为下划线
func bindName(column string) string {
	return strings.Map(func(r rune) rune {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, column)
}

// mongoFalse 不匹配任何文档
func mongoFalse() map[string]any {
	return map[string]any{"_id": map[string]any{"$in": []any{}}}
}

func (b *base) Type() record.Type {
	return b.typ
}
