package filter

import (
	"github.com/hatlonely/blockx/record"
)

// SubQueryFilter column in (select selectColumn from table where ...)
// 在内存中求值需要先 Resolve 出子查询结果，未解析时视为不受限
type SubQueryFilter struct {
	base
	table        string
	selectColumn string
	sub          *Structure
	resolved     bool
	values       []any
}

func SubQuery(column string, table string, selectColumn string, sub *Structure, opts ...Option) *SubQueryFilter {
	if sub == nil {
		sub = NewStructure()
	}
	f := &SubQueryFilter{
		base:         newBase([]string{column}, opts),
		table:        table,
		selectColumn: selectColumn,
		sub:          sub,
	}
	f.constrained = true
	return f
}

func (f *SubQueryFilter) Kind() Kind {
	return KindSubQuery
}

func (f *SubQueryFilter) Structure() *Structure {
	return f.sub
}

func (f *SubQueryFilter) Table() string {
	return f.table
}

func (f *SubQueryFilter) SelectColumn() string {
	return f.selectColumn
}

// Resolve 设置子查询的结果集
func (f *SubQueryFilter) Resolve(values []any) *SubQueryFilter {
	f.values = append([]any(nil), values...)
	f.resolved = true
	return f
}

func (f *SubQueryFilter) Resolved() bool {
	return f.resolved
}

func (f *SubQueryFilter) BindValues() []BindValue {
	return f.sub.BindValues()
}

func (f *SubQueryFilter) Render(r *Renderer) string {
	clause := f.column() + " in (select " + f.selectColumn + " from " + f.table
	if where, _ := f.sub.render(r); where != "" {
		clause += " where " + where
	}
	return clause + ")"
}

func (f *SubQueryFilter) Evaluate(row record.Row) bool {
	if !f.resolved {
		return true
	}
	v := row.Get(f.column())
	for _, c := range f.values {
		if record.Equal(v, c) {
			return true
		}
	}
	return false
}

func (f *SubQueryFilter) ToMongo() map[string]any {
	if !f.resolved {
		return map[string]any{}
	}
	values := f.values
	if values == nil {
		values = []any{}
	}
	return map[string]any{f.column(): map[string]any{"$in": values}}
}

func (f *SubQueryFilter) Clone() Filter {
	c := &SubQueryFilter{
		base:         f.clone(),
		table:        f.table,
		selectColumn: f.selectColumn,
		sub:          f.sub.Clone(),
		resolved:     f.resolved,
		values:       append([]any(nil), f.values...),
	}
	return c
}
