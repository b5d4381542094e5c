package filter

import "github.com/hatlonely/blockx/record"

// EqualsFilter column = value，value 为 nil 时渲染为 is null
type EqualsFilter struct {
	base
	value any
}

func Equals(column string, opts ...Option) *EqualsFilter {
	return &EqualsFilter{base: newBase([]string{column}, opts)}
}

func (f *EqualsFilter) Kind() Kind {
	return KindEquals
}

func (f *EqualsFilter) SetConstraint(value any) *EqualsFilter {
	f.value = value
	f.constrained = true
	return f
}

// Reset 清除约束值
func (f *EqualsFilter) Reset() *EqualsFilter {
	f.value = nil
	f.constrained = false
	return f
}

func (f *EqualsFilter) Constraint() any {
	return f.value
}

func (f *EqualsFilter) BindValues() []BindValue {
	if f.unbound() || (f.constrained && f.value == nil) {
		return nil
	}
	return []BindValue{f.bind("", f.value)}
}

func (f *EqualsFilter) Render(r *Renderer) string {
	if f.unbound() {
		return False
	}
	if f.constrained && f.value == nil {
		return f.column() + " is null"
	}
	return f.column() + " = " + r.Bind(f.bind("", f.value))
}

func (f *EqualsFilter) Evaluate(row record.Row) bool {
	if !f.constrained {
		return false
	}
	return record.Equal(row.Get(f.column()), f.value)
}

func (f *EqualsFilter) ToMongo() map[string]any {
	if !f.constrained {
		return mongoFalse()
	}
	return map[string]any{f.column(): f.value}
}

func (f *EqualsFilter) Clone() Filter {
	return &EqualsFilter{base: f.clone(), value: f.value}
}
