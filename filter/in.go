package filter

import (
	"strconv"
	"strings"

	"github.com/hatlonely/blockx/record"
)

// InFilter column in (...) 或 column not in (...)
type InFilter struct {
	base
	negate bool
	values []any
}

func AnyOf(column string, opts ...Option) *InFilter {
	return &InFilter{base: newBase([]string{column}, opts)}
}

func NoneOf(column string, opts ...Option) *InFilter {
	return &InFilter{base: newBase([]string{column}, opts), negate: true}
}

func (f *InFilter) Kind() Kind {
	if f.negate {
		return KindNoneOf
	}
	return KindAnyOf
}

func (f *InFilter) SetConstraint(values ...any) *InFilter {
	f.values = append([]any(nil), values...)
	f.constrained = true
	return f
}

func (f *InFilter) Reset() *InFilter {
	f.values = nil
	f.constrained = false
	return f
}

func (f *InFilter) Constraint() []any {
	return f.values
}

func (f *InFilter) binds() []BindValue {
	if !f.constrained {
		// 显式命名但未约束，保留一个占位符
		return []BindValue{f.bind("", nil)}
	}
	binds := make([]BindValue, len(f.values))
	for i, v := range f.values {
		binds[i] = f.bind(strconv.Itoa(i), v)
	}
	return binds
}

func (f *InFilter) BindValues() []BindValue {
	if f.unbound() {
		return nil
	}
	return f.binds()
}

func (f *InFilter) Render(r *Renderer) string {
	if f.unbound() {
		return False
	}
	binds := f.binds()
	if len(binds) == 0 {
		if f.negate {
			return "1 = 1"
		}
		return False
	}
	placeholders := make([]string, len(binds))
	for i, b := range binds {
		placeholders[i] = r.Bind(b)
	}
	op := " in ("
	if f.negate {
		op = " not in ("
	}
	return f.column() + op + strings.Join(placeholders, ", ") + ")"
}

func (f *InFilter) Evaluate(row record.Row) bool {
	if !f.constrained {
		return false
	}
	v := row.Get(f.column())
	found := false
	for _, c := range f.values {
		if record.Equal(v, c) {
			found = true
			break
		}
	}
	return found != f.negate
}

func (f *InFilter) ToMongo() map[string]any {
	if !f.constrained {
		return mongoFalse()
	}
	op := "$in"
	if f.negate {
		op = "$nin"
	}
	values := f.values
	if values == nil {
		values = []any{}
	}
	return map[string]any{f.column(): map[string]any{op: values}}
}

func (f *InFilter) Clone() Filter {
	return &InFilter{base: f.clone(), negate: f.negate, values: append([]any(nil), f.values...)}
}
