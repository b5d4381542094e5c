package filter

import (
	"github.com/hatlonely/blockx/record"
)

// BetweenFilter 区间过滤，任一端为 nil 时该端不受限
type BetweenFilter struct {
	base
	inclusive bool
	lo, hi    any
}

func Between(column string, inclusive bool, opts ...Option) *BetweenFilter {
	return &BetweenFilter{base: newBase([]string{column}, opts), inclusive: inclusive}
}

func (f *BetweenFilter) Kind() Kind {
	return KindBetween
}

func (f *BetweenFilter) SetConstraint(lo, hi any) *BetweenFilter {
	f.lo, f.hi = lo, hi
	f.constrained = lo != nil || hi != nil
	return f
}

func (f *BetweenFilter) Reset() *BetweenFilter {
	f.lo, f.hi = nil, nil
	f.constrained = false
	return f
}

func (f *BetweenFilter) Constraint() (any, any) {
	return f.lo, f.hi
}

func (f *BetweenFilter) Inclusive() bool {
	return f.inclusive
}

func (f *BetweenFilter) operators() (string, string) {
	if f.inclusive {
		return ">=", "<="
	}
	return ">", "<"
}

// 未约束但显式命名时两端都渲染占位符
func (f *BetweenFilter) bounds() (lo, hi bool) {
	if !f.constrained {
		return true, true
	}
	return f.lo != nil, f.hi != nil
}

func (f *BetweenFilter) BindValues() []BindValue {
	if f.unbound() {
		return nil
	}
	var binds []BindValue
	lo, hi := f.bounds()
	if lo {
		binds = append(binds, f.bind("0", f.lo))
	}
	if hi {
		binds = append(binds, f.bind("1", f.hi))
	}
	return binds
}

func (f *BetweenFilter) Render(r *Renderer) string {
	if f.unbound() {
		return False
	}
	geOp, leOp := f.operators()
	lo, hi := f.bounds()
	column := f.column()
	switch {
	case lo && hi:
		return "(" + column + " " + geOp + " " + r.Bind(f.bind("0", f.lo)) +
			" and " + column + " " + leOp + " " + r.Bind(f.bind("1", f.hi)) + ")"
	case lo:
		return column + " " + geOp + " " + r.Bind(f.bind("0", f.lo))
	default:
		return column + " " + leOp + " " + r.Bind(f.bind("1", f.hi))
	}
}

func (f *BetweenFilter) Evaluate(row record.Row) bool {
	if !f.constrained {
		return false
	}
	v := row.Get(f.column())
	if f.lo != nil && !compareOK(v, f.lo, f.inclusive, 1) {
		return false
	}
	if f.hi != nil && !compareOK(v, f.hi, f.inclusive, -1) {
		return false
	}
	return true
}

func (f *BetweenFilter) ToMongo() map[string]any {
	if !f.constrained {
		return mongoFalse()
	}
	geOp, leOp := "$gt", "$lt"
	if f.inclusive {
		geOp, leOp = "$gte", "$lte"
	}
	cond := map[string]any{}
	if f.lo != nil {
		cond[geOp] = f.lo
	}
	if f.hi != nil {
		cond[leOp] = f.hi
	}
	return map[string]any{f.column(): cond}
}

func (f *BetweenFilter) Clone() Filter {
	return &BetweenFilter{base: f.clone(), inclusive: f.inclusive, lo: f.lo, hi: f.hi}
}

// CompareFilter 单边比较，GreaterThan 和 LessThan 共用
type CompareFilter struct {
	base
	greater   bool
	inclusive bool
	value     any
}

// GreaterThan inclusive 为 true 时为 >=
func GreaterThan(column string, inclusive bool, opts ...Option) *CompareFilter {
	return &CompareFilter{base: newBase([]string{column}, opts), greater: true, inclusive: inclusive}
}

// LessThan inclusive 为 true 时为 <=
func LessThan(column string, inclusive bool, opts ...Option) *CompareFilter {
	return &CompareFilter{base: newBase([]string{column}, opts), inclusive: inclusive}
}

func (f *CompareFilter) Kind() Kind {
	if f.greater {
		return KindGreaterThan
	}
	return KindLessThan
}

func (f *CompareFilter) SetConstraint(value any) *CompareFilter {
	f.value = value
	f.constrained = value != nil
	return f
}

func (f *CompareFilter) Reset() *CompareFilter {
	f.value = nil
	f.constrained = false
	return f
}

func (f *CompareFilter) Constraint() any {
	return f.value
}

func (f *CompareFilter) operator() string {
	op := "<"
	if f.greater {
		op = ">"
	}
	if f.inclusive {
		op += "="
	}
	return op
}

func (f *CompareFilter) BindValues() []BindValue {
	if f.unbound() {
		return nil
	}
	return []BindValue{f.bind("", f.value)}
}

func (f *CompareFilter) Render(r *Renderer) string {
	if f.unbound() {
		return False
	}
	return f.column() + " " + f.operator() + " " + r.Bind(f.bind("", f.value))
}

func (f *CompareFilter) Evaluate(row record.Row) bool {
	if !f.constrained {
		return false
	}
	sign := -1
	if f.greater {
		sign = 1
	}
	return compareOK(row.Get(f.column()), f.value, f.inclusive, sign)
}

func (f *CompareFilter) ToMongo() map[string]any {
	if !f.constrained {
		return mongoFalse()
	}
	op := "$lt"
	if f.greater {
		op = "$gt"
	}
	if f.inclusive {
		op += "e"
	}
	return map[string]any{f.column(): map[string]any{op: f.value}}
}

func (f *CompareFilter) Clone() Filter {
	return &CompareFilter{base: f.clone(), greater: f.greater, inclusive: f.inclusive, value: f.value}
}

// compareOK 判断 v 与 bound 的比较结果是否落在 sign 一侧，inclusive 时相等也成立
func compareOK(v, bound any, inclusive bool, sign int) bool {
	c, ok := record.Compare(v, bound)
	if !ok {
		return false
	}
	if c == 0 {
		return inclusive
	}
	return c == sign
}
