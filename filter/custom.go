package filter

import (
	"strings"

	"github.com/hatlonely/blockx/record"
)

// CustomFilter 直接给出的条件子句，子句中的 {} 依次替换为参数占位符
type CustomFilter struct {
	base
	clause   string
	binds    []BindValue
	evaluate func(row record.Row) bool
	mongo    map[string]any
}

func Custom(clause string, binds ...BindValue) *CustomFilter {
	f := &CustomFilter{
		base:   newBase(nil, nil),
		clause: clause,
		binds:  append([]BindValue(nil), binds...),
	}
	f.name = "custom"
	if len(binds) > 0 {
		f.name = binds[0].Name
	}
	f.constrained = clause != ""
	return f
}

func (f *CustomFilter) Kind() Kind {
	return KindCustom
}

// WithEvaluator 设置内存求值函数，未设置时恒为真
func (f *CustomFilter) WithEvaluator(fn func(row record.Row) bool) *CustomFilter {
	f.evaluate = fn
	return f
}

// WithMongo 设置 mongo 渲染结果，未设置时不受限
func (f *CustomFilter) WithMongo(doc map[string]any) *CustomFilter {
	f.mongo = doc
	return f
}

func (f *CustomFilter) Clause() string {
	return f.clause
}

func (f *CustomFilter) BindValues() []BindValue {
	if !f.constrained {
		return nil
	}
	return append([]BindValue(nil), f.binds...)
}

func (f *CustomFilter) Render(r *Renderer) string {
	if !f.constrained {
		return False
	}
	parts := strings.Split(f.clause, "{}")
	var sb strings.Builder
	for i, part := range parts {
		sb.WriteString(part)
		if i == len(parts)-1 {
			break
		}
		if i < len(f.binds) {
			sb.WriteString(r.Bind(f.binds[i]))
		} else {
			sb.WriteString("null")
		}
	}
	return sb.String()
}

func (f *CustomFilter) Evaluate(row record.Row) bool {
	if !f.constrained {
		return false
	}
	if f.evaluate == nil {
		return true
	}
	return f.evaluate(row)
}

func (f *CustomFilter) ToMongo() map[string]any {
	if !f.constrained {
		return mongoFalse()
	}
	if f.mongo == nil {
		return map[string]any{}
	}
	return f.mongo
}

func (f *CustomFilter) Clone() Filter {
	return &CustomFilter{
		base:     f.clone(),
		clause:   f.clause,
		binds:    append([]BindValue(nil), f.binds...),
		evaluate: f.evaluate,
		mongo:    f.mongo,
	}
}
