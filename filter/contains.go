package filter

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hatlonely/blockx/record"
	"github.com/spf13/cast"
)

// ContainsFilter 在一列或多列中做大小写不敏感的子串搜索，任一列包含即匹配
type ContainsFilter struct {
	base
	term string
}

func Contains(columns []string, opts ...Option) *ContainsFilter {
	return &ContainsFilter{base: newBase(append([]string(nil), columns...), opts)}
}

func (f *ContainsFilter) Kind() Kind {
	return KindContains
}

func (f *ContainsFilter) SetConstraint(term string) *ContainsFilter {
	f.term = term
	f.constrained = term != ""
	return f
}

func (f *ContainsFilter) Reset() *ContainsFilter {
	f.term = ""
	f.constrained = false
	return f
}

func (f *ContainsFilter) Constraint() string {
	return f.term
}

func (f *ContainsFilter) binds() []BindValue {
	binds := make([]BindValue, len(f.columns))
	for i := range f.columns {
		suffix := ""
		if len(f.columns) > 1 {
			suffix = strconv.Itoa(i)
		}
		b := f.bind(suffix, f.term)
		b.Type = record.TypeString
		b.pattern = "%" + f.term + "%"
		binds[i] = b
	}
	return binds
}

func (f *ContainsFilter) BindValues() []BindValue {
	if f.unbound() {
		return nil
	}
	return f.binds()
}

func (f *ContainsFilter) Render(r *Renderer) string {
	if f.unbound() || len(f.columns) == 0 {
		return False
	}
	binds := f.binds()
	clauses := make([]string, len(binds))
	for i, b := range binds {
		clauses[i] = r.ILike(f.columns[i], r.Bind(b))
	}
	if len(clauses) == 1 {
		return clauses[0]
	}
	return "(" + strings.Join(clauses, " or ") + ")"
}

func (f *ContainsFilter) Evaluate(row record.Row) bool {
	if !f.constrained {
		return false
	}
	term := strings.ToLower(f.term)
	for _, column := range f.columns {
		v := row.Get(column)
		if v == nil {
			continue
		}
		s, err := cast.ToStringE(v)
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(s), term) {
			return true
		}
	}
	return false
}

func (f *ContainsFilter) ToMongo() map[string]any {
	if !f.constrained || len(f.columns) == 0 {
		return mongoFalse()
	}
	cond := map[string]any{"$regex": regexp.QuoteMeta(f.term), "$options": "i"}
	if len(f.columns) == 1 {
		return map[string]any{f.columns[0]: cond}
	}
	or := make([]any, len(f.columns))
	for i, column := range f.columns {
		or[i] = map[string]any{column: cond}
	}
	return map[string]any{"$or": or}
}

func (f *ContainsFilter) Clone() Filter {
	return &ContainsFilter{base: f.clone(), term: f.term}
}
