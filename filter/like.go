package filter

import (
	"regexp"
	"strings"

	"github.com/hatlonely/blockx/record"
	"github.com/spf13/cast"
)

// LikeFilter column like pattern，% 匹配任意串，_ 匹配单个字符
type LikeFilter struct {
	base
	insensitive bool
	pattern     string
	re          *regexp.Regexp
}

func Like(column string, opts ...Option) *LikeFilter {
	return &LikeFilter{base: newBase([]string{column}, opts)}
}

// ILike 大小写不敏感的 Like
func ILike(column string, opts ...Option) *LikeFilter {
	return &LikeFilter{base: newBase([]string{column}, opts), insensitive: true}
}

func (f *LikeFilter) Kind() Kind {
	if f.insensitive {
		return KindILike
	}
	return KindLike
}

func (f *LikeFilter) SetConstraint(pattern string) *LikeFilter {
	f.pattern = pattern
	f.constrained = true
	f.re = likeRegexp(pattern, f.insensitive)
	return f
}

func (f *LikeFilter) Reset() *LikeFilter {
	f.pattern = ""
	f.re = nil
	f.constrained = false
	return f
}

func (f *LikeFilter) Constraint() string {
	return f.pattern
}

func (f *LikeFilter) bindValue() BindValue {
	value := strings.Trim(f.pattern, "%")
	b := f.bind("", value)
	b.Type = record.TypeString
	if value != f.pattern {
		b.pattern = f.pattern
	}
	return b
}

func (f *LikeFilter) BindValues() []BindValue {
	if f.unbound() {
		return nil
	}
	return []BindValue{f.bindValue()}
}

func (f *LikeFilter) Render(r *Renderer) string {
	if f.unbound() {
		return False
	}
	placeholder := r.Bind(f.bindValue())
	if f.insensitive {
		return r.ILike(f.column(), placeholder)
	}
	return f.column() + " like " + placeholder
}

func (f *LikeFilter) Evaluate(row record.Row) bool {
	if !f.constrained || f.re == nil {
		return false
	}
	v := row.Get(f.column())
	if v == nil {
		return false
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return false
	}
	return f.re.MatchString(s)
}

func (f *LikeFilter) ToMongo() map[string]any {
	if !f.constrained {
		return mongoFalse()
	}
	cond := map[string]any{"$regex": likeToRegexp(f.pattern)}
	if f.insensitive {
		cond["$options"] = "i"
	}
	return map[string]any{f.column(): cond}
}

func (f *LikeFilter) Clone() Filter {
	return &LikeFilter{base: f.clone(), insensitive: f.insensitive, pattern: f.pattern, re: f.re}
}

// likeToRegexp 将 like 模式转为锚定的正则，\ 转义下一个字符
func likeToRegexp(pattern string) string {
	var sb strings.Builder
	sb.WriteString("^")
	escaped := false
	for _, c := range pattern {
		switch {
		case escaped:
			sb.WriteString(regexp.QuoteMeta(string(c)))
			escaped = false
		case c == '\\':
			escaped = true
		case c == '%':
			sb.WriteString(".*")
		case c == '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	sb.WriteString("$")
	return sb.String()
}

func likeRegexp(pattern string, insensitive bool) *regexp.Regexp {
	expr := "(?s)" + likeToRegexp(pattern)
	if insensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil
	}
	return re
}
