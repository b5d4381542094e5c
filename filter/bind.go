package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hatlonely/blockx/record"
)

// BindValue 命名的查询参数
type BindValue struct {
	Name  string
	Type  record.Type
	Value any

	// like 类过滤条件带通配符的实际参数，Value 为去掉首尾通配符后的值
	pattern string
}

// Arg 传给后端的参数值
func (b BindValue) Arg() any {
	if b.pattern != "" {
		return b.pattern
	}
	return b.Value
}

func (b BindValue) String() string {
	return fmt.Sprintf("%s=%v", b.Name, b.Value)
}

// Dialect 决定占位符形式和大小写不敏感匹配的写法
type Dialect interface {
	// Placeholder index 从 1 开始
	Placeholder(name string, index int) string
	ILike(column string, placeholder string) string
}

// NamedDialect :name 形式，sqlite3 与 oracle 风格
type NamedDialect struct{}

func (NamedDialect) Placeholder(name string, index int) string {
	return ":" + name
}

func (NamedDialect) ILike(column string, placeholder string) string {
	return column + " ilike " + placeholder
}

// QuestionDialect ? 形式，mysql 风格
type QuestionDialect struct{}

func (QuestionDialect) Placeholder(name string, index int) string {
	return "?"
}

func (QuestionDialect) ILike(column string, placeholder string) string {
	return "lower(" + column + ") like lower(" + placeholder + ")"
}

// DollarDialect $n 形式，postgres 风格
type DollarDialect struct{}

func (DollarDialect) Placeholder(name string, index int) string {
	return "$" + strconv.Itoa(index)
}

func (DollarDialect) ILike(column string, placeholder string) string {
	return column + " ilike " + placeholder
}

// SQLiteDialect :name 形式，sqlite 没有 ilike
type SQLiteDialect struct{}

func (SQLiteDialect) Placeholder(name string, index int) string {
	return ":" + name
}

func (SQLiteDialect) ILike(column string, placeholder string) string {
	return "lower(" + column + ") like lower(" + placeholder + ")"
}

// DialectByName 未知名称返回 NamedDialect
func DialectByName(name string) Dialect {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return SQLiteDialect{}
	case "question", "mysql":
		return QuestionDialect{}
	case "dollar", "postgres", "pgx":
		return DollarDialect{}
	}
	return NamedDialect{}
}

// Renderer 在一次渲染中分配占位符，并按占位符出现的顺序收集参数
// 同名参数会被重命名为 name_2、name_3 ...
type Renderer struct {
	dialect Dialect
	binds   []BindValue
	used    map[string]int
}

func NewRenderer(dialect Dialect) *Renderer {
	if dialect == nil {
		dialect = NamedDialect{}
	}
	return &Renderer{dialect: dialect, used: map[string]int{}}
}

// Bind 登记一个参数并返回它的占位符
func (r *Renderer) Bind(b BindValue) string {
	r.used[b.Name]++
	if n := r.used[b.Name]; n > 1 {
		b.Name = b.Name + "_" + strconv.Itoa(n)
	}
	r.binds = append(r.binds, b)
	return r.dialect.Placeholder(b.Name, len(r.binds))
}

func (r *Renderer) ILike(column string, placeholder string) string {
	return r.dialect.ILike(column, placeholder)
}

func (r *Renderer) BindValues() []BindValue {
	return r.binds
}

// Args 按占位符顺序返回参数值
func (r *Renderer) Args() []any {
	args := make([]any, len(r.binds))
	for i, b := range r.binds {
		args[i] = b.Arg()
	}
	return args
}
