package record

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// Type 列的声明类型
type Type int

const (
	TypeUnknown Type = iota
	TypeString
	TypeInt
	TypeDecimal
	TypeDate
	TypeDateTime
	TypeBool
)

var typeNames = map[Type]string{
	TypeUnknown:  "unknown",
	TypeString:   "string",
	TypeInt:      "int",
	TypeDecimal:  "decimal",
	TypeDate:     "date",
	TypeDateTime: "datetime",
	TypeBool:     "bool",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "unknown"
}

// ParseType 解析配置中的类型名，无法识别时返回 TypeUnknown
func ParseType(s string) Type {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "text", "varchar", "char":
		return TypeString
	case "int", "integer", "bigint", "smallint", "long":
		return TypeInt
	case "decimal", "numeric", "float", "double", "real", "number":
		return TypeDecimal
	case "date":
		return TypeDate
	case "datetime", "timestamp", "time":
		return TypeDateTime
	case "bool", "boolean":
		return TypeBool
	}
	return TypeUnknown
}

// UnmarshalText 使 Type 可以直接出现在配置结构体中
func (t *Type) UnmarshalText(text []byte) error {
	*t = ParseType(string(text))
	return nil
}

// InferType 根据值推断类型
func InferType(v any) Type {
	switch v.(type) {
	case string, []byte:
		return TypeString
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TypeInt
	case float32, float64:
		return TypeDecimal
	case time.Time, *time.Time:
		return TypeDateTime
	case bool:
		return TypeBool
	}
	return TypeUnknown
}

// Coerce 将 v 转换为类型 t 的值，nil 保持为 nil
func (t Type) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	var (
		out any
		err error
	)
	switch t {
	case TypeString:
		out, err = cast.ToStringE(v)
	case TypeInt:
		out, err = cast.ToInt64E(v)
	case TypeDecimal:
		out, err = cast.ToFloat64E(v)
	case TypeDate:
		var tm time.Time
		tm, err = cast.ToTimeE(v)
		if err == nil {
			out = StartOfDay(tm)
		}
	case TypeDateTime:
		out, err = cast.ToTimeE(v)
	case TypeBool:
		out, err = cast.ToBoolE(v)
	default:
		return v, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "cannot convert %v to %s", v, t)
	}
	return out, nil
}

func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay 当天最后一个纳秒
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// Column 列定义
type Column struct {
	Name string `cfg:"name" validate:"required"`
	Type Type   `cfg:"type"`
}

// Columns 按名称生成类型未知的列
func Columns(names ...string) []Column {
	columns := make([]Column, len(names))
	for i, name := range names {
		columns[i] = Column{Name: name}
	}
	return columns
}
