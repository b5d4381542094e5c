package record

import (
	"reflect"
	"time"

	"github.com/spf13/cast"
)

// Equal 判断两个列值是否相等
// 时间按时刻比较，数值忽略具体的整数/浮点类型
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return isNil(a) && isNil(b)
	}

	ta, aok := asTime(a)
	tb, bok := asTime(b)
	if aok || bok {
		return aok && bok && ta.Equal(tb)
	}

	if isNumber(a) && isNumber(b) {
		fa, errA := cast.ToFloat64E(a)
		fb, errB := cast.ToFloat64E(b)
		if errA == nil && errB == nil {
			return fa == fb
		}
	}

	if ba, ok := a.([]byte); ok {
		if bb, ok := b.([]byte); ok {
			return string(ba) == string(bb)
		}
	}

	return reflect.DeepEqual(a, b)
}

// Compare 比较两个列值，返回 -1、0、1，不可比较时 ok 为 false
func Compare(a, b any) (int, bool) {
	if isNil(a) || isNil(b) {
		return 0, false
	}

	ta, aok := asTime(a)
	tb, bok := asTime(b)
	if aok && bok {
		switch {
		case ta.Before(tb):
			return -1, true
		case ta.After(tb):
			return 1, true
		}
		return 0, true
	}
	if aok || bok {
		return 0, false
	}

	if isNumber(a) && isNumber(b) {
		fa, errA := cast.ToFloat64E(a)
		fb, errB := cast.ToFloat64E(b)
		if errA != nil || errB != nil {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}

	sa, errA := cast.ToStringE(a)
	sb, errB := cast.ToStringE(b)
	if errA != nil || errB != nil {
		return 0, false
	}
	switch {
	case sa < sb:
		return -1, true
	case sa > sb:
		return 1, true
	}
	return 0, true
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	}
	return time.Time{}, false
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}
