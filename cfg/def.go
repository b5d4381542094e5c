package cfg

import (
	"reflect"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// SetDefaults 为结构体零值字段设置 def tag 指定的默认值，嵌套结构体递归处理
func SetDefaults(object any) error {
	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.Errorf("object must be a non-nil pointer, got %T", object)
	}
	return setDefaults(rv.Elem())
}

func setDefaults(rv reflect.Value) error {
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		fv := rv.Field(i)
		if !fv.CanSet() {
			continue
		}

		switch {
		case fv.Kind() == reflect.Struct && fv.Type() != timeType:
			if err := setDefaults(fv); err != nil {
				return errors.WithMessagef(err, "field %s", field.Name)
			}
		case fv.Kind() == reflect.Ptr && !fv.IsNil():
			if err := setDefaults(fv); err != nil {
				return errors.WithMessagef(err, "field %s", field.Name)
			}
		case fv.Kind() == reflect.Slice && fv.Type().Elem().Kind() == reflect.Struct:
			for j := 0; j < fv.Len(); j++ {
				if err := setDefaults(fv.Index(j)); err != nil {
					return errors.WithMessagef(err, "field %s[%d]", field.Name, j)
				}
			}
		}

		def, ok := field.Tag.Lookup("def")
		if !ok || !fv.IsZero() {
			continue
		}
		if err := setDefaultValue(fv, def); err != nil {
			return errors.WithMessagef(err, "failed to set default value for field %s", field.Name)
		}
	}
	return nil
}

func setDefaultValue(fv reflect.Value, def string) error {
	if fv.Kind() == reflect.Slice {
		parts := strings.Split(def, ",")
		items := make([]any, len(parts))
		for i, p := range parts {
			items[i] = strings.TrimSpace(p)
		}
		return convertValue(items, fv)
	}
	if fv.Kind() == reflect.Map {
		return errors.New("map default values are not supported")
	}
	if fv.Kind() == reflect.Bool {
		b, err := cast.ToBoolE(def)
		if err != nil {
			return err
		}
		fv.SetBool(b)
		return nil
	}
	return convertValue(def, fv)
}
