package cfg

import (
	"encoding"
	"reflect"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

var (
	durationType = reflect.TypeOf(time.Duration(0))
	timeType     = reflect.TypeOf(time.Time{})
	storageType  = reflect.TypeOf(&Storage{})

	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

func convert(src any, object any) error {
	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.Errorf("object must be a non-nil pointer, got %T", object)
	}
	return convertValue(src, rv.Elem())
}

func convertValue(src any, dst reflect.Value) error {
	if src == nil {
		return nil
	}

	if dst.Kind() == reflect.Ptr {
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return convertValue(src, dst.Elem())
	}

	sv := reflect.ValueOf(src)

	if text, ok := src.(string); ok && dst.Type() != timeType && dst.CanAddr() && dst.Addr().Type().Implements(textUnmarshalerType) {
		if err := dst.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(text)); err != nil {
			return errors.Wrapf(err, "cannot unmarshal %q to %v", text, dst.Type())
		}
		return nil
	}

	switch dst.Type() {
	case durationType:
		d, err := cast.ToDurationE(src)
		if err != nil {
			return errors.Wrapf(err, "cannot convert %v to duration", src)
		}
		dst.SetInt(int64(d))
		return nil
	case timeType:
		t, err := cast.ToTimeE(src)
		if err != nil {
			return errors.Wrapf(err, "cannot convert %v to time", src)
		}
		dst.Set(reflect.ValueOf(t))
		return nil
	}

	switch dst.Kind() {
	case reflect.Interface:
		// 未知结构的子树保留为 Storage，交给 ref.New 按构造函数参数类型转换
		if _, ok := src.(map[string]any); ok && storageType.AssignableTo(dst.Type()) {
			dst.Set(reflect.ValueOf(NewStorage(src)))
			return nil
		}
		if sv.Type().AssignableTo(dst.Type()) {
			dst.Set(sv)
			return nil
		}
		return errors.Errorf("cannot assign %T to %v", src, dst.Type())
	case reflect.Struct:
		m, ok := src.(map[string]any)
		if !ok {
			return errors.Errorf("cannot convert %T to struct %v", src, dst.Type())
		}
		return convertStruct(m, dst)
	case reflect.Map:
		return convertMap(sv, dst)
	case reflect.Slice:
		return convertSlice(sv, dst)
	case reflect.String:
		s, err := cast.ToStringE(src)
		if err != nil {
			return errors.Wrapf(err, "cannot convert %v to string", src)
		}
		dst.SetString(s)
		return nil
	case reflect.Bool:
		b, err := cast.ToBoolE(src)
		if err != nil {
			return errors.Wrapf(err, "cannot convert %v to bool", src)
		}
		dst.SetBool(b)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := cast.ToInt64E(src)
		if err != nil {
			return errors.Wrapf(err, "cannot convert %v to int", src)
		}
		dst.SetInt(i)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := cast.ToUint64E(src)
		if err != nil {
			return errors.Wrapf(err, "cannot convert %v to uint", src)
		}
		dst.SetUint(u)
		return nil
	case reflect.Float32, reflect.Float64:
		f, err := cast.ToFloat64E(src)
		if err != nil {
			return errors.Wrapf(err, "cannot convert %v to float", src)
		}
		dst.SetFloat(f)
		return nil
	}

	if sv.Type().ConvertibleTo(dst.Type()) {
		dst.Set(sv.Convert(dst.Type()))
		return nil
	}
	return errors.Errorf("cannot convert %T to %v", src, dst.Type())
}

func convertStruct(src map[string]any, dst reflect.Value) error {
	dt := dst.Type()
	for i := 0; i < dt.NumField(); i++ {
		field := dt.Field(i)
		if !field.IsExported() {
			continue
		}

		name := field.Name
		if tag := field.Tag.Get("cfg"); tag != "" {
			tag = strings.Split(tag, ",")[0]
			if tag == "-" {
				continue
			}
			if tag != "" {
				name = tag
			}
		}

		value := lookup(src, name)
		if value == nil {
			continue
		}
		if err := convertValue(value, dst.Field(i)); err != nil {
			return errors.WithMessagef(err, "field %s", name)
		}
	}
	return nil
}

func convertMap(src reflect.Value, dst reflect.Value) error {
	if src.Kind() != reflect.Map {
		return errors.Errorf("cannot convert %v to map", src.Type())
	}
	if dst.IsNil() {
		dst.Set(reflect.MakeMap(dst.Type()))
	}

	iter := src.MapRange()
	for iter.Next() {
		key := reflect.New(dst.Type().Key()).Elem()
		if err := convertValue(iter.Key().Interface(), key); err != nil {
			return err
		}
		val := reflect.New(dst.Type().Elem()).Elem()
		if err := convertValue(iter.Value().Interface(), val); err != nil {
			return errors.WithMessagef(err, "key %v", iter.Key().Interface())
		}
		dst.SetMapIndex(key, val)
	}
	return nil
}

func convertSlice(src reflect.Value, dst reflect.Value) error {
	if src.Kind() == reflect.String {
		// ini 等格式只能表达字符串，按逗号切分
		parts := strings.Split(src.String(), ",")
		items := make([]any, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				items = append(items, p)
			}
		}
		src = reflect.ValueOf(items)
	}
	if src.Kind() != reflect.Slice && src.Kind() != reflect.Array {
		return errors.Errorf("cannot convert %v to slice", src.Type())
	}

	out := reflect.MakeSlice(dst.Type(), src.Len(), src.Len())
	for i := 0; i < src.Len(); i++ {
		if err := convertValue(src.Index(i).Interface(), out.Index(i)); err != nil {
			return errors.WithMessagef(err, "index %d", i)
		}
	}
	dst.Set(out)
	return nil
}
