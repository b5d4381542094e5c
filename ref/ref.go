package ref

import (
	"fmt"
	"reflect"
	"sync"
)

// TypeOptions 通过命名空间和类型名描述一个待构造的对象
// 配置文件中的数据源、存储、日志输出等均以此形式声明
type TypeOptions struct {
	Namespace string `cfg:"namespace"`
	Type      string `cfg:"type"`
	Options   any    `cfg:"options"`
}

// Convertable 可转换为构造函数参数类型的配置数据
// cfg.Storage 实现了此接口，配置文件中的 options 字段因此可以直接交给 New
type Convertable interface {
	ConvertTo(object any) error
}

type constructor struct {
	fn           reflect.Value
	hasOptions   bool
	returnsError bool
}

var constructors sync.Map

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func newConstructor(fn any) (*constructor, error) {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		return nil, fmt.Errorf("constructor must be a function, got %T", fn)
	}

	ft := fv.Type()
	if ft.NumIn() > 1 {
		return nil, fmt.Errorf("constructor must have 0 or 1 input parameters, got %d", ft.NumIn())
	}
	if ft.NumOut() != 1 && ft.NumOut() != 2 {
		return nil, fmt.Errorf("constructor must have 1 or 2 return values, got %d", ft.NumOut())
	}
	if ft.NumOut() == 2 && !ft.Out(1).Implements(errorType) {
		return nil, fmt.Errorf("second return value must be error type")
	}

	return &constructor{
		fn:           fv,
		hasOptions:   ft.NumIn() == 1,
		returnsError: ft.NumOut() == 2,
	}, nil
}

func (c *constructor) call(options any) (any, error) {
	var args []reflect.Value
	if c.hasOptions {
		arg, err := c.argument(options)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}

	results := c.fn.Call(args)
	if c.returnsError && !results[1].IsNil() {
		return nil, results[1].Interface().(error)
	}
	return results[0].Interface(), nil
}

// argument 将 options 转换为构造函数的入参
func (c *constructor) argument(options any) (reflect.Value, error) {
	paramType := c.fn.Type().In(0)

	if options == nil {
		// 指针参数允许 nil，由构造函数自行处理默认值
		if paramType.Kind() == reflect.Ptr || paramType.Kind() == reflect.Interface {
			return reflect.Zero(paramType), nil
		}
		return reflect.Value{}, fmt.Errorf("constructor requires options but got nil")
	}

	if convertable, ok := options.(Convertable); ok {
		if paramType.Kind() == reflect.Ptr {
			target := reflect.New(paramType.Elem())
			if err := convertable.ConvertTo(target.Interface()); err != nil {
				return reflect.Value{}, fmt.Errorf("failed to convert options to %v: %w", paramType, err)
			}
			return target, nil
		}
		target := reflect.New(paramType)
		if err := convertable.ConvertTo(target.Interface()); err != nil {
			return reflect.Value{}, fmt.Errorf("failed to convert options to %v: %w", paramType, err)
		}
		return target.Elem(), nil
	}

	value := reflect.ValueOf(options)
	if !value.Type().AssignableTo(paramType) {
		return reflect.Value{}, fmt.Errorf("options type %T is not assignable to %v", options, paramType)
	}
	return value, nil
}

func typeKey[T any]() (string, string, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.PkgPath() == "" || t.Name() == "" {
		return "", "", fmt.Errorf("cannot determine package path or type name for type %v", t)
	}
	return t.PkgPath(), t.Name(), nil
}

// Register 注册构造函数，同一个 key 重复注册相同函数会被忽略
func Register(namespace string, typeName string, fn any) error {
	key := namespace + ":" + typeName

	if existing, ok := constructors.Load(key); ok {
		if existing.(*constructor).fn.Pointer() == reflect.ValueOf(fn).Pointer() {
			return nil
		}
		return fmt.Errorf("constructor for %s already registered with different function", key)
	}

	c, err := newConstructor(fn)
	if err != nil {
		return fmt.Errorf("failed to create constructor: %w", err)
	}
	constructors.Store(key, c)
	return nil
}

// RegisterT 以类型 T 的包路径和类型名作为 namespace 和 type 注册
func RegisterT[T any](fn any) error {
	namespace, typeName, err := typeKey[T]()
	if err != nil {
		return err
	}
	return Register(namespace, typeName, fn)
}

func MustRegister(namespace string, typeName string, fn any) {
	if err := Register(namespace, typeName, fn); err != nil {
		panic(err)
	}
}

func MustRegisterT[T any](fn any) {
	if err := RegisterT[T](fn); err != nil {
		panic(err)
	}
}

// New 根据 namespace 和 type 查找构造函数并创建对象
func New(namespace string, typeName string, options any) (any, error) {
	key := namespace + ":" + typeName
	value, ok := constructors.Load(key)
	if !ok {
		return nil, fmt.Errorf("constructor not found for %s", key)
	}
	return value.(*constructor).call(options)
}

// NewT 创建类型 T 的对象，namespace 和 type 由 T 推导
func NewT[T any](options any) (T, error) {
	var zero T
	namespace, typeName, err := typeKey[T]()
	if err != nil {
		return zero, err
	}

	obj, err := New(namespace, typeName, options)
	if err != nil {
		return zero, err
	}
	result, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("created object %T is not of type %T", obj, zero)
	}
	return result, nil
}

// NewWithTypeOptions 是 New 的便捷形式
func NewWithTypeOptions(options *TypeOptions) (any, error) {
	if options == nil {
		return nil, fmt.Errorf("type options cannot be nil")
	}
	return New(options.Namespace, options.Type, options.Options)
}
