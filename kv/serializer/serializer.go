package serializer

import (
	"encoding/json"
	"reflect"

	"github.com/hatlonely/blockx/ref"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
	"go.mongodb.org/mongo-driver/bson"
)

const Namespace = "github.com/hatlonely/blockx/kv/serializer"

// Serializer 在 T 和字节之间转换
type Serializer[T any] interface {
	Serialize(from T) ([]byte, error)
	Deserialize(data []byte) (T, error)
}

type JSONSerializer[T any] struct{}

func NewJSONSerializer[T any]() *JSONSerializer[T] {
	return &JSONSerializer[T]{}
}

func (s *JSONSerializer[T]) Serialize(from T) ([]byte, error) {
	return json.Marshal(from)
}

func (s *JSONSerializer[T]) Deserialize(data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}

type MsgPackSerializer[T any] struct{}

func NewMsgPackSerializer[T any]() *MsgPackSerializer[T] {
	return &MsgPackSerializer[T]{}
}

func (s *MsgPackSerializer[T]) Serialize(from T) ([]byte, error) {
	return msgpack.Marshal(from)
}

func (s *MsgPackSerializer[T]) Deserialize(data []byte) (T, error) {
	var v T
	err := msgpack.Unmarshal(data, &v)
	return v, err
}

// BSONSerializer 只能序列化文档类型（结构体、map），标量会被包在 {"v": ...} 中
type BSONSerializer[T any] struct{}

func NewBSONSerializer[T any]() *BSONSerializer[T] {
	return &BSONSerializer[T]{}
}

type bsonEnvelope[T any] struct {
	V T `bson:"v"`
}

func (s *BSONSerializer[T]) Serialize(from T) ([]byte, error) {
	return bson.Marshal(bsonEnvelope[T]{V: from})
}

func (s *BSONSerializer[T]) Deserialize(data []byte) (T, error) {
	var envelope bsonEnvelope[T]
	err := bson.Unmarshal(data, &envelope)
	return envelope.V, err
}

func typeName[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}

// NewSerializerWithOptions 通过 ref 创建序列化器，options 为 nil 时使用 msgpack
// 类型名形如 "JSONSerializer"，泛型参数由调用方的 T 决定
func NewSerializerWithOptions[T any](options *ref.TypeOptions) (Serializer[T], error) {
	name := typeName[T]()
	_ = ref.Register(Namespace, "JSONSerializer["+name+"]", NewJSONSerializer[T])
	_ = ref.Register(Namespace, "MsgPackSerializer["+name+"]", NewMsgPackSerializer[T])
	_ = ref.Register(Namespace, "BSONSerializer["+name+"]", NewBSONSerializer[T])

	kind := "MsgPackSerializer"
	if options != nil && options.Type != "" {
		kind = options.Type
	}

	obj, err := ref.New(Namespace, kind+"["+name+"]", nil)
	if err != nil {
		return nil, errors.WithMessage(err, "ref.New failed")
	}
	s, ok := obj.(Serializer[T])
	if !ok {
		return nil, errors.Errorf("%T is not a Serializer", obj)
	}
	return s, nil
}
