package store

import (
	"context"
	"time"

	"github.com/hatlonely/blockx/ref"
	"github.com/pkg/errors"
)

const Namespace = "github.com/hatlonely/blockx/kv/store"

var (
	ErrKeyNotFound     = errors.New("key not found")
	ErrConditionFailed = errors.New("condition failed")
)

type setOptions struct {
	Expiration time.Duration
	IfNotExist bool
}

type SetOption func(*setOptions)

// WithExpiration 设置过期时间，0 表示使用存储的默认值
func WithExpiration(expiration time.Duration) SetOption {
	return func(options *setOptions) {
		options.Expiration = expiration
	}
}

// WithIfNotExist 键已存在时 Set 返回 ErrConditionFailed
func WithIfNotExist() SetOption {
	return func(options *setOptions) {
		options.IfNotExist = true
	}
}

func applySetOptions(opts []SetOption) *setOptions {
	options := &setOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

type Store[K, V any] interface {
	// Set 设置键值对，WithIfNotExist 时键存在则返回 ErrConditionFailed
	Set(ctx context.Context, key K, value V, opts ...SetOption) error
	// Get 获取键对应的值，键不存在时返回 ErrKeyNotFound
	Get(ctx context.Context, key K) (V, error)
	// Del 删除键，键不存在时也返回成功
	Del(ctx context.Context, key K) error
	Close() error
}

// NewStoreWithOptions 通过 ref 创建存储，options 为 nil 时返回 MapStore
// Type 取值：MapStore, FreeCacheStore, BoltDBStore, RedisStore
func NewStoreWithOptions[K comparable, V any](options *ref.TypeOptions) (Store[K, V], error) {
	if options == nil || options.Type == "" {
		return NewMapStore[K, V](), nil
	}

	var (
		s   Store[K, V]
		err error
	)
	switch options.Type {
	case "MapStore":
		s = NewMapStore[K, V]()
	case "FreeCacheStore":
		var o FreeCacheStoreOptions
		if err = convertOptions(options.Options, &o); err == nil {
			s, err = NewFreeCacheStoreWithOptions[K, V](&o)
		}
	case "BoltDBStore":
		var o BoltDBStoreOptions
		if err = convertOptions(options.Options, &o); err == nil {
			s, err = NewBoltDBStoreWithOptions[K, V](&o)
		}
	case "RedisStore":
		var o RedisStoreOptions
		if err = convertOptions(options.Options, &o); err == nil {
			s, err = NewRedisStoreWithOptions[K, V](&o)
		}
	default:
		return nil, errors.Errorf("unsupported store type: %s", options.Type)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create %s", options.Type)
	}
	return s, nil
}

// convertOptions 接受具体的 options 指针或 ref.Convertable
func convertOptions[T any](src any, dst *T) error {
	switch v := src.(type) {
	case nil:
		return nil
	case *T:
		*dst = *v
		return nil
	case T:
		*dst = v
		return nil
	case ref.Convertable:
		return v.ConvertTo(dst)
	}
	return errors.Errorf("unexpected options type %T", src)
}
