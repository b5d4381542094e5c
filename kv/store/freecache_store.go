package store

import (
	"context"
	"sync"
	"time"

	"github.com/coocood/freecache"
	"github.com/hatlonely/blockx/kv/serializer"
	"github.com/hatlonely/blockx/ref"
	"github.com/pkg/errors"
)

type FreeCacheStoreOptions struct {
	// 缓存大小（字节），freecache 最小 512KB
	Size          int              `cfg:"size" def:"1048576"`
	DefaultTTL    time.Duration    `cfg:"defaultTTL"`
	KeySerializer *ref.TypeOptions `cfg:"keySerializer"`
	ValSerializer *ref.TypeOptions `cfg:"valSerializer"`
}

type FreeCacheStore[K, V any] struct {
	cache         *freecache.Cache
	defaultTTL    time.Duration
	keySerializer serializer.Serializer[K]
	valSerializer serializer.Serializer[V]
	// freecache 没有原子的 set-if-not-exist
	mu sync.Mutex
}

func NewFreeCacheStoreWithOptions[K, V any](options *FreeCacheStoreOptions) (*FreeCacheStore[K, V], error) {
	if options == nil {
		options = &FreeCacheStoreOptions{}
	}
	size := options.Size
	if size <= 0 {
		size = 1024 * 1024
	}

	keySerializer, err := serializer.NewSerializerWithOptions[K](options.KeySerializer)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create key serializer")
	}
	valSerializer, err := serializer.NewSerializerWithOptions[V](options.ValSerializer)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create value serializer")
	}

	return &FreeCacheStore[K, V]{
		cache:         freecache.NewCache(size),
		defaultTTL:    options.DefaultTTL,
		keySerializer: keySerializer,
		valSerializer: valSerializer,
	}, nil
}

func (s *FreeCacheStore[K, V]) Set(ctx context.Context, key K, value V, opts ...SetOption) error {
	options := applySetOptions(opts)

	kb, err := s.keySerializer.Serialize(key)
	if err != nil {
		return errors.Wrap(err, "failed to serialize key")
	}
	vb, err := s.valSerializer.Serialize(value)
	if err != nil {
		return errors.Wrap(err, "failed to serialize value")
	}

	expiration := options.Expiration
	if expiration == 0 {
		expiration = s.defaultTTL
	}
	seconds := 0
	if expiration > 0 {
		seconds = int((expiration + time.Second - 1) / time.Second)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if options.IfNotExist {
		if _, err := s.cache.Get(kb); err == nil {
			return ErrConditionFailed
		}
	}
	return s.cache.Set(kb, vb, seconds)
}

func (s *FreeCacheStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V
	kb, err := s.keySerializer.Serialize(key)
	if err != nil {
		return zero, errors.Wrap(err, "failed to serialize key")
	}
	vb, err := s.cache.Get(kb)
	if err != nil {
		return zero, ErrKeyNotFound
	}
	return s.valSerializer.Deserialize(vb)
}

func (s *FreeCacheStore[K, V]) Del(ctx context.Context, key K) error {
	kb, err := s.keySerializer.Serialize(key)
	if err != nil {
		return errors.Wrap(err, "failed to serialize key")
	}
	s.cache.Del(kb)
	return nil
}

func (s *FreeCacheStore[K, V]) Close() error {
	s.cache.Clear()
	return nil
}
