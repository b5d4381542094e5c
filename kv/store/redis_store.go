package store

import (
	"context"
	"time"

	"github.com/hatlonely/blockx/kv/serializer"
	"github.com/hatlonely/blockx/ref"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type RedisStoreOptions struct {
	// host:port 地址
	Endpoint string `cfg:"endpoint" validate:"required"`

	Username string `cfg:"username"`
	Password string `cfg:"password"`
	DB       int    `cfg:"db"`

	// 键前缀，多个表单共用一个 redis 时用于隔离
	Prefix string `cfg:"prefix"`

	// 默认过期时间，0 表示不过期
	DefaultTTL time.Duration `cfg:"defaultTTL"`

	DialTimeout  time.Duration `cfg:"dialTimeout" def:"5s"`
	ReadTimeout  time.Duration `cfg:"readTimeout" def:"3s"`
	WriteTimeout time.Duration `cfg:"writeTimeout" def:"3s"`

	KeySerializer *ref.TypeOptions `cfg:"keySerializer"`
	ValSerializer *ref.TypeOptions `cfg:"valSerializer"`
}

type RedisStore[K, V any] struct {
	client        *redis.Client
	prefix        string
	defaultTTL    time.Duration
	keySerializer serializer.Serializer[K]
	valSerializer serializer.Serializer[V]
}

func NewRedisStoreWithOptions[K, V any](options *RedisStoreOptions) (*RedisStore[K, V], error) {
	if options == nil || options.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}

	keySerializer, err := serializer.NewSerializerWithOptions[K](options.KeySerializer)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create key serializer")
	}
	valSerializer, err := serializer.NewSerializerWithOptions[V](options.ValSerializer)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create value serializer")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         options.Endpoint,
		Username:     options.Username,
		Password:     options.Password,
		DB:           options.DB,
		DialTimeout:  options.DialTimeout,
		ReadTimeout:  options.ReadTimeout,
		WriteTimeout: options.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "redis ping failed. endpoint: %s", options.Endpoint)
	}

	return &RedisStore[K, V]{
		client:        client,
		prefix:        options.Prefix,
		defaultTTL:    options.DefaultTTL,
		keySerializer: keySerializer,
		valSerializer: valSerializer,
	}, nil
}

func (s *RedisStore[K, V]) key(key K) (string, error) {
	kb, err := s.keySerializer.Serialize(key)
	if err != nil {
		return "", errors.Wrap(err, "marshal key failed")
	}
	return s.prefix + string(kb), nil
}

func (s *RedisStore[K, V]) Set(ctx context.Context, key K, value V, opts ...SetOption) error {
	options := applySetOptions(opts)

	k, err := s.key(key)
	if err != nil {
		return err
	}
	vb, err := s.valSerializer.Serialize(value)
	if err != nil {
		return errors.Wrap(err, "marshal value failed")
	}

	expiration := options.Expiration
	if expiration == 0 {
		expiration = s.defaultTTL
	}

	if options.IfNotExist {
		ok, err := s.client.SetNX(ctx, k, vb, expiration).Result()
		if err != nil {
			return errors.Wrap(err, "redis setnx failed")
		}
		if !ok {
			return ErrConditionFailed
		}
		return nil
	}

	if err := s.client.Set(ctx, k, vb, expiration).Err(); err != nil {
		return errors.Wrap(err, "redis set failed")
	}
	return nil
}

func (s *RedisStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V

	k, err := s.key(key)
	if err != nil {
		return zero, err
	}
	vb, err := s.client.Get(ctx, k).Bytes()
	if err == redis.Nil {
		return zero, ErrKeyNotFound
	}
	if err != nil {
		return zero, errors.Wrap(err, "redis get failed")
	}

	value, err := s.valSerializer.Deserialize(vb)
	if err != nil {
		return zero, errors.Wrap(err, "unmarshal value failed")
	}
	return value, nil
}

func (s *RedisStore[K, V]) Del(ctx context.Context, key K) error {
	k, err := s.key(key)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, k).Err(); err != nil {
		return errors.Wrap(err, "redis del failed")
	}
	return nil
}

func (s *RedisStore[K, V]) Close() error {
	return s.client.Close()
}
