package store

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/hatlonely/blockx/kv/serializer"
	"github.com/hatlonely/blockx/ref"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

type BoltDBStoreOptions struct {
	// DBPath 数据库文件路径，不存在时自动创建
	DBPath string `cfg:"dbPath" validate:"required"`

	// 默认桶名称
	BucketName string `cfg:"bucketName" def:"default"`

	// Timeout 获取文件锁的等待时间，0 表示无限等待
	Timeout time.Duration `cfg:"timeout" def:"1s"`

	NoSync bool `cfg:"noSync"`

	KeySerializer *ref.TypeOptions `cfg:"keySerializer"`
	ValSerializer *ref.TypeOptions `cfg:"valSerializer"`
}

// BoltDBStore 持久化存储，不支持过期时间
type BoltDBStore[K, V any] struct {
	db            *bolt.DB
	keySerializer serializer.Serializer[K]
	valSerializer serializer.Serializer[V]
	bucketName    []byte
}

func NewBoltDBStoreWithOptions[K, V any](options *BoltDBStoreOptions) (*BoltDBStore[K, V], error) {
	if options == nil || options.DBPath == "" {
		return nil, errors.New("dbPath is required")
	}

	keySerializer, err := serializer.NewSerializerWithOptions[K](options.KeySerializer)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create key serializer")
	}
	valSerializer, err := serializer.NewSerializerWithOptions[V](options.ValSerializer)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create value serializer")
	}

	directory := filepath.Dir(options.DBPath)
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, errors.Wrapf(err, "os.MkdirAll failed. directory: %s", directory)
	}

	db, err := bolt.Open(options.DBPath, 0600, &bolt.Options{
		Timeout: options.Timeout,
		NoSync:  options.NoSync,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "bolt.Open failed. dbPath: %s", options.DBPath)
	}

	bucketName := options.BucketName
	if bucketName == "" {
		bucketName = "default"
	}

	s := &BoltDBStore[K, V]{
		db:            db,
		keySerializer: keySerializer,
		valSerializer: valSerializer,
		bucketName:    []byte(bucketName),
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create bucket failed")
	}

	return s, nil
}

func (s *BoltDBStore[K, V]) Set(ctx context.Context, key K, value V, opts ...SetOption) error {
	options := applySetOptions(opts)

	keyBytes, err := s.keySerializer.Serialize(key)
	if err != nil {
		return errors.Wrap(err, "marshal key failed")
	}
	valueBytes, err := s.valSerializer.Serialize(value)
	if err != nil {
		return errors.Wrap(err, "marshal value failed")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(s.bucketName)
		if bucket == nil {
			return errors.New("bucket not found")
		}
		if options.IfNotExist && bucket.Get(keyBytes) != nil {
			return ErrConditionFailed
		}
		return bucket.Put(keyBytes, valueBytes)
	})
}

func (s *BoltDBStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V

	keyBytes, err := s.keySerializer.Serialize(key)
	if err != nil {
		return zero, errors.Wrap(err, "marshal key failed")
	}

	var valueBytes []byte
	err = s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(s.bucketName)
		if bucket == nil {
			return errors.New("bucket not found")
		}
		data := bucket.Get(keyBytes)
		if data == nil {
			return ErrKeyNotFound
		}
		// bolt 的内存只在事务内有效
		valueBytes = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return zero, err
	}

	value, err := s.valSerializer.Deserialize(valueBytes)
	if err != nil {
		return zero, errors.Wrap(err, "unmarshal value failed")
	}
	return value, nil
}

func (s *BoltDBStore[K, V]) Del(ctx context.Context, key K) error {
	keyBytes, err := s.keySerializer.Serialize(key)
	if err != nil {
		return errors.Wrap(err, "marshal key failed")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(s.bucketName)
		if bucket == nil {
			return errors.New("bucket not found")
		}
		return bucket.Delete(keyBytes)
	})
}

func (s *BoltDBStore[K, V]) Close() error {
	return s.db.Close()
}
