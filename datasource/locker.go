package datasource

import (
	"context"
	"time"

	"github.com/hatlonely/blockx/kv/store"
	"github.com/hatlonely/blockx/ref"
	"github.com/hatlonely/blockx/uid"
	"github.com/pkg/errors"
)

type LockerOptions struct {
	// Store 为空时使用进程内的 MapStore
	Store *ref.TypeOptions `cfg:"store"`
	// Owner 为空时生成 uuid
	Owner string `cfg:"owner"`
	// Generator 生成持有者标识
	Generator  *ref.TypeOptions `cfg:"generator"`
	Expiration time.Duration    `cfg:"expiration" def:"5m"`
}

// Locker 行锁，键为数据源名与主键，值为持有者
// 多个进程共用 RedisStore 时锁在进程之间生效
type Locker struct {
	store      store.Store[string, string]
	owner      string
	expiration time.Duration
}

func NewLockerWithOptions(options *LockerOptions) (*Locker, error) {
	if options == nil {
		options = &LockerOptions{}
	}
	s, err := store.NewStoreWithOptions[string, string](options.Store)
	if err != nil {
		return nil, errors.WithMessage(err, "store.NewStoreWithOptions failed")
	}

	owner := options.Owner
	if owner == "" {
		gen, err := uid.NewGeneratorWithOptions(options.Generator)
		if err != nil {
			return nil, errors.WithMessage(err, "uid.NewGeneratorWithOptions failed")
		}
		owner = gen.Generate()
	}

	expiration := options.Expiration
	if expiration <= 0 {
		expiration = 5 * time.Minute
	}
	return &Locker{store: s, owner: owner, expiration: expiration}, nil
}

func (l *Locker) Owner() string {
	return l.owner
}

// acquireAttempts 持有者在两次读写之间反复释放时的重试次数
const acquireAttempts = 3

// Acquire 已被自己持有时续期，被他人持有时返回 ErrLocked
func (l *Locker) Acquire(ctx context.Context, key string) error {
	for i := 0; i < acquireAttempts; i++ {
		err := l.store.Set(ctx, key, l.owner, store.WithIfNotExist(), store.WithExpiration(l.expiration))
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrConditionFailed) {
			return errors.WithMessage(err, "store.Set failed")
		}

		holder, err := l.store.Get(ctx, key)
		if errors.Is(err, store.ErrKeyNotFound) {
			// 持有者刚好释放
			continue
		}
		if err != nil {
			return errors.WithMessage(err, "store.Get failed")
		}
		if holder != l.owner {
			return errors.Wrapf(ErrLocked, "%s held by %s", key, holder)
		}
		if err := l.store.Set(ctx, key, l.owner, store.WithExpiration(l.expiration)); err != nil {
			return errors.WithMessage(err, "store.Set failed")
		}
		return nil
	}
	return errors.Wrapf(ErrLocked, "%s contended after %d attempts", key, acquireAttempts)
}

// Release 只释放自己持有的锁
func (l *Locker) Release(ctx context.Context, key string) error {
	holder, err := l.store.Get(ctx, key)
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return errors.WithMessage(err, "store.Get failed")
	}
	if holder != l.owner {
		return nil
	}
	if err := l.store.Del(ctx, key); err != nil {
		return errors.WithMessage(err, "store.Del failed")
	}
	return nil
}

// Holder 当前持有者，未加锁时为空
func (l *Locker) Holder(ctx context.Context, key string) (string, error) {
	holder, err := l.store.Get(ctx, key)
	if errors.Is(err, store.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", errors.WithMessage(err, "store.Get failed")
	}
	return holder, nil
}

// Share 使用同一个存储但不同持有者的 Locker，用于模拟另一个会话
func (l *Locker) Share(owner string) *Locker {
	return &Locker{store: l.store, owner: owner, expiration: l.expiration}
}

func (l *Locker) Close() error {
	return l.store.Close()
}
