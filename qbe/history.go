package qbe

import (
	"context"
	"time"

	"github.com/hatlonely/blockx/kv/store"
	"github.com/hatlonely/blockx/ref"
	"github.com/pkg/errors"
)

type HistoryOptions struct {
	// Store 为空时使用 MapStore，使用 BoltDBStore 时历史在重启后仍然存在
	Store      *ref.TypeOptions `cfg:"store"`
	Prefix     string           `cfg:"prefix" def:"qbe:"`
	Expiration time.Duration    `cfg:"expiration"`
}

// Entry 一次查询的示例值
type Entry struct {
	Values  map[string]any `json:"values" msgpack:"values" bson:"values"`
	SavedAt time.Time      `json:"savedAt" msgpack:"savedAt" bson:"savedAt"`
}

// History 按块保存上一次的按例查询
type History struct {
	store      store.Store[string, *Entry]
	prefix     string
	expiration time.Duration
	now        func() time.Time
}

func NewHistoryWithOptions(options *HistoryOptions) (*History, error) {
	if options == nil {
		options = &HistoryOptions{Prefix: "qbe:"}
	}
	s, err := store.NewStoreWithOptions[string, *Entry](options.Store)
	if err != nil {
		return nil, errors.WithMessage(err, "store.NewStoreWithOptions failed")
	}
	return &History{
		store:      s,
		prefix:     options.Prefix,
		expiration: options.Expiration,
		now:        time.Now,
	}, nil
}

func (h *History) Save(ctx context.Context, block string, values map[string]any) error {
	entry := &Entry{Values: values, SavedAt: h.now()}
	var opts []store.SetOption
	if h.expiration > 0 {
		opts = append(opts, store.WithExpiration(h.expiration))
	}
	return h.store.Set(ctx, h.prefix+block, entry, opts...)
}

// Load 没有历史时返回 nil
func (h *History) Load(ctx context.Context, block string) (map[string]any, error) {
	entry, err := h.store.Get(ctx, h.prefix+block)
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}
	return entry.Values, nil
}

// SavedAt 没有历史时返回零值
func (h *History) SavedAt(ctx context.Context, block string) (time.Time, error) {
	entry, err := h.store.Get(ctx, h.prefix+block)
	if errors.Is(err, store.ErrKeyNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	if entry == nil {
		return time.Time{}, nil
	}
	return entry.SavedAt, nil
}

func (h *History) Clear(ctx context.Context, block string) error {
	return h.store.Del(ctx, h.prefix+block)
}

func (h *History) Close() error {
	return h.store.Close()
}
