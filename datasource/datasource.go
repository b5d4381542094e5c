package datasource

import (
	"context"
	"fmt"
	"strings"

	"github.com/hatlonely/blockx/filter"
	"github.com/hatlonely/blockx/record"
	"github.com/hatlonely/blockx/ref"
	"github.com/pkg/errors"
)

const Namespace = "github.com/hatlonely/blockx/datasource"

var (
	ErrNotFound      = errors.New("record not found")
	ErrRecordChanged = errors.New("record changed by another user")
	ErrLocked        = errors.New("record locked by another user")
	ErrNoQuery       = errors.New("no query in progress")
)

func init() {
	ref.MustRegister(Namespace, "MemoryTable", NewMemoryTableWithOptions)
	ref.MustRegister(Namespace, "SQL", NewSQLWithOptions)
	ref.MustRegister(Namespace, "Mongo", NewMongoWithOptions)
}

// DataSource 块背后的后端
// 核心只把 filter.Structure 交给后端，不关心线上格式
type DataSource interface {
	Name() string
	Columns() []record.Column
	// Key 用于定位行的列，为空时使用全部列
	Key() []string
	// Sorting 排序子句，如 "name asc, id desc"
	Sorting() string
	Transactional() bool

	Query(ctx context.Context, where *filter.Structure) error
	// Fetch 返回下一行，没有更多行时 ok 为 false
	Fetch(ctx context.Context) (row map[string]any, ok bool, err error)

	Insert(ctx context.Context, rec *record.Record) error
	Update(ctx context.Context, rec *record.Record) error
	Delete(ctx context.Context, rec *record.Record) error
	// Lock 确认后端的行与记录的同步值一致
	Lock(ctx context.Context, rec *record.Record) error
	// Refresh 读取后端当前的行
	Refresh(ctx context.Context, rec *record.Record) (map[string]any, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close() error
}

// NewDataSourceWithOptions 通过 ref 创建数据源，Namespace 为空时使用本包
func NewDataSourceWithOptions(options *ref.TypeOptions) (DataSource, error) {
	if options == nil {
		return nil, errors.New("data source options is nil")
	}
	namespace := options.Namespace
	if namespace == "" {
		namespace = Namespace
	}
	obj, err := ref.New(namespace, options.Type, options.Options)
	if err != nil {
		return nil, errors.WithMessage(err, "ref.New failed")
	}
	ds, ok := obj.(DataSource)
	if !ok {
		return nil, errors.Errorf("%T is not a DataSource", obj)
	}
	return ds, nil
}

func keyColumns(ds DataSource) []string {
	if key := ds.Key(); len(key) > 0 {
		return key
	}
	names := make([]string, 0, len(ds.Columns()))
	for _, c := range ds.Columns() {
		names = append(names, c.Name)
	}
	return names
}

// keyFilter 按同步值定位记录对应的行
func keyFilter(ds DataSource, rec *record.Record) *filter.Structure {
	s := filter.NewStructure("key")
	for _, column := range keyColumns(ds) {
		s.And(filter.Equals(column).SetConstraint(rec.Synced(column)))
	}
	return s
}

// KeyString 记录主键的字符串形式，用作锁的键
func KeyString(ds DataSource, rec *record.Record) string {
	columns := keyColumns(ds)
	parts := make([]string, len(columns))
	for i, column := range columns {
		parts[i] = fmt.Sprint(rec.Synced(column))
	}
	return ds.Name() + ":" + strings.Join(parts, "|")
}

// backedValues 数据源的列中有值的部分
func backedValues(ds DataSource, rec *record.Record, dirtyOnly bool) map[string]any {
	values := map[string]any{}
	for _, c := range ds.Columns() {
		if dirtyOnly && !rec.IsDirty(c.Name) {
			continue
		}
		if rec.IndexOf(c.Name) < 0 {
			continue
		}
		values[c.Name] = rec.Get(c.Name)
	}
	return values
}

// verifyUnchanged 后端的行与记录的同步值比较
func verifyUnchanged(ds DataSource, rec *record.Record, row map[string]any) error {
	for _, c := range ds.Columns() {
		if !record.Equal(row[c.Name], rec.Synced(c.Name)) {
			return errors.Wrapf(ErrRecordChanged, "column %s", c.Name)
		}
	}
	return nil
}
