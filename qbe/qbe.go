package qbe

import (
	"context"
	"strings"
	"time"

	"github.com/hatlonely/blockx/filter"
	"github.com/hatlonely/blockx/log"
	"github.com/hatlonely/blockx/record"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

type snapshot struct {
	value  any
	filter filter.Filter
}

// QueryByExample 按例查询
// 用户在一条 QueryFilter 状态的记录中填写示例值，每个有值的列生成一个过滤条件
type QueryByExample struct {
	name    string
	columns []record.Column
	arena   *record.Arena
	rec     *record.Record

	structure *filter.Structure
	// explicit 调用方指定的过滤条件，不会被示例值覆盖
	explicit map[string]filter.Filter
	last     map[string]snapshot

	history *History
	logger  log.Logger
}

// New history 为 nil 时上一次查询只保存在内存中
func New(name string, columns []record.Column, history *History, logger log.Logger) *QueryByExample {
	arena := record.NewArena(false)
	return &QueryByExample{
		name:      name,
		columns:   columns,
		arena:     arena,
		rec:       arena.New(columns, record.StateQueryFilter),
		structure: filter.NewStructure(name),
		explicit:  map[string]filter.Filter{},
		last:      map[string]snapshot{},
		history:   history,
		logger:    log.Or(logger, "qbe").With("block", name),
	}
}

func (q *QueryByExample) Name() string {
	return q.name
}

// Record 保存示例值的记录
func (q *QueryByExample) Record() *record.Record {
	return q.rec
}

func (q *QueryByExample) Value(column string) any {
	return q.rec.Get(column)
}

func (q *QueryByExample) columnType(column string, v any) record.Type {
	if c, ok := q.rec.Column(column); ok && c.Type != record.TypeUnknown {
		return c.Type
	}
	return record.InferType(v)
}

// SetValue 设置示例值并按列类型转换，空字符串视为 nil
// 没有指定过滤条件的列按值重新生成默认条件
func (q *QueryByExample) SetValue(column string, v any) error {
	if _, ok := q.rec.Column(column); !ok {
		return errors.Errorf("unknown column %s", column)
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		v = nil
	}
	if v != nil {
		converted, err := q.columnType(column, v).Coerce(v)
		if err != nil {
			return err
		}
		v = converted
	}
	q.rec.Set(column, v)
	if _, ok := q.explicit[column]; !ok {
		q.SetFilter(column, nil)
	}
	return nil
}

// SetFilter 为列指定过滤条件，f 为 nil 时按列类型和示例值生成默认条件
func (q *QueryByExample) SetFilter(column string, f filter.Filter) {
	if f != nil {
		q.explicit[column] = f
		q.structure.And(f, column)
		return
	}

	delete(q.explicit, column)
	f = q.defaultFilter(column, q.rec.Get(column))
	if f == nil {
		q.structure.DeleteName(column)
		return
	}
	q.structure.And(f, column)
}

// defaultFilter 字符串部分匹配；数值和布尔相等；日期为当天的闭区间
func (q *QueryByExample) defaultFilter(column string, v any) filter.Filter {
	if v == nil {
		return nil
	}
	t := q.columnType(column, v)
	switch t {
	case record.TypeString:
		pattern := cast.ToString(v)
		if !strings.ContainsAny(pattern, "%_") {
			pattern = "%" + pattern + "%"
		}
		return filter.Like(column, filter.WithType(t)).SetConstraint(pattern)
	case record.TypeDate, record.TypeDateTime:
		tm, err := cast.ToTimeE(v)
		if err != nil {
			q.logger.Warn("invalid date example", "column", column, "value", v)
			return nil
		}
		return filter.Between(column, true, filter.WithType(t)).SetConstraint(record.StartOfDay(tm), record.EndOfDay(tm))
	}
	return filter.Equals(column, filter.WithType(t)).SetConstraint(v)
}

// Filter 列当前的过滤条件
func (q *QueryByExample) Filter(column string) filter.Filter {
	return q.structure.Filter(column)
}

// Structure 当前条件的副本
func (q *QueryByExample) Structure() *filter.Structure {
	return q.structure.Clone()
}

func (q *QueryByExample) IsEmpty() bool {
	return q.structure.IsEmpty()
}

// Clear 保存当前的值和条件作为上一次查询，然后清空
func (q *QueryByExample) Clear(ctx context.Context) error {
	last := map[string]snapshot{}
	values := map[string]any{}
	for _, c := range q.columns {
		v := q.rec.Get(c.Name)
		f, explicit := q.explicit[c.Name]
		if v == nil && !explicit {
			continue
		}
		s := snapshot{value: v}
		if explicit {
			s.filter = f.Clone()
		}
		last[c.Name] = s
		if v != nil {
			values[c.Name] = v
		}
	}
	if len(last) > 0 {
		q.last = last
	}

	q.rec.Clear()
	q.structure = filter.NewStructure(q.name)
	q.explicit = map[string]filter.Filter{}

	if q.history != nil && len(values) > 0 {
		if err := q.history.Save(ctx, q.name, values); err != nil {
			return errors.WithMessage(err, "history.Save failed")
		}
	}
	return nil
}

// Discard 清空但不保存为上一次查询
func (q *QueryByExample) Discard() {
	q.rec.Clear()
	q.structure = filter.NewStructure(q.name)
	q.explicit = map[string]filter.Filter{}
}

// Last 上一次查询的示例值
func (q *QueryByExample) Last() map[string]any {
	values := make(map[string]any, len(q.last))
	for column, s := range q.last {
		values[column] = s.value
	}
	return values
}

// Repeat 恢复上一次查询的值和条件
func (q *QueryByExample) Repeat() error {
	for _, c := range q.columns {
		column := c.Name
		s, ok := q.last[column]
		if !ok {
			continue
		}
		if s.filter != nil {
			q.rec.Set(column, s.value)
			q.SetFilter(column, s.filter.Clone())
			continue
		}
		if err := q.SetValue(column, s.value); err != nil {
			return err
		}
	}
	return nil
}

// Restore 从历史中恢复上一次查询的值，没有历史时返回 false
func (q *QueryByExample) Restore(ctx context.Context) (bool, error) {
	if q.history == nil {
		return false, nil
	}
	values, err := q.history.Load(ctx, q.name)
	if err != nil {
		return false, errors.WithMessage(err, "history.Load failed")
	}
	if len(values) == 0 {
		return false, nil
	}
	for _, c := range q.columns {
		v, ok := values[c.Name]
		if !ok {
			continue
		}
		if err := q.SetValue(c.Name, v); err != nil {
			return false, err
		}
	}
	return true, nil
}

// SavedAt 最近一次保存历史的时间
func (q *QueryByExample) SavedAt(ctx context.Context) (time.Time, error) {
	if q.history == nil {
		return time.Time{}, nil
	}
	return q.history.SavedAt(ctx, q.name)
}
