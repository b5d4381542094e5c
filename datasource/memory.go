package datasource

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/hatlonely/blockx/filter"
	"github.com/hatlonely/blockx/record"
	"github.com/pkg/errors"
)

type MemoryTableOptions struct {
	Name    string          `cfg:"name" validate:"required"`
	Columns []record.Column `cfg:"columns" validate:"required,dive"`
	Key     []string        `cfg:"key"`
	Sorting string          `cfg:"sorting"`
	// Transactional 为 true 时写入先进入副本，Commit 时生效，Rollback 时丢弃
	Transactional bool `cfg:"transactional"`
	// Rows 初始数据
	Rows []map[string]any `cfg:"rows"`
}

// MemoryTable 内存中的表，条件在内存中求值
type MemoryTable struct {
	mu            sync.Mutex
	name          string
	columns       []record.Column
	key           []string
	sorting       string
	transactional bool

	committed []map[string]any
	// working 事务中的副本，nil 表示没有进行中的事务
	working []map[string]any
	result  []map[string]any
	cursor  int
	querying bool
}

func NewMemoryTableWithOptions(options *MemoryTableOptions) (*MemoryTable, error) {
	if options == nil || options.Name == "" {
		return nil, errors.New("name is required")
	}
	if len(options.Columns) == 0 {
		return nil, errors.New("columns is required")
	}
	t := &MemoryTable{
		name:          options.Name,
		columns:       append([]record.Column(nil), options.Columns...),
		key:           append([]string(nil), options.Key...),
		sorting:       options.Sorting,
		transactional: options.Transactional,
	}
	for _, row := range options.Rows {
		t.committed = append(t.committed, t.project(row))
	}
	return t, nil
}

// project 只保留表的列，并按列类型转换
func (t *MemoryTable) project(row map[string]any) map[string]any {
	out := make(map[string]any, len(t.columns))
	for _, c := range t.columns {
		v := row[c.Name]
		if converted, err := c.Type.Coerce(v); err == nil {
			v = converted
		}
		out[c.Name] = v
	}
	return out
}

func (t *MemoryTable) Name() string             { return t.name }
func (t *MemoryTable) Columns() []record.Column { return t.columns }
func (t *MemoryTable) Key() []string            { return t.key }
func (t *MemoryTable) Sorting() string          { return t.sorting }
func (t *MemoryTable) Transactional() bool      { return t.transactional }

// rows 当前可见的行，事务中为事务副本
func (t *MemoryTable) rows() []map[string]any {
	if t.working != nil {
		return t.working
	}
	return t.committed
}

// writable 返回可写的行集合，事务模式下第一次写入时复制
func (t *MemoryTable) writable() *[]map[string]any {
	if !t.transactional {
		return &t.committed
	}
	if t.working == nil {
		t.working = make([]map[string]any, len(t.committed))
		for i, row := range t.committed {
			t.working[i] = copyRow(row)
		}
	}
	return &t.working
}

func copyRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func (t *MemoryTable) Query(ctx context.Context, where *filter.Structure) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var result []map[string]any
	for _, row := range t.rows() {
		if where == nil || where.Evaluate(record.MapRow(row)) {
			result = append(result, copyRow(row))
		}
	}
	sortRows(result, t.sorting)

	t.result = result
	t.cursor = 0
	t.querying = true
	return nil
}

func (t *MemoryTable) Fetch(ctx context.Context) (map[string]any, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.querying {
		return nil, false, ErrNoQuery
	}
	if t.cursor >= len(t.result) {
		t.querying = false
		t.result = nil
		return nil, false, nil
	}
	row := t.result[t.cursor]
	t.cursor++
	return row, true, nil
}

func (t *MemoryTable) find(rows []map[string]any, rec *record.Record) int {
	key := keyFilter(t, rec)
	for i, row := range rows {
		if key.Evaluate(record.MapRow(row)) {
			return i
		}
	}
	return -1
}

func (t *MemoryTable) Insert(ctx context.Context, rec *record.Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows := t.writable()
	row := t.project(backedValues(t, rec, false))
	if len(t.key) > 0 {
		probe := filter.NewStructure()
		for _, column := range t.key {
			probe.And(filter.Equals(column).SetConstraint(row[column]))
		}
		for _, existing := range *rows {
			if probe.Evaluate(record.MapRow(existing)) {
				return errors.Errorf("duplicate key in %s", t.name)
			}
		}
	}
	*rows = append(*rows, row)
	return nil
}

func (t *MemoryTable) Update(ctx context.Context, rec *record.Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows := t.writable()
	i := t.find(*rows, rec)
	if i < 0 {
		return errors.Wrapf(ErrNotFound, "update %s", t.name)
	}
	for column, v := range backedValues(t, rec, true) {
		(*rows)[i][column] = v
	}
	return nil
}

func (t *MemoryTable) Delete(ctx context.Context, rec *record.Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows := t.writable()
	i := t.find(*rows, rec)
	if i < 0 {
		return errors.Wrapf(ErrNotFound, "delete %s", t.name)
	}
	*rows = append((*rows)[:i], (*rows)[i+1:]...)
	return nil
}

func (t *MemoryTable) Lock(ctx context.Context, rec *record.Record) error {
	row, err := t.Refresh(ctx, rec)
	if err != nil {
		return err
	}
	return verifyUnchanged(t, rec, row)
}

func (t *MemoryTable) Refresh(ctx context.Context, rec *record.Record) (map[string]any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows := t.rows()
	i := t.find(rows, rec)
	if i < 0 {
		return nil, errors.Wrapf(ErrNotFound, "refresh %s", t.name)
	}
	return copyRow(rows[i]), nil
}

func (t *MemoryTable) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.working != nil {
		t.committed = t.working
		t.working = nil
	}
	return nil
}

func (t *MemoryTable) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.working = nil
	return nil
}

func (t *MemoryTable) Close() error {
	return nil
}

// Len 已提交的行数
func (t *MemoryTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.committed)
}

type sortKey struct {
	column string
	desc   bool
}

// parseSorting 解析 "name asc, id desc"
func parseSorting(sorting string) []sortKey {
	var keys []sortKey
	for _, part := range strings.Split(sorting, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		keys = append(keys, sortKey{
			column: fields[0],
			desc:   len(fields) > 1 && strings.EqualFold(fields[1], "desc"),
		})
	}
	return keys
}

func sortRows(rows []map[string]any, sorting string) {
	keys := parseSorting(sorting)
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range keys {
			c, ok := record.Compare(rows[i][k.column], rows[j][k.column])
			if !ok || c == 0 {
				continue
			}
			if k.desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}
