package datasource

import (
	"context"

	"github.com/hatlonely/blockx/filter"
	"github.com/hatlonely/blockx/log"
	"github.com/hatlonely/blockx/record"
	"github.com/pkg/errors"
)

// ResultSet 数据源的查询结果及其中记录的生命周期
// 列为数据源的列加上叠加列，叠加列只在本地保存，不写回后端
type ResultSet struct {
	ds      DataSource
	arena   *record.Arena
	columns []record.Column
	records []*record.Record
	current int
	locker  *Locker
	logger  log.Logger
}

// NewResultSet locker 为 nil 时只做数据源级别的锁校验
func NewResultSet(ds DataSource, overlay []record.Column, locker *Locker, logger log.Logger) *ResultSet {
	columns := append([]record.Column(nil), ds.Columns()...)
	for _, c := range overlay {
		exists := false
		for _, existing := range columns {
			if existing.Name == c.Name {
				exists = true
				break
			}
		}
		if !exists {
			columns = append(columns, c)
		}
	}
	return &ResultSet{
		ds:      ds,
		arena:   record.NewArena(ds.Transactional()),
		columns: columns,
		current: -1,
		locker:  locker,
		logger:  log.Or(logger, "resultSet").With("dataSource", ds.Name()),
	}
}

func (rs *ResultSet) DataSource() DataSource {
	return rs.ds
}

func (rs *ResultSet) Columns() []record.Column {
	return rs.columns
}

func (rs *ResultSet) Records() []*record.Record {
	return rs.records
}

func (rs *ResultSet) Len() int {
	return len(rs.records)
}

func (rs *ResultSet) IsEmpty() bool {
	return len(rs.records) == 0
}

// Current 没有当前记录时返回 nil
func (rs *ResultSet) Current() *record.Record {
	if rs.current < 0 || rs.current >= len(rs.records) {
		return nil
	}
	return rs.records[rs.current]
}

func (rs *ResultSet) CurrentIndex() int {
	return rs.current
}

func (rs *ResultSet) SetCurrent(i int) bool {
	if i < 0 || i >= len(rs.records) {
		return false
	}
	rs.current = i
	return true
}

func (rs *ResultSet) Record(h record.Handle) *record.Record {
	return rs.arena.Get(h)
}

// Execute 丢弃当前结果并按 where 重新查询
func (rs *ResultSet) Execute(ctx context.Context, where *filter.Structure) error {
	rs.releaseAll(ctx)
	rs.records = nil
	rs.current = -1
	rs.arena.Reset()

	if err := rs.ds.Query(ctx, where); err != nil {
		return errors.WithMessage(err, "query failed")
	}
	for {
		row, ok, err := rs.ds.Fetch(ctx)
		if err != nil {
			return errors.WithMessage(err, "fetch failed")
		}
		if !ok {
			break
		}
		rec := rs.arena.New(rs.columns, record.StateConsistent)
		rec.Load(row)
		rs.records = append(rs.records, rec)
	}
	if len(rs.records) > 0 {
		rs.current = 0
	}
	rs.logger.Debug("query executed", "rows", len(rs.records))
	return nil
}

// Clear 丢弃全部记录，不访问后端
func (rs *ResultSet) Clear(ctx context.Context) {
	rs.releaseAll(ctx)
	rs.records = nil
	rs.current = -1
	rs.arena.Reset()
}

// NewRecord 在当前记录之后插入一条新记录并设为当前记录
func (rs *ResultSet) NewRecord() *record.Record {
	rec := rs.arena.New(rs.columns, record.StateNew)
	i := rs.current + 1
	rs.records = append(rs.records, nil)
	copy(rs.records[i+1:], rs.records[i:])
	rs.records[i] = rec
	rs.current = i
	return rec
}

func (rs *ResultSet) indexOf(rec *record.Record) int {
	for i, r := range rs.records {
		if r == rec {
			return i
		}
	}
	return -1
}

// Remove 从结果中移除记录，不访问后端
func (rs *ResultSet) Remove(rec *record.Record) {
	i := rs.indexOf(rec)
	if i < 0 {
		return
	}
	rs.records = append(rs.records[:i], rs.records[i+1:]...)
	rs.arena.Release(rec.Handle())
	if rs.current >= len(rs.records) {
		rs.current = len(rs.records) - 1
	} else if i < rs.current {
		rs.current--
	}
}

func inBackend(rec *record.Record) bool {
	switch rec.State() {
	case record.StateNew, record.StateInsert, record.StateQueryFilter:
		return false
	}
	return true
}

// Lock 锁定记录，后端的值已被他人修改时返回 ErrRecordChanged
func (rs *ResultSet) Lock(ctx context.Context, rec *record.Record) error {
	if rec.Locked() || !inBackend(rec) {
		return nil
	}
	key := KeyString(rs.ds, rec)
	if rs.locker != nil {
		if err := rs.locker.Acquire(ctx, key); err != nil {
			return err
		}
	}
	if err := rs.ds.Lock(ctx, rec); err != nil {
		if rs.locker != nil {
			_ = rs.locker.Release(ctx, key)
		}
		return err
	}
	rec.SetLocked(true)
	return nil
}

func (rs *ResultSet) unlock(ctx context.Context, rec *record.Record) {
	if !rec.Locked() {
		return
	}
	if rs.locker != nil {
		if err := rs.locker.Release(ctx, KeyString(rs.ds, rec)); err != nil {
			rs.logger.Warn("release lock failed", "err", err)
		}
	}
	rec.SetLocked(false)
}

func (rs *ResultSet) releaseAll(ctx context.Context) {
	for _, rec := range rs.records {
		rs.unlock(ctx, rec)
	}
}

// Set 修改列值，已存在于后端的记录先加锁
func (rs *ResultSet) Set(ctx context.Context, rec *record.Record, column string, value any) error {
	if c, ok := rec.Column(column); ok {
		if converted, err := c.Type.Coerce(value); err == nil {
			value = converted
		}
	}
	if err := rs.Lock(ctx, rec); err != nil {
		return err
	}
	rec.Set(column, value)
	if !rec.HasChanges() {
		return nil
	}
	switch rec.State() {
	case record.StateNew:
		rec.SetState(record.StateInsert)
	case record.StateConsistent, record.StateInserted, record.StateUpdated:
		rec.SetState(record.StateUpdate)
	}
	return nil
}

// Delete 标记删除，未写入后端的新记录直接移除
func (rs *ResultSet) Delete(ctx context.Context, rec *record.Record) error {
	if !inBackend(rec) {
		rs.Remove(rec)
		return nil
	}
	if err := rs.Lock(ctx, rec); err != nil {
		return err
	}
	if rec.State() == record.StateUpdate {
		// 未写入的修改随删除一起丢弃
		rec.SetState(record.StateConsistent)
	}
	if !rec.SetState(record.StateDelete) {
		return errors.Errorf("cannot delete record in state %s", rec.State())
	}
	return nil
}

// Post 将待写入的记录写入后端，遇到第一个错误时停止
func (rs *ResultSet) Post(ctx context.Context) error {
	for _, rec := range append([]*record.Record(nil), rs.records...) {
		if err := rs.post(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (rs *ResultSet) post(ctx context.Context, rec *record.Record) error {
	state := rec.State()
	switch state {
	case record.StateInsert, record.StateUpdate, record.StateDelete:
	default:
		return nil
	}

	var err error
	target := record.StateConsistent
	rec.SetFlushing(true)
	switch state {
	case record.StateInsert:
		target = record.StateInserted
		err = rs.ds.Insert(ctx, rec)
	case record.StateUpdate:
		target = record.StateUpdated
		err = rs.ds.Update(ctx, rec)
	case record.StateDelete:
		target = record.StateDeleted
		err = rs.ds.Delete(ctx, rec)
	}
	rec.SetFlushing(false)

	if err != nil {
		rec.SetFailed(true)
		rs.logger.Warn("post failed", "state", state, "err", err)
		return errors.WithMessagef(err, "post %s failed", state)
	}

	rec.SetState(target)
	if target == record.StateDeleted {
		if !rs.ds.Transactional() {
			rs.unlock(ctx, rec)
			rs.Remove(rec)
		}
		return nil
	}
	rec.SetClean(false)
	if !rs.ds.Transactional() {
		rs.unlock(ctx, rec)
	}
	return nil
}

// Commit 写入并提交，之后所有记录回到 Consistent
func (rs *ResultSet) Commit(ctx context.Context) error {
	if err := rs.Post(ctx); err != nil {
		return err
	}
	if err := rs.ds.Commit(ctx); err != nil {
		return errors.WithMessage(err, "commit failed")
	}
	for _, rec := range append([]*record.Record(nil), rs.records...) {
		switch rec.State() {
		case record.StateDeleted:
			rs.unlock(ctx, rec)
			rs.Remove(rec)
			continue
		case record.StateInserted, record.StateUpdated:
			rec.SetState(record.StateConsistent)
		}
		rs.unlock(ctx, rec)
	}
	return nil
}

// Rollback 回滚后端事务并从后端重新读取记录
// 不再存在于后端的记录以及未写入的新记录被移除
func (rs *ResultSet) Rollback(ctx context.Context) error {
	if err := rs.ds.Rollback(ctx); err != nil {
		return errors.WithMessage(err, "rollback failed")
	}
	for _, rec := range append([]*record.Record(nil), rs.records...) {
		rs.unlock(ctx, rec)
		if !inBackend(rec) {
			rs.Remove(rec)
			continue
		}
		if err := rs.Refresh(ctx, rec); err != nil {
			if errors.Is(err, ErrNotFound) {
				rs.Remove(rec)
				continue
			}
			return err
		}
	}
	return nil
}

// Refresh 丢弃本地修改，从后端重新读取
func (rs *ResultSet) Refresh(ctx context.Context, rec *record.Record) error {
	row, err := rs.ds.Refresh(ctx, rec)
	if err != nil {
		return err
	}
	rec.Refresh(func(column string) (any, bool) {
		v, ok := row[column]
		return v, ok
	})
	if rec.State() != record.StateConsistent {
		rec.SetState(record.StateConsistent)
	}
	return nil
}

// HasPending 是否存在未写入或未提交的记录
func (rs *ResultSet) HasPending() bool {
	for _, rec := range rs.records {
		switch rec.State() {
		case record.StateConsistent, record.StateNew:
			continue
		}
		return true
	}
	return false
}
