package form

import (
	"context"

	"github.com/hatlonely/blockx/block"
	"github.com/hatlonely/blockx/datasource"
	"github.com/hatlonely/blockx/event"
	"github.com/hatlonely/blockx/filter"
	"github.com/hatlonely/blockx/message"
	"github.com/hatlonely/blockx/record"
	"github.com/pkg/errors"
)

// lookup 未知的块被报告并返回 nil
func (f *Form) lookup(name string) *Block {
	b, ok := f.blocks[name]
	if !ok {
		f.reporter.Report(message.GroupBlock, message.CodeUnknownBlock, name)
		return nil
	}
	return b
}

// begin 占用块的事务槽，被占用时报告并返回 false
func (f *Form) begin(e event.Type, b *Block, rec record.Handle) bool {
	if busy := f.transaction.Start(e, b.id, rec); busy != event.None {
		f.reporter.Report(message.GroupEvent, message.CodeBusy, b.name, e.String(), busy.String())
		return false
	}
	return true
}

func (f *Form) send(name string, blockName string, fn func(ctx context.Context, b *Block) error) {
	var id event.BlockID
	if b, ok := f.blocks[blockName]; ok {
		id = b.id
	}
	f.stack.Send(name, id, func(ctx context.Context) error {
		b := f.lookup(blockName)
		if b == nil {
			return nil
		}
		return fn(ctx, b)
	})
}

// Do 将外部调用排入分发队列
func (f *Form) Do(name string, fn func(ctx context.Context) error) {
	f.stack.Queue(name, fn)
}

// EnterQuery 块进入按例查询模式，直到 ExecuteQuery 或 CancelQuery 之前占用块的事务槽
func (f *Form) EnterQuery(name string) {
	f.send("enterQuery", name, func(ctx context.Context, b *Block) error {
		if b.queryMode {
			return nil
		}
		if !f.coordinator.AllowQueryMode(name) {
			f.reporter.Report(message.GroupQuery, message.CodeQueryNotAllowed, name)
			return nil
		}
		if b.rs.HasPending() {
			f.reporter.Report(message.GroupRecord, message.CodePendingChanges, name)
			return nil
		}
		if !f.begin(event.Query, b, 0) {
			return nil
		}
		b.queryMode = true
		b.criteria = nil
		f.clear(ctx, b)
		return nil
	})
}

// CancelQuery 退出查询模式，丢弃已输入的条件
func (f *Form) CancelQuery(name string) {
	f.send("cancelQuery", name, func(ctx context.Context, b *Block) error {
		if !b.queryMode {
			return nil
		}
		b.queryMode = false
		b.qbe.Discard()
		f.transaction.Finish(b.id)
		return nil
	})
}

// ExecuteQuery 在最上层处于查询模式的主块上执行查询，然后级联查询从块
func (f *Form) ExecuteQuery(name string) {
	f.send("executeQuery", name, func(ctx context.Context, b *Block) error {
		master := f.blocks[f.coordinator.GetQueryMaster(name)]
		if master == nil {
			master = b
		}
		if master.queryMode {
			if f.transaction.Event(master.id) != event.Query {
				return errors.Errorf("block %s in query mode without query transaction", master.name)
			}
		} else if !f.begin(event.Query, master, 0) {
			return nil
		}
		defer f.transaction.Finish(master.id)

		where, err := f.where(ctx, master)
		if err != nil {
			f.leaveQueryMode(ctx, master)
			return err
		}
		f.leaveQueryMode(ctx, master)
		master.criteria = nil

		if err := master.rs.Execute(ctx, where); err != nil {
			return errors.WithMessagef(err, "query block %s", master.name)
		}
		f.cascade(master)
		return nil
	})
}

// Requery 按当前条件重新查询块
func (f *Form) Requery(name string) {
	f.send("requery", name, func(ctx context.Context, b *Block) error {
		return f.requery(ctx, b)
	})
}

// leaveQueryMode 主块及其处于查询模式的从块退出查询模式
// 从块的条件保存到 criteria，在级联查询时使用
func (f *Form) leaveQueryMode(ctx context.Context, b *Block) {
	visited := map[string]bool{}
	var walk func(b *Block)
	walk = func(b *Block) {
		if visited[b.name] {
			return
		}
		visited[b.name] = true
		if b.queryMode {
			b.criteria = b.qbe.Structure()
			if err := b.qbe.Clear(ctx); err != nil {
				f.logger.Warn("save query history failed", "block", b.name, "error", err.Error())
			}
			b.queryMode = false
			if f.transaction.Event(b.id) == event.Query {
				f.transaction.Finish(b.id)
			}
		}
		for _, r := range f.coordinator.Details(b.name) {
			if d := f.blocks[r.Detail().Block()]; d != nil {
				walk(d)
			}
		}
	}
	walk(b)
}

// where 组合块的查询条件：固定条件、按例条件、主块当前记录的关系条件、从块按例条件的子查询
func (f *Form) where(ctx context.Context, b *Block) (*filter.Structure, error) {
	where := filter.NewStructure(b.name)
	if !b.where.IsEmpty() {
		where.AndStructure(b.where.Clone(), "where")
	}
	if b.queryMode {
		if s := b.qbe.Structure(); !s.IsEmpty() {
			where.AndStructure(s, "qbe")
		}
	} else if b.criteria != nil {
		if !b.criteria.IsEmpty() {
			where.AndStructure(b.criteria, "qbe")
		}
		b.criteria = nil
	}

	for _, r := range f.coordinator.Masters(b.name) {
		m := f.blocks[r.Master().Block()]
		if m == nil || m.queryMode {
			continue
		}
		rec := m.rs.Current()
		if rec == nil {
			continue
		}
		detailFields := r.Detail().Fields()
		for i, field := range r.Master().Fields() {
			where.And(filter.Equals(detailFields[i]).SetConstraint(rec.Get(field)), "relation."+r.Name()+"."+detailFields[i])
		}
	}

	for _, r := range f.coordinator.Details(b.name) {
		d := f.blocks[r.Detail().Block()]
		if d == nil || !d.queryMode || d.qbe.IsEmpty() {
			continue
		}
		masterFields := r.Master().Fields()
		for i, field := range r.Detail().Fields() {
			sub, err := f.subQuery(ctx, d, masterFields[i], field)
			if err != nil {
				return nil, err
			}
			where.And(sub, "detail."+r.Name()+"."+field)
		}
	}
	return where, nil
}

// subQuery 主块列 in (从块满足按例条件的关联列)
// 先在从块的数据源上求出结果，SQL 后端渲染为子查询，其他后端使用求出的值
func (f *Form) subQuery(ctx context.Context, d *Block, masterField string, detailField string) (*filter.SubQueryFilter, error) {
	criteria := d.qbe.Structure()
	ds := d.rs.DataSource()
	if err := ds.Query(ctx, criteria); err != nil {
		return nil, errors.WithMessagef(err, "sub query block %s", d.name)
	}
	var values []any
	for {
		row, ok, err := ds.Fetch(ctx)
		if err != nil {
			return nil, errors.WithMessagef(err, "sub query block %s", d.name)
		}
		if !ok {
			break
		}
		values = append(values, row[detailField])
	}
	return filter.SubQuery(masterField, ds.Name(), detailField, criteria).Resolve(values), nil
}

// cascade 在后续的分发中重新查询所有从块
func (f *Form) cascade(b *Block) {
	for _, r := range f.coordinator.Details(b.name) {
		d := f.blocks[r.Detail().Block()]
		if d == nil {
			continue
		}
		f.stack.Send("requery", d.id, func(ctx context.Context) error {
			return f.requery(ctx, d)
		})
	}
}

// clear 清空块及其所有从块，不访问后端
func (f *Form) clear(ctx context.Context, b *Block) {
	visited := map[string]bool{}
	var walk func(b *Block)
	walk = func(b *Block) {
		if visited[b.name] {
			return
		}
		visited[b.name] = true
		b.rs.Clear(ctx)
		for _, r := range f.coordinator.Details(b.name) {
			if d := f.blocks[r.Detail().Block()]; d != nil && !d.queryMode {
				walk(d)
			}
		}
	}
	walk(b)
}

// mastersReady 所有主块都有已存在于后端的当前记录，或关系允许孤立查询
func (f *Form) mastersReady(b *Block) bool {
	for _, r := range f.coordinator.Masters(b.name) {
		m := f.blocks[r.Master().Block()]
		if m == nil {
			return false
		}
		rec := m.rs.Current()
		if rec == nil || rec.State() == record.StateNew || rec.State() == record.StateInsert {
			if !f.coordinator.AllowMasterLess(m.name, b.name) {
				return false
			}
		}
	}
	return true
}

func (f *Form) requery(ctx context.Context, b *Block) error {
	if b.queryMode {
		return nil
	}
	if !f.begin(event.Query, b, 0) {
		return nil
	}
	defer f.transaction.Finish(b.id)

	if b.rs.HasPending() {
		f.reporter.Report(message.GroupRecord, message.CodePendingChanges, b.name)
		return nil
	}
	if !f.mastersReady(b) {
		b.criteria = nil
		f.clear(ctx, b)
		return nil
	}

	where, err := f.where(ctx, b)
	if err != nil {
		return err
	}
	if err := b.rs.Execute(ctx, where); err != nil {
		return errors.WithMessagef(err, "query block %s", b.name)
	}
	f.cascade(b)
	return nil
}

// Navigate 移动当前记录并级联查询从块
func (f *Form) Navigate(name string, index int) {
	f.send("navigate", name, func(ctx context.Context, b *Block) error {
		if index == b.rs.CurrentIndex() {
			return nil
		}
		if !f.begin(event.Navigate, b, 0) {
			return nil
		}
		moved := b.rs.SetCurrent(index)
		f.transaction.Finish(b.id)
		if moved {
			f.cascade(b)
		}
		return nil
	})
}

func (f *Form) Next(name string) {
	if b, ok := f.blocks[name]; ok {
		f.Navigate(name, b.rs.CurrentIndex()+1)
		return
	}
	f.Navigate(name, 0)
}

func (f *Form) Previous(name string) {
	if b, ok := f.blocks[name]; ok {
		f.Navigate(name, b.rs.CurrentIndex()-1)
		return
	}
	f.Navigate(name, 0)
}

// SetField 查询模式下设置示例值；否则加锁修改当前记录，并重新查询以该列为关系键的从块
func (f *Form) SetField(name string, column string, value any) {
	f.send("setField", name, func(ctx context.Context, b *Block) error {
		if b.queryMode {
			if err := b.qbe.SetValue(column, value); err != nil {
				f.reporter.Report(message.GroupRecord, message.CodeInvalidValue, name, column, err.Error())
			}
			return nil
		}

		rec := b.rs.Current()
		if rec == nil {
			return nil
		}
		if !f.begin(event.Update, b, rec.Handle()) {
			return nil
		}
		err := b.rs.Set(ctx, rec, column, value)
		f.transaction.Finish(b.id)
		if err != nil {
			if errors.Is(err, datasource.ErrRecordChanged) || errors.Is(err, datasource.ErrLocked) || errors.Is(err, datasource.ErrNotFound) {
				f.reporter.Report(message.GroupRecord, message.CodeLockFailed, name, column, err.Error())
				return nil
			}
			return err
		}

		for _, r := range f.coordinator.GetDetailBlocksForField(name, column) {
			d := f.blocks[r.Detail().Block()]
			if d == nil {
				continue
			}
			f.stack.Send("requery", d.id, func(ctx context.Context) error {
				return f.requery(ctx, d)
			})
		}
		return nil
	})
}

// Insert 在当前记录之后新增记录，关系键从主块的当前记录复制
func (f *Form) Insert(name string) {
	f.send("insert", name, func(ctx context.Context, b *Block) error {
		if b.queryMode {
			return nil
		}
		if !f.begin(event.Insert, b, 0) {
			return nil
		}
		defer f.transaction.Finish(b.id)

		if !f.mastersReady(b) {
			f.reporter.Report(message.GroupRecord, message.CodeQueryNotAllowed, name)
			return nil
		}
		rec := b.rs.NewRecord()
		for _, r := range f.coordinator.Masters(b.name) {
			m := f.blocks[r.Master().Block()]
			if m == nil || m.rs.Current() == nil {
				continue
			}
			detailFields := r.Detail().Fields()
			for i, field := range r.Master().Fields() {
				if err := b.rs.Set(ctx, rec, detailFields[i], m.rs.Current().Get(field)); err != nil {
					return err
				}
			}
		}
		f.cascade(b)
		return nil
	})
}

// Delete 标记删除当前记录
// 从块中有记录且关系不允许孤立时拒绝
func (f *Form) Delete(name string) {
	f.send("delete", name, func(ctx context.Context, b *Block) error {
		rec := b.rs.Current()
		if b.queryMode || rec == nil {
			return nil
		}
		if !f.begin(event.Delete, b, rec.Handle()) {
			return nil
		}
		defer f.transaction.Finish(b.id)

		for _, r := range f.coordinator.Details(b.name) {
			d := f.blocks[r.Detail().Block()]
			if d != nil && !d.IsEmpty() && !r.AllowOrphan() {
				f.reporter.Report(message.GroupRelation, message.CodeDetailExists, r.Name(), name)
				return nil
			}
		}
		if err := b.rs.Delete(ctx, rec); err != nil {
			if errors.Is(err, datasource.ErrRecordChanged) || errors.Is(err, datasource.ErrLocked) || errors.Is(err, datasource.ErrNotFound) {
				f.reporter.Report(message.GroupRecord, message.CodeLockFailed, name, err.Error())
				return nil
			}
			return err
		}
		return nil
	})
}

// ordered 主块在前
func (f *Form) ordered() []*Block {
	visited := map[string]bool{}
	var blocks []*Block
	var visit func(name string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		for _, r := range f.coordinator.Masters(name) {
			if _, ok := f.blocks[r.Master().Block()]; ok {
				visit(r.Master().Block())
			}
		}
		blocks = append(blocks, f.blocks[name])
	}
	for _, name := range f.order {
		visit(name)
	}
	return blocks
}

// Commit 写入并提交所有块，任一块被占用时不执行
func (f *Form) Commit() {
	f.stack.Queue("commit", func(ctx context.Context) error {
		blocks := f.ordered()
		if !f.beginAll(event.Commit, blocks) {
			return nil
		}
		defer f.finishAll(blocks)

		for _, b := range blocks {
			if err := b.rs.Post(ctx); err != nil {
				return errors.WithMessagef(err, "post block %s", b.name)
			}
		}
		for _, b := range blocks {
			if err := b.rs.Commit(ctx); err != nil {
				return errors.WithMessagef(err, "commit block %s", b.name)
			}
		}
		return nil
	})
}

// Rollback 回滚所有块并从后端刷新
func (f *Form) Rollback() {
	f.stack.Queue("rollback", func(ctx context.Context) error {
		blocks := f.ordered()
		if !f.beginAll(event.Rollback, blocks) {
			return nil
		}
		defer f.finishAll(blocks)

		for i := len(blocks) - 1; i >= 0; i-- {
			if err := blocks[i].rs.Rollback(ctx); err != nil {
				return errors.WithMessagef(err, "rollback block %s", blocks[i].name)
			}
		}
		return nil
	})
}

// beginAll 占用所有块，任一失败时释放已占用的
func (f *Form) beginAll(e event.Type, blocks []*Block) bool {
	for i, b := range blocks {
		if !f.begin(e, b, 0) {
			f.finishAll(blocks[:i])
			return false
		}
	}
	return true
}

func (f *Form) finishAll(blocks []*Block) {
	for _, b := range blocks {
		f.transaction.Finish(b.id)
	}
}

// Relations 块作为从块的关系
func (f *Form) Relations(name string) []*block.Relation {
	return f.coordinator.Masters(name)
}
