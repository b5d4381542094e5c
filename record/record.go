package record

// Row 按列名读取值，过滤条件在内存中求值时使用
type Row interface {
	Get(column string) any
}

// MapRow 以 map 表示的行
type MapRow map[string]any

func (r MapRow) Get(column string) any {
	return r[column]
}

// Handle 记录的不透明标识，同一个 Arena 内不会复用
type Handle uint64

// Record 一行数据及其生命周期
type Record struct {
	handle        Handle
	transactional bool

	columns []Column
	index   map[string]int
	values  []any
	synced  []any
	dirty   map[string]struct{}

	state    State
	locked   bool
	failed   bool
	flushing bool
}

func newRecord(handle Handle, columns []Column, state State, transactional bool) *Record {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, ok := index[c.Name]; !ok {
			index[c.Name] = i
		}
	}
	return &Record{
		handle:        handle,
		transactional: transactional,
		columns:       columns,
		index:         index,
		values:        make([]any, len(columns)),
		synced:        make([]any, len(columns)),
		dirty:         map[string]struct{}{},
		state:         state,
	}
}

func (r *Record) Handle() Handle {
	return r.handle
}

func (r *Record) Transactional() bool {
	return r.transactional
}

func (r *Record) Columns() []Column {
	return r.columns
}

// IndexOf 列不存在时返回 -1
func (r *Record) IndexOf(column string) int {
	if i, ok := r.index[column]; ok {
		return i
	}
	return -1
}

func (r *Record) Column(column string) (Column, bool) {
	i := r.IndexOf(column)
	if i < 0 {
		return Column{}, false
	}
	return r.columns[i], true
}

// Get 列不存在时返回 nil
func (r *Record) Get(column string) any {
	i := r.IndexOf(column)
	if i < 0 {
		return nil
	}
	return r.values[i]
}

// Synced 最近一次与后端同步时的值
func (r *Record) Synced(column string) any {
	i := r.IndexOf(column)
	if i < 0 {
		return nil
	}
	return r.synced[i]
}

func (r *Record) Values() []any {
	return append([]any(nil), r.values...)
}

// Map 以列名为键的当前值
func (r *Record) Map() map[string]any {
	m := make(map[string]any, len(r.columns))
	for i, c := range r.columns {
		m[c.Name] = r.values[i]
	}
	return m
}

// Set 设置列值并维护脏列集合
// 与同步值相等时移除脏标记；写入过程中不会重新标脏
func (r *Record) Set(column string, value any) {
	if column == "" {
		return
	}
	i := r.IndexOf(column)
	if i < 0 {
		return
	}

	r.values[i] = value
	if Equal(value, r.synced[i]) {
		delete(r.dirty, column)
		return
	}
	if !r.flushing {
		r.dirty[column] = struct{}{}
	}
}

// Load 以后端数据初始化记录，值同时作为同步值，不产生脏列
func (r *Record) Load(values map[string]any) {
	for i, c := range r.columns {
		v, ok := values[c.Name]
		if !ok {
			continue
		}
		r.values[i] = v
		r.synced[i] = v
	}
	r.dirty = map[string]struct{}{}
}

func (r *Record) IsDirty(column string) bool {
	_, ok := r.dirty[column]
	return ok
}

// Dirty 按列顺序返回脏列
func (r *Record) Dirty() []string {
	var names []string
	for _, c := range r.columns {
		if _, ok := r.dirty[c.Name]; ok {
			names = append(names, c.Name)
		}
	}
	return names
}

func (r *Record) HasChanges() bool {
	return len(r.dirty) > 0
}

func (r *Record) State() State {
	return r.state
}

// SetState 迁移到状态 s，非法迁移被忽略并返回 false
// 非事务上下文中 Inserted、Updated、Deleted 从任何状态写入都直接变为 Consistent
func (r *Record) SetState(s State) bool {
	if r.state == StateQueryFilter || s == StateQueryFilter {
		return r.state == s
	}
	if c := collapse(s, r.transactional); c != s {
		r.state = c
		return true
	}
	if !CanTransition(r.state, s) {
		return false
	}
	r.state = collapse(s, r.transactional)
	return true
}

func (r *Record) Locked() bool {
	return r.locked
}

func (r *Record) SetLocked(locked bool) {
	r.locked = locked
}

func (r *Record) Failed() bool {
	return r.failed
}

func (r *Record) SetFailed(failed bool) {
	r.failed = failed
}

func (r *Record) Flushing() bool {
	return r.flushing
}

// SetFlushing 写入后端期间置为 true
func (r *Record) SetFlushing(flushing bool) {
	r.flushing = flushing
}

// SetClean 当前值成为新的同步基线，release 为 true 时同时释放锁
func (r *Record) SetClean(release bool) {
	copy(r.synced, r.values)
	r.dirty = map[string]struct{}{}
	r.failed = false
	if release {
		r.locked = false
	}
}

// Refresh 用 read 重新读取每一列的同步值并丢弃本地修改
// read 返回 false 的列（如叠加列）置为 nil
func (r *Record) Refresh(read func(column string) (any, bool)) {
	for i := range r.values {
		r.values[i] = nil
		r.synced[i] = nil
	}
	r.dirty = map[string]struct{}{}
	r.failed = false

	for i, c := range r.columns {
		v, ok := read(c.Name)
		if !ok {
			continue
		}
		r.values[i] = v
		r.synced[i] = v
	}
}

// Clear 清空所有值，用于按例查询记录的重置
func (r *Record) Clear() {
	for i := range r.values {
		r.values[i] = nil
		r.synced[i] = nil
	}
	r.dirty = map[string]struct{}{}
}
