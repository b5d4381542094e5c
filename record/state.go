package record

// State 记录相对后端的生命周期状态
type State int

const (
	StateNew State = iota
	StateInsert
	StateInserted
	StateConsistent
	StateUpdate
	StateUpdated
	StateDelete
	StateDeleted
	// StateQueryFilter 只用于按例查询的记录，不参与增删改
	StateQueryFilter
)

var stateNames = [...]string{
	StateNew:         "New",
	StateInsert:      "Insert",
	StateInserted:    "Inserted",
	StateConsistent:  "Consistent",
	StateUpdate:      "Update",
	StateUpdated:     "Updated",
	StateDelete:      "Delete",
	StateDeleted:     "Deleted",
	StateQueryFilter: "QueryFilter",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

var transitions = map[State][]State{
	StateNew:        {StateInsert, StateInserted},
	StateInsert:     {StateInserted, StateNew},
	StateInserted:   {StateConsistent, StateUpdate, StateDelete},
	StateConsistent: {StateUpdate, StateUpdated, StateDelete, StateDeleted},
	StateUpdate:     {StateUpdated, StateConsistent},
	StateUpdated:    {StateConsistent, StateUpdate, StateDelete},
	StateDelete:     {StateDeleted, StateConsistent},
	StateDeleted:    {StateConsistent},
}

// CanTransition 判断 from 到 to 是否是合法的状态迁移，相同状态视为合法
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// collapse 非事务上下文中写入完成的状态立即变为 Consistent
func collapse(s State, transactional bool) State {
	if transactional {
		return s
	}
	switch s {
	case StateInserted, StateUpdated, StateDeleted:
		return StateConsistent
	}
	return s
}

// Pending 处于写入后、提交前的状态
func (s State) Pending() bool {
	return s == StateInserted || s == StateUpdated || s == StateDeleted
}
