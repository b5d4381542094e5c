package event

// BlockID 块的稳定标识，由 block.Coordinator 注册时分配
type BlockID int

// Type 用户动作的类型
type Type int

const (
	None Type = iota
	Query
	Navigate
	Insert
	Update
	Delete
	Lock
	Commit
	Rollback
	Refresh
)

var typeNames = [...]string{
	None:     "None",
	Query:    "Query",
	Navigate: "Navigate",
	Insert:   "Insert",
	Update:   "Update",
	Delete:   "Delete",
	Lock:     "Lock",
	Commit:   "Commit",
	Rollback: "Rollback",
	Refresh:  "Refresh",
}

func (t Type) String() string {
	if t >= 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}
