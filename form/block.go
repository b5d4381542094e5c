package form

import (
	"github.com/hatlonely/blockx/datasource"
	"github.com/hatlonely/blockx/event"
	"github.com/hatlonely/blockx/filter"
	"github.com/hatlonely/blockx/qbe"
	"github.com/hatlonely/blockx/record"
)

// Block 表单中的一个块
type Block struct {
	name  string
	id    event.BlockID
	rs    *datasource.ResultSet
	where *filter.Structure
	qbe   *qbe.QueryByExample

	queryMode bool
	// criteria 退出查询模式时保存的按例条件，下一次查询使用后清除
	criteria *filter.Structure
}

func (b *Block) Name() string {
	return b.name
}

func (b *Block) ID() event.BlockID {
	return b.id
}

func (b *Block) InQueryMode() bool {
	return b.queryMode
}

func (b *Block) IsEmpty() bool {
	return b.rs.Current() == nil
}

func (b *Block) ResultSet() *datasource.ResultSet {
	return b.rs
}

// Where 块固定的过滤条件，每次查询都会带上
func (b *Block) Where() *filter.Structure {
	return b.where
}

func (b *Block) QBE() *qbe.QueryByExample {
	return b.qbe
}

func (b *Block) Current() *record.Record {
	return b.rs.Current()
}

// Get 当前记录的列值，没有当前记录时返回 nil
func (b *Block) Get(column string) any {
	if rec := b.rs.Current(); rec != nil {
		return rec.Get(column)
	}
	return nil
}
