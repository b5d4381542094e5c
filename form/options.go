package form

import (
	"github.com/hatlonely/blockx/block"
	"github.com/hatlonely/blockx/cfg"
	"github.com/hatlonely/blockx/datasource"
	"github.com/hatlonely/blockx/event"
	"github.com/hatlonely/blockx/message"
	"github.com/hatlonely/blockx/qbe"
	"github.com/hatlonely/blockx/record"
	"github.com/hatlonely/blockx/ref"
	"github.com/pkg/errors"
)

type BlockOptions struct {
	Name       string          `cfg:"name" validate:"required"`
	DataSource ref.TypeOptions `cfg:"dataSource"`
	// Overlay 只在本地保存的列
	Overlay []record.Column `cfg:"overlay" validate:"dive"`
}

type Options struct {
	Blocks    []BlockOptions          `cfg:"blocks" validate:"required,dive"`
	Relations []block.RelationOptions `cfg:"relations"`

	Stack event.StackOptions `cfg:"stack"`
	// Locker 为空时只校验后端的值，不在会话之间加锁
	Locker *datasource.LockerOptions `cfg:"locker"`
	// History 为空时上一次查询只保存在内存中
	History *qbe.HistoryOptions `cfg:"history"`
	Logger  *ref.TypeOptions    `cfg:"logger"`
}

// LoadForm 从配置文件创建表单
func LoadForm(path string, loop event.Loop, reporter message.Reporter) (*Form, error) {
	var options Options
	if err := cfg.Load(path, &options); err != nil {
		return nil, errors.WithMessage(err, "cfg.Load failed")
	}
	return NewFormWithOptions(&options, loop, reporter)
}
