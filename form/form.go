package form

import (
	"context"
	"path/filepath"

	"github.com/hatlonely/blockx/block"
	"github.com/hatlonely/blockx/cfg"
	"github.com/hatlonely/blockx/datasource"
	"github.com/hatlonely/blockx/event"
	"github.com/hatlonely/blockx/filter"
	"github.com/hatlonely/blockx/log"
	"github.com/hatlonely/blockx/message"
	"github.com/hatlonely/blockx/qbe"
	"github.com/pkg/errors"
)

// Form 由多个块组成的表单
// 所有操作通过 Stack 串行执行，同一个块上的操作由 Transaction 互斥
type Form struct {
	blocks map[string]*Block
	order  []string

	coordinator *block.Coordinator
	transaction *event.Transaction
	stack       *event.Stack
	loop        event.Loop
	reporter    message.Reporter
	locker      *datasource.Locker
	history     *qbe.History
	provider    *cfg.FileProvider
	logger      log.Logger
}

func NewFormWithOptions(options *Options, loop event.Loop, reporter message.Reporter) (*Form, error) {
	if options == nil {
		return nil, errors.New("form options is nil")
	}

	var logger log.Logger
	if options.Logger != nil {
		l, err := log.NewLoggerWithOptions(options.Logger)
		if err != nil {
			return nil, errors.WithMessage(err, "log.NewLoggerWithOptions failed")
		}
		logger = l
	} else {
		logger = log.Default()
	}
	reporter = message.Multi(message.NewLogReporter(logger), reporter)

	stack, err := event.NewStackWithOptions(&options.Stack, loop, reporter)
	if err != nil {
		return nil, errors.WithMessage(err, "event.NewStackWithOptions failed")
	}

	f := &Form{
		blocks:      map[string]*Block{},
		coordinator: block.NewCoordinator(reporter, logger),
		transaction: event.NewTransaction(logger),
		stack:       stack,
		loop:        loop,
		reporter:    reporter,
		logger:      logger.WithGroup("form"),
	}

	if options.Locker != nil {
		if f.locker, err = datasource.NewLockerWithOptions(options.Locker); err != nil {
			_ = f.Close()
			return nil, errors.WithMessage(err, "datasource.NewLockerWithOptions failed")
		}
	}
	if options.History != nil {
		if f.history, err = qbe.NewHistoryWithOptions(options.History); err != nil {
			_ = f.Close()
			return nil, errors.WithMessage(err, "qbe.NewHistoryWithOptions failed")
		}
	}

	for i := range options.Blocks {
		bo := &options.Blocks[i]
		if _, ok := f.blocks[bo.Name]; ok {
			_ = f.Close()
			return nil, errors.Errorf("duplicate block %s", bo.Name)
		}
		ds, err := datasource.NewDataSourceWithOptions(&bo.DataSource)
		if err != nil {
			_ = f.Close()
			return nil, errors.WithMessagef(err, "block %s", bo.Name)
		}
		f.AddBlock(bo.Name, ds, bo)
	}

	for i := range options.Relations {
		f.coordinator.LinkWithOptions(&options.Relations[i])
	}
	return f, nil
}

// AddBlock 使用已创建的数据源添加块，options 只使用其中的 Overlay
func (f *Form) AddBlock(name string, ds datasource.DataSource, options *BlockOptions) *Block {
	b := &Block{
		name:  name,
		where: filter.NewStructure("where"),
	}
	var overlay = options
	if overlay == nil {
		overlay = &BlockOptions{}
	}
	b.rs = datasource.NewResultSet(ds, overlay.Overlay, f.locker, f.logger)
	b.qbe = qbe.New(name, b.rs.Columns(), f.history, f.logger)
	b.id = f.coordinator.Register(b)

	if _, ok := f.blocks[name]; !ok {
		f.order = append(f.order, name)
	}
	f.blocks[name] = b
	return b
}

// Link 登记块之间的关系
func (f *Form) Link(r *block.Relation) bool {
	return f.coordinator.Link(r)
}

// Block 不存在时返回 nil
func (f *Form) Block(name string) *Block {
	return f.blocks[name]
}

// Blocks 按添加的顺序
func (f *Form) Blocks() []*Block {
	blocks := make([]*Block, 0, len(f.order))
	for _, name := range f.order {
		blocks = append(blocks, f.blocks[name])
	}
	return blocks
}

func (f *Form) Coordinator() *block.Coordinator {
	return f.coordinator
}

func (f *Form) Transaction() *event.Transaction {
	return f.transaction
}

func (f *Form) Stack() *event.Stack {
	return f.stack
}

// Watch 配置文件变化时在宿主循环中重新登记关系
func (f *Form) Watch(path string) error {
	provider, err := cfg.NewFileProvider(path)
	if err != nil {
		return err
	}
	dec, err := cfg.DecoderForPath(path)
	if err != nil {
		return err
	}
	provider.OnChange(func(data []byte) error {
		f.stack.Enqueue(event.Item{
			Name:   "reload",
			Source: event.SourceExternal,
			Run: func(ctx context.Context) error {
				return f.reload(dec, data)
			},
		})
		f.loop.Defer(f.stack.Drain)
		return nil
	})
	if err := provider.Watch(); err != nil {
		return err
	}
	f.provider = provider
	f.logger.Info("watching form definition", "path", filepath.Clean(path))
	return nil
}

// reload 只重新登记关系，块和数据源保持不变
func (f *Form) reload(dec cfg.Decoder, data []byte) error {
	var options Options
	if err := cfg.Parse(dec, data, &options); err != nil {
		// 不完整的写入，等待下一次变化
		f.logger.Warn("reload form definition failed", "error", err.Error())
		return nil
	}
	f.coordinator.Reset()
	linked := 0
	for i := range options.Relations {
		if f.coordinator.LinkWithOptions(&options.Relations[i]) {
			linked++
		}
	}
	f.logger.Info("relations reloaded", "relations", linked)
	return nil
}

func (f *Form) Close() error {
	var errs []error
	if f.provider != nil {
		errs = append(errs, f.provider.Close())
	}
	if f.stack != nil {
		errs = append(errs, f.stack.Close())
	}
	for _, b := range f.blocks {
		errs = append(errs, b.rs.DataSource().Close())
	}
	if f.locker != nil {
		errs = append(errs, f.locker.Close())
	}
	if f.history != nil {
		errs = append(errs, f.history.Close())
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
