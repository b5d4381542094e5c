package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hatlonely/blockx/log"
	"github.com/hatlonely/blockx/message"
	"github.com/hatlonely/blockx/ref"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Source 待执行项的来源
type Source int

const (
	// SourceField 字段或浏览器产生的事件
	SourceField Source = iota
	// SourceExternal 外部排队的调用
	SourceExternal
)

func (s Source) String() string {
	if s == SourceExternal {
		return "external"
	}
	return "field"
}

// Func 待执行项的函数体，返回错误或 panic 会清空整个队列
type Func func(ctx context.Context) error

type Item struct {
	Name   string
	Source Source
	Block  BlockID
	Run    Func
}

type StackOptions struct {
	// Name 指标名前缀和 tracer 名称
	Name string `cfg:"name" def:"event_stack"`

	// WatchdogInterval 看门狗检查间隔
	WatchdogInterval time.Duration `cfg:"watchdogInterval" def:"1s"`

	EnableMetrics bool `cfg:"enableMetrics" def:"true"`
	EnableTracing bool `cfg:"enableTracing"`

	Logger *ref.TypeOptions `cfg:"logger"`

	// Registerer 为 nil 时使用 prometheus.DefaultRegisterer
	Registerer prometheus.Registerer `cfg:"-"`
}

// Stack 全局串行的分发器
// 后入队的先执行，同一时刻最多一个待执行项在运行
type Stack struct {
	mu      sync.Mutex
	items   []Item
	running bool

	loop     Loop
	reporter message.Reporter
	logger   log.Logger
	metrics  *stackMetrics
	tracer   trace.Tracer
	name     string

	interval     time.Duration
	watchdogOnce sync.Once
	stop         chan struct{}
	stopOnce     sync.Once
}

func NewStackWithOptions(options *StackOptions, loop Loop, reporter message.Reporter) (*Stack, error) {
	if options == nil {
		options = &StackOptions{}
	}
	if loop == nil {
		return nil, errors.New("loop is required")
	}

	s := &Stack{
		loop:     loop,
		reporter: message.Or(reporter),
		name:     options.Name,
		interval: options.WatchdogInterval,
		stop:     make(chan struct{}),
	}
	if s.name == "" {
		s.name = "event_stack"
	}
	if s.interval <= 0 {
		s.interval = time.Second
	}

	if options.Logger != nil {
		l, err := log.NewLoggerWithOptions(options.Logger)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to create logger")
		}
		s.logger = l.WithGroup("eventStack")
	} else {
		s.logger = log.Or(nil, "eventStack")
	}

	if options.EnableMetrics {
		m, err := newStackMetrics(s.name, options.Registerer)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to create metrics")
		}
		s.metrics = m
	}

	if options.EnableTracing {
		s.tracer = otel.Tracer("event.stack." + s.name)
	}

	return s, nil
}

// Send 压入字段事件并尝试执行
func (s *Stack) Send(name string, block BlockID, fn Func) {
	s.Stack(Item{Name: name, Source: SourceField, Block: block, Run: fn})
}

// Queue 压入外部调用并尝试执行
func (s *Stack) Queue(name string, fn Func) {
	s.Stack(Item{Name: name, Source: SourceExternal, Run: fn})
}

// Stack 压入待执行项并尝试执行
func (s *Stack) Stack(item Item) {
	s.Enqueue(item)
	s.handle()
}

// Enqueue 只压入不执行
func (s *Stack) Enqueue(item Item) {
	if item.Run == nil {
		return
	}
	s.watchdogOnce.Do(s.startWatchdog)

	s.mu.Lock()
	s.items = append(s.items, item)
	n := len(s.items)
	s.mu.Unlock()

	s.setPending(n)
}

// Drain 尝试开始执行，已经在执行时立即返回
func (s *Stack) Drain() {
	s.handle()
}

func (s *Stack) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Stack) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// handle 执行最新的一个待执行项
// 成功后在宿主循环的下一轮继续；失败则清空整个队列
func (s *Stack) handle() {
	s.mu.Lock()
	if s.running || len(s.items) == 0 {
		s.mu.Unlock()
		return
	}
	s.running = true
	item := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	n := len(s.items)
	s.mu.Unlock()

	s.setPending(n)
	err := s.run(item)

	s.mu.Lock()
	if err != nil {
		dropped := len(s.items)
		s.items = nil
		s.running = false
		s.mu.Unlock()

		s.setPending(0)
		s.logger.Error("dispatch failed, backlog dropped", "item", item.Name, "dropped", dropped, "error", err.Error())
		s.reporter.Report(message.GroupEvent, message.CodeDispatcherFailed, item.Name, err.Error())
		if s.metrics != nil {
			s.metrics.failed.Inc()
			s.metrics.dropped.Add(float64(dropped))
		}
		return
	}
	s.running = false
	more := len(s.items) > 0
	s.mu.Unlock()

	if more {
		s.loop.Defer(s.handle)
	}
}

func (s *Stack) run(item Item) (err error) {
	ctx := context.Background()
	if s.tracer != nil {
		var span trace.Span
		ctx, span = s.tracer.Start(ctx, "event.stack."+item.Name, trace.WithAttributes(
			attribute.String("source", item.Source.String()),
			attribute.Int("block", int(item.Block)),
		))
		defer func() {
			if err != nil {
				span.SetStatus(codes.Error, err.Error())
				span.RecordError(err)
			} else {
				span.SetStatus(codes.Ok, "")
			}
			span.End()
		}()
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()

	if s.metrics != nil {
		s.metrics.dispatched.Inc()
	}
	s.logger.Debug("dispatch", "item", item.Name, "source", item.Source.String(), "block", int(item.Block))
	return item.Run(ctx)
}

func (s *Stack) setPending(n int) {
	if s.metrics != nil {
		s.metrics.pending.Set(float64(n))
	}
}

// Check 看门狗的一次检查：未在执行但队列不空时重新开始执行
func (s *Stack) Check() bool {
	s.mu.Lock()
	stuck := !s.running && len(s.items) > 0
	n := len(s.items)
	s.mu.Unlock()

	if !stuck {
		return false
	}
	s.logger.Warn("watchdog restart", "pending", n)
	if s.metrics != nil {
		s.metrics.watchdogRestarts.Inc()
	}
	s.loop.Defer(s.handle)
	return true
}

func (s *Stack) startWatchdog() {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Check()
			case <-s.stop:
				return
			}
		}
	}()
}

// Close 停止看门狗，未执行的项保留
func (s *Stack) Close() error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	return nil
}

func (s *Stack) String() string {
	return fmt.Sprintf("Stack(%s, pending=%d)", s.name, s.Pending())
}
