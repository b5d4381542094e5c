package event

import "sync"

// Loop 宿主事件循环，Defer 将 f 推迟到下一轮执行
type Loop interface {
	Defer(f func())
}

// GoroutineLoop 在单个 goroutine 中按顺序执行推迟的函数
type GoroutineLoop struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

func NewGoroutineLoop() *GoroutineLoop {
	l := &GoroutineLoop{done: make(chan struct{})}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

func (l *GoroutineLoop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		f := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()

		f()
	}
}

// Defer 关闭后调用被忽略
func (l *GoroutineLoop) Defer(f func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.queue = append(l.queue, f)
	l.cond.Signal()
}

// Close 执行完已推迟的函数后退出
func (l *GoroutineLoop) Close() error {
	l.mu.Lock()
	l.closed = true
	l.cond.Broadcast()
	l.mu.Unlock()
	<-l.done
	return nil
}

// ManualLoop 只有显式调用 Step 或 RunPending 时才执行，测试使用
type ManualLoop struct {
	mu      sync.Mutex
	pending []func()
}

func NewManualLoop() *ManualLoop {
	return &ManualLoop{}
}

func (l *ManualLoop) Defer(f func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, f)
}

func (l *ManualLoop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Step 执行最早推迟的一个函数
func (l *ManualLoop) Step() bool {
	l.mu.Lock()
	if len(l.pending) == 0 {
		l.mu.Unlock()
		return false
	}
	f := l.pending[0]
	l.pending = l.pending[1:]
	l.mu.Unlock()

	f()
	return true
}

// RunPending 执行直到没有推迟的函数，返回执行的数量
func (l *ManualLoop) RunPending() int {
	n := 0
	for l.Step() {
		n++
	}
	return n
}
