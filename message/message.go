package message

import (
	"fmt"
	"sync"

	"github.com/hatlonely/blockx/log"
)

// 消息分组与代码，文本由上层的消息目录决定
const (
	GroupBlock    = "block"
	GroupRelation = "relation"
	GroupEvent    = "event"
	GroupQuery    = "query"
	GroupRecord   = "record"

	CodeUnknownBlock     = "unknownBlock"
	CodeSelfReference    = "selfReference"
	CodeInvalidKey       = "invalidKey"
	CodeBusy             = "busy"
	CodeQueryNotAllowed  = "queryNotAllowed"
	CodeDispatcherFailed = "dispatcherFailed"
	CodeInvalidValue     = "invalidValue"
	CodeLockFailed       = "lockFailed"
	CodePendingChanges   = "pendingChanges"
	CodeDetailExists     = "detailExists"
	CodeDuplicateName    = "duplicateName"
)

// Reporter 接收非致命的诊断信息
type Reporter interface {
	Report(group string, code string, args ...any)
}

// ReporterFunc 函数形式的 Reporter
type ReporterFunc func(group string, code string, args ...any)

func (f ReporterFunc) Report(group string, code string, args ...any) {
	f(group, code, args...)
}

// LogReporter 将消息写入日志
type LogReporter struct {
	logger log.Logger
}

func NewLogReporter(logger log.Logger) *LogReporter {
	return &LogReporter{logger: log.Or(logger, "message")}
}

func (r *LogReporter) Report(group string, code string, args ...any) {
	r.logger.Warn("report", "group", group, "code", code, "args", fmt.Sprint(args...))
}

// Message 一条已上报的消息
type Message struct {
	Group string
	Code  string
	Args  []any
}

// Recorder 记录所有上报的消息，测试和需要回放消息的界面层使用
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Report(group string, code string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Group: group, Code: code, Args: args})
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Count 统计指定 code 的消息数量
func (r *Recorder) Count(code string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages {
		if m.Code == code {
			n++
		}
	}
	return n
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
}

// Multi 依次转发给多个 Reporter，nil 被忽略
func Multi(reporters ...Reporter) Reporter {
	return ReporterFunc(func(group string, code string, args ...any) {
		for _, r := range reporters {
			if r != nil {
				r.Report(group, code, args...)
			}
		}
	})
}

// Or 返回 r，r 为 nil 时返回写日志的 Reporter
func Or(r Reporter) Reporter {
	if r != nil {
		return r
	}
	return NewLogReporter(nil)
}
