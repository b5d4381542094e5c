package log

import (
	"github.com/hatlonely/blockx/log/logger"
	"github.com/hatlonely/blockx/ref"
	"github.com/pkg/errors"
)

type Logger = logger.Logger

type Options = logger.SLogOptions

var defaultLogger logger.Logger

func init() {
	ref.MustRegister("github.com/hatlonely/blockx/log/logger", "SLog", logger.NewSLogWithOptions)

	// 默认向终端输出 text 格式日志
	l, err := logger.NewSLogWithOptions(&logger.SLogOptions{Level: "info", Format: "text"})
	if err != nil {
		panic("failed to initialize default logger: " + err.Error())
	}
	defaultLogger = l
}

func Default() Logger {
	return defaultLogger
}

// SetDefault 替换默认日志器，nil 被忽略
func SetDefault(l Logger) {
	if l != nil {
		defaultLogger = l
	}
}

func NewLogWithOptions(options *Options) (Logger, error) {
	return logger.NewSLogWithOptions(options)
}

// NewLoggerWithOptions 通过 ref 创建任意实现了 Logger 的日志器
// options 为 nil 时返回默认日志器
func NewLoggerWithOptions(options *ref.TypeOptions) (Logger, error) {
	if options == nil {
		return Default(), nil
	}
	obj, err := ref.NewWithTypeOptions(options)
	if err != nil {
		return nil, errors.WithMessage(err, "ref.New failed")
	}
	l, ok := obj.(Logger)
	if !ok {
		return nil, errors.Errorf("%T does not implement Logger", obj)
	}
	return l, nil
}

// Or 返回 l，l 为 nil 时返回默认日志器的 group 子日志器
func Or(l Logger, group string) Logger {
	if l != nil {
		return l
	}
	return Default().WithGroup(group)
}
