package logger

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/hatlonely/blockx/log/writer"
	"github.com/hatlonely/blockx/ref"
	"github.com/pkg/errors"
)

// SLogOptions 日志初始化选项
type SLogOptions struct {
	// 日志级别：debug, info, warn, error
	Level string `cfg:"level" def:"info" validate:"omitempty,oneof=debug info warn warning error"`

	// 输出格式：text, json
	Format string `cfg:"format" def:"text" validate:"omitempty,oneof=text json"`

	// 输出目标，为空时输出到标准输出
	Output *ref.TypeOptions `cfg:"output"`

	// 时间格式，为空时使用 RFC3339
	TimeFormat string `cfg:"timeFormat"`

	// 是否显示调用者信息
	AddSource bool `cfg:"addSource"`

	// 附加在每条日志上的字段
	Fields map[string]any `cfg:"fields"`
}

type SLog struct {
	slogger *slog.Logger
	closer  io.Closer
}

func NewSLogWithOptions(options *SLogOptions) (*SLog, error) {
	if options == nil {
		return nil, errors.New("options cannot be nil")
	}

	var w writer.Writer
	if options.Output != nil && options.Output.Type != "" {
		var err error
		if w, err = writer.NewWriterWithOptions(options.Output); err != nil {
			return nil, errors.WithMessage(err, "failed to create writer")
		}
	} else {
		w, _ = writer.NewConsoleWriterWithOptions(nil)
	}

	return NewSLogWithWriter(w, options)
}

// NewSLogWithWriter 使用已有的输出器创建日志器，options.Output 被忽略
func NewSLogWithWriter(w io.Writer, options *SLogOptions) (*SLog, error) {
	if options == nil {
		options = &SLogOptions{}
	}

	level, err := parseLevel(options.Level)
	if err != nil {
		return nil, errors.WithMessage(err, "invalid log level")
	}

	handlerOptions := &slog.HandlerOptions{
		Level:     level,
		AddSource: options.AddSource,
	}
	if options.TimeFormat != "" && options.TimeFormat != time.RFC3339 {
		timeFormat := options.TimeFormat
		handlerOptions.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String(a.Key, a.Value.Time().Format(timeFormat))
			}
			return a
		}
	}

	var handler slog.Handler
	switch strings.ToLower(options.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, handlerOptions)
	case "text", "":
		handler = slog.NewTextHandler(w, handlerOptions)
	default:
		return nil, errors.Errorf("unsupported format: %s", options.Format)
	}

	slogger := slog.New(handler)
	if len(options.Fields) > 0 {
		args := make([]any, 0, len(options.Fields)*2)
		for k, v := range options.Fields {
			args = append(args, k, v)
		}
		slogger = slogger.With(args...)
	}

	s := &SLog{slogger: slogger}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s, nil
}

// NewDiscard 返回丢弃所有输出的日志器
func NewDiscard() *SLog {
	return &SLog{slogger: slog.New(slog.DiscardHandler)}
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errors.Errorf("unknown level: %s", level)
	}
}

func (l *SLog) Debug(msg string, args ...any) { l.slogger.Debug(msg, args...) }
func (l *SLog) Info(msg string, args ...any)  { l.slogger.Info(msg, args...) }
func (l *SLog) Warn(msg string, args ...any)  { l.slogger.Warn(msg, args...) }
func (l *SLog) Error(msg string, args ...any) { l.slogger.Error(msg, args...) }

func (l *SLog) DebugContext(ctx context.Context, msg string, args ...any) {
	l.slogger.DebugContext(ctx, msg, args...)
}

func (l *SLog) InfoContext(ctx context.Context, msg string, args ...any) {
	l.slogger.InfoContext(ctx, msg, args...)
}

func (l *SLog) WarnContext(ctx context.Context, msg string, args ...any) {
	l.slogger.WarnContext(ctx, msg, args...)
}

func (l *SLog) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.slogger.ErrorContext(ctx, msg, args...)
}

func (l *SLog) With(args ...any) Logger {
	return &SLog{slogger: l.slogger.With(args...), closer: l.closer}
}

func (l *SLog) WithGroup(name string) Logger {
	return &SLog{slogger: l.slogger.WithGroup(name), closer: l.closer}
}

// Close 关闭底层输出器
func (l *SLog) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
