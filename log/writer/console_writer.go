package writer

import (
	"io"
	"os"
)

// ConsoleWriterOptions 控制台输出配置
type ConsoleWriterOptions struct {
	// 输出目标：stdout, stderr
	Target string `cfg:"target" def:"stdout" validate:"omitempty,oneof=stdout stderr"`
}

// ConsoleWriter 控制台输出器，Close 不会关闭标准输出
type ConsoleWriter struct {
	w io.Writer
}

func NewConsoleWriterWithOptions(options *ConsoleWriterOptions) (*ConsoleWriter, error) {
	w := io.Writer(os.Stdout)
	if options != nil && options.Target == "stderr" {
		w = os.Stderr
	}
	return &ConsoleWriter{w: w}, nil
}

func (c *ConsoleWriter) Write(p []byte) (int, error) {
	return c.w.Write(p)
}

func (c *ConsoleWriter) Close() error {
	return nil
}
