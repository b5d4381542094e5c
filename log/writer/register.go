package writer

import (
	"github.com/hatlonely/blockx/ref"
	"github.com/pkg/errors"
)

const Namespace = "github.com/hatlonely/blockx/log/writer"

func init() {
	ref.MustRegister(Namespace, "ConsoleWriter", NewConsoleWriterWithOptions)
	ref.MustRegister(Namespace, "FileWriter", NewFileWriterWithOptions)
	ref.MustRegister(Namespace, "MultiWriter", NewMultiWriterWithOptions)
}

// NewWriterWithOptions 通过 ref 创建输出器
func NewWriterWithOptions(options *ref.TypeOptions) (Writer, error) {
	obj, err := ref.NewWithTypeOptions(options)
	if err != nil {
		return nil, errors.WithMessage(err, "ref.New failed")
	}
	w, ok := obj.(Writer)
	if !ok {
		return nil, errors.Errorf("%T does not implement Writer", obj)
	}
	return w, nil
}
