package writer

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// FileWriterOptions 文件输出配置
type FileWriterOptions struct {
	// 文件路径，目录不存在时自动创建
	Path string `cfg:"path" validate:"required"`
}

// FileWriter 以追加方式写文件
type FileWriter struct {
	path string
	file *os.File
	mu   sync.Mutex
}

func NewFileWriterWithOptions(options *FileWriterOptions) (*FileWriter, error) {
	if options == nil || options.Path == "" {
		return nil, errors.New("file path is required")
	}

	if err := os.MkdirAll(filepath.Dir(options.Path), 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create directory for %s", options.Path)
	}

	file, err := os.OpenFile(options.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open file %s", options.Path)
	}

	return &FileWriter{path: options.Path, file: file}, nil
}

func (f *FileWriter) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return 0, errors.Errorf("file %s is closed", f.path)
	}
	return f.file.Write(p)
}

func (f *FileWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}
