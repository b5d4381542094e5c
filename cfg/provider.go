package cfg

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// FileProvider 读取配置文件并在文件写入后通知回调
type FileProvider struct {
	path     string
	watcher  *fsnotify.Watcher
	mu       sync.RWMutex
	onChange []func(data []byte) error
	once     sync.Once
}

func NewFileProvider(path string) (*FileProvider, error) {
	if path == "" {
		return nil, errors.New("file path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "invalid file path")
	}
	return &FileProvider{path: abs}, nil
}

func (p *FileProvider) Path() string {
	return p.path
}

func (p *FileProvider) Load() ([]byte, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read file")
	}
	return data, nil
}

// OnChange 仅注册回调，Watch 之后才会触发
func (p *FileProvider) OnChange(fn func(data []byte) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = append(p.onChange, fn)
}

// Watch 监听文件所在目录，文件被写入或重建时读取新内容并调用回调
func (p *FileProvider) Watch() error {
	var initErr error
	p.once.Do(func() {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			initErr = errors.Wrap(err, "failed to create file watcher")
			return
		}
		if err := watcher.Add(filepath.Dir(p.path)); err != nil {
			watcher.Close()
			initErr = errors.Wrap(err, "failed to add directory to watcher")
			return
		}

		p.mu.Lock()
		p.watcher = watcher
		p.mu.Unlock()

		go p.loop(watcher)
	})
	return initErr
}

func (p *FileProvider) loop(watcher *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != p.path || !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			data, err := os.ReadFile(p.path)
			if err != nil {
				continue
			}

			p.mu.RLock()
			handlers := make([]func([]byte) error, len(p.onChange))
			copy(handlers, p.onChange)
			p.mu.RUnlock()

			for _, handler := range handlers {
				_ = handler(data)
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (p *FileProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watcher == nil {
		return nil
	}
	err := p.watcher.Close()
	p.watcher = nil
	return err
}
