package cfg

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// Decoder 将原始配置数据解码为配置树
type Decoder interface {
	Decode(data []byte) (any, error)
}

type JsonDecoder struct{}

func (JsonDecoder) Decode(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, errors.Wrap(err, "failed to decode json")
	}
	return v, nil
}

type YamlDecoder struct{}

func (YamlDecoder) Decode(data []byte) (any, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, errors.Wrap(err, "failed to decode yaml")
	}
	return v, nil
}

type TomlDecoder struct{}

func (TomlDecoder) Decode(data []byte) (any, error) {
	var v map[string]any
	if _, err := toml.Decode(string(data), &v); err != nil {
		return nil, errors.Wrap(err, "failed to decode toml")
	}
	return normalize(v), nil
}

// IniDecoder 将 section 映射为子对象，section 名中的 "." 表示嵌套
type IniDecoder struct{}

func (IniDecoder) Decode(data []byte) (any, error) {
	file, err := ini.Load(data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode ini")
	}

	root := map[string]any{}
	for _, section := range file.Sections() {
		target := root
		if section.Name() != ini.DefaultSection {
			for _, part := range strings.Split(section.Name(), ".") {
				child, ok := target[part].(map[string]any)
				if !ok {
					child = map[string]any{}
					target[part] = child
				}
				target = child
			}
		}
		for _, key := range section.Keys() {
			target[key.Name()] = key.Value()
		}
	}
	return root, nil
}

// normalize 将 toml 解码出的 []map[string]any 等具体类型统一为 []any
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = normalize(item)
		}
		return t
	case []map[string]any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalize(item)
		}
		return out
	case []any:
		for i, item := range t {
			t[i] = normalize(item)
		}
		return t
	}
	return v
}

// DecoderForPath 根据文件扩展名选择解码器
func DecoderForPath(path string) (Decoder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JsonDecoder{}, nil
	case ".yaml", ".yml":
		return YamlDecoder{}, nil
	case ".toml":
		return TomlDecoder{}, nil
	case ".ini":
		return IniDecoder{}, nil
	}
	return nil, errors.Errorf("unsupported config format: %s", path)
}
