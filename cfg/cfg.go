package cfg

import (
	"os"

	"github.com/pkg/errors"
)

// Load 读取配置文件到 object：按扩展名解码、转换、填充默认值并校验
func Load(path string, object any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read config %s", path)
	}
	dec, err := DecoderForPath(path)
	if err != nil {
		return err
	}
	return Parse(dec, data, object)
}

// Parse 使用指定解码器解析 data 到 object
func Parse(dec Decoder, data []byte, object any) error {
	tree, err := dec.Decode(data)
	if err != nil {
		return err
	}
	return Bind(NewStorage(tree), object)
}

// Bind 将配置树转换为 object，然后填充默认值并校验
func Bind(storage *Storage, object any) error {
	if err := storage.ConvertTo(object); err != nil {
		return errors.WithMessage(err, "failed to convert config")
	}
	if err := SetDefaults(object); err != nil {
		return errors.WithMessage(err, "failed to set defaults")
	}
	if err := Validate(object); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}
