package uid

import (
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/hatlonely/blockx/ref"
	"github.com/pkg/errors"
)

const Namespace = "github.com/hatlonely/blockx/uid"

func init() {
	ref.MustRegister(Namespace, "UUIDGenerator", NewUUIDGeneratorWithOptions)
}

// Generator 生成字符串 ID，用作行锁持有者、查询历史条目等的标识
type Generator interface {
	Generate() string
}

type UUIDOptions struct {
	Version string `cfg:"version" def:"v4" validate:"omitempty,oneof=v1 v4 v6 v7"`
	// 是否包含连字符，默认不包含
	WithHyphens bool `cfg:"withHyphens"`
}

type UUIDGenerator struct {
	version     string
	withHyphens bool
}

func NewUUIDGeneratorWithOptions(options *UUIDOptions) *UUIDGenerator {
	if options == nil {
		options = &UUIDOptions{}
	}
	version := options.Version
	if version == "" {
		version = "v4"
	}
	return &UUIDGenerator{
		version:     version,
		withHyphens: options.WithHyphens,
	}
}

func (g *UUIDGenerator) Generate() string {
	var u uuid.UUID
	switch g.version {
	case "v1":
		u = uuid.Must(uuid.NewUUID())
	case "v6":
		u = uuid.Must(uuid.NewV6())
	case "v7":
		u = uuid.Must(uuid.NewV7())
	default:
		u = uuid.New()
	}

	if g.withHyphens {
		return u.String()
	}
	return hex.EncodeToString(u[:])
}

// NewGeneratorWithOptions 通过 ref 创建生成器，options 为 nil 时返回 v4 UUIDGenerator
func NewGeneratorWithOptions(options *ref.TypeOptions) (Generator, error) {
	if options == nil {
		return NewUUIDGeneratorWithOptions(nil), nil
	}
	obj, err := ref.NewWithTypeOptions(options)
	if err != nil {
		return nil, errors.WithMessage(err, "ref.NewWithTypeOptions failed")
	}
	g, ok := obj.(Generator)
	if !ok {
		return nil, errors.Errorf("%T is not a Generator", obj)
	}
	return g, nil
}
