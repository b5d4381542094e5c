package block

import (
	"github.com/pkg/errors"
)

var (
	ErrInvalidKey       = errors.New("invalid key")
	ErrSelfReference    = errors.New("self-referencing relation")
	ErrFieldCountDiffer = errors.New("master and detail keys differ in length")
)

// Key 某个块上的一组有序字段
type Key struct {
	block  string
	fields []string
}

// NewKey block 和 fields 都不能为空
func NewKey(block string, fields ...string) (*Key, error) {
	if block == "" {
		return nil, errors.Wrap(ErrInvalidKey, "empty block")
	}
	if len(fields) == 0 {
		return nil, errors.Wrapf(ErrInvalidKey, "no fields for block %s", block)
	}
	for _, f := range fields {
		if f == "" {
			return nil, errors.Wrapf(ErrInvalidKey, "empty field for block %s", block)
		}
	}
	return &Key{block: block, fields: append([]string(nil), fields...)}, nil
}

func MustNewKey(block string, fields ...string) *Key {
	k, err := NewKey(block, fields...)
	if err != nil {
		panic(err)
	}
	return k
}

func (k *Key) Block() string {
	return k.block
}

func (k *Key) Fields() []string {
	return append([]string(nil), k.fields...)
}

// Equal 同一个块上按相同顺序的相同字段
func (k *Key) Equal(o *Key) bool {
	if k == nil || o == nil {
		return k == o
	}
	if k.block != o.block || len(k.fields) != len(o.fields) {
		return false
	}
	for i := range k.fields {
		if k.fields[i] != o.fields[i] {
			return false
		}
	}
	return true
}

func (k *Key) Contains(field string) bool {
	for _, f := range k.fields {
		if f == field {
			return true
		}
	}
	return false
}

// Relation 主从关系，主块的 Key 与从块的 Key 按位置对应
type Relation struct {
	name        string
	master      *Key
	detail      *Key
	allowOrphan bool
}

// NewRelation name 为空时取 "master_detail"
func NewRelation(name string, master *Key, detail *Key, allowOrphan bool) (*Relation, error) {
	if master == nil || detail == nil {
		return nil, errors.Wrap(ErrInvalidKey, "nil key")
	}
	if master.block == detail.block {
		return nil, errors.Wrapf(ErrSelfReference, "block %s", master.block)
	}
	if len(master.fields) != len(detail.fields) {
		return nil, errors.Wrapf(ErrFieldCountDiffer, "%s(%d) -> %s(%d)", master.block, len(master.fields), detail.block, len(detail.fields))
	}
	if name == "" {
		name = master.block + "_" + detail.block
	}
	return &Relation{name: name, master: master, detail: detail, allowOrphan: allowOrphan}, nil
}

func (r *Relation) Name() string {
	return r.name
}

func (r *Relation) Master() *Key {
	return r.master
}

func (r *Relation) Detail() *Key {
	return r.detail
}

// AllowOrphan 从块可以在主块没有当前记录时查询
func (r *Relation) AllowOrphan() bool {
	return r.allowOrphan
}

// DetailField 主块字段对应的从块字段
func (r *Relation) DetailField(masterField string) (string, bool) {
	for i, f := range r.master.fields {
		if f == masterField {
			return r.detail.fields[i], true
		}
	}
	return "", false
}

// KeyOptions 配置文件中的 Key
type KeyOptions struct {
	Block  string   `cfg:"block" validate:"required"`
	Fields []string `cfg:"fields" validate:"required,min=1"`
}

type RelationOptions struct {
	Name        string     `cfg:"name"`
	Master      KeyOptions `cfg:"master"`
	Detail      KeyOptions `cfg:"detail"`
	AllowOrphan bool       `cfg:"allowOrphan"`
}

func NewRelationWithOptions(options *RelationOptions) (*Relation, error) {
	if options == nil {
		return nil, errors.Wrap(ErrInvalidKey, "nil options")
	}
	master, err := NewKey(options.Master.Block, options.Master.Fields...)
	if err != nil {
		return nil, errors.WithMessage(err, "master")
	}
	detail, err := NewKey(options.Detail.Block, options.Detail.Fields...)
	if err != nil {
		return nil, errors.WithMessage(err, "detail")
	}
	return NewRelation(options.Name, master, detail, options.AllowOrphan)
}
