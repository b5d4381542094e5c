package cfg

import (
	"regexp"
	"strconv"
	"strings"
)

// Storage 解码后的配置树，提供按路径取子树和转换为结构体的能力
// 实现了 ref.Convertable，可以作为 ref.TypeOptions.Options 使用
type Storage struct {
	data any
}

func NewStorage(data any) *Storage {
	return &Storage{data: data}
}

func (s *Storage) Data() any {
	if s == nil {
		return nil
	}
	return s.data
}

var indexPattern = regexp.MustCompile(`^(.*)\[(\d+)\]$`)

// Sub 按 "a.b[0].c" 形式的路径返回子树，路径不存在时返回空 Storage
func (s *Storage) Sub(key string) *Storage {
	if s == nil || key == "" {
		return s
	}

	cur := s.data
	for _, part := range strings.Split(key, ".") {
		var indexes []int
		for {
			m := indexPattern.FindStringSubmatch(part)
			if m == nil {
				break
			}
			idx, _ := strconv.Atoi(m[2])
			indexes = append([]int{idx}, indexes...)
			part = m[1]
		}

		if part != "" {
			obj, ok := cur.(map[string]any)
			if !ok {
				return NewStorage(nil)
			}
			cur = lookup(obj, part)
		}

		for _, idx := range indexes {
			arr, ok := cur.([]any)
			if !ok || idx >= len(arr) {
				return NewStorage(nil)
			}
			cur = arr[idx]
		}
	}
	return NewStorage(cur)
}

// ConvertTo 将配置树转换为 object，object 必须是指针
func (s *Storage) ConvertTo(object any) error {
	if s == nil {
		return nil
	}
	return convert(s.data, object)
}

// lookup 精确匹配优先，其次忽略大小写
func lookup(m map[string]any, key string) any {
	if v, ok := m[key]; ok {
		return v
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}
