package uid

import (
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/hatlonely/blockx/ref"
)

func TestUUIDGenerator(t *testing.T) {
	tests := []struct {
		name        string
		options     *UUIDOptions
		wantVersion uuid.Version
		pattern     string
	}{
		{
			name:        "nil options should use v4 without hyphens",
			options:     nil,
			wantVersion: 4,
			pattern:     `^[0-9a-f]{32}$`,
		},
		{
			name:        "v7 with hyphens",
			options:     &UUIDOptions{Version: "v7", WithHyphens: true},
			wantVersion: 7,
			pattern:     `^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`,
		},
		{
			name:        "v1 version",
			options:     &UUIDOptions{Version: "v1"},
			wantVersion: 1,
			pattern:     `^[0-9a-f]{32}$`,
		},
		{
			name:        "v6 version",
			options:     &UUIDOptions{Version: "v6"},
			wantVersion: 6,
			pattern:     `^[0-9a-f]{32}$`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewUUIDGeneratorWithOptions(tt.options)
			id := g.Generate()
			if !regexp.MustCompile(tt.pattern).MatchString(id) {
				t.Fatalf("unexpected format: %s", id)
			}
			u, err := uuid.Parse(id)
			if err != nil {
				t.Fatalf("uuid.Parse failed: %v", err)
			}
			if u.Version() != tt.wantVersion {
				t.Errorf("version = %v, want %v", u.Version(), tt.wantVersion)
			}
		})
	}
}

func TestUUIDGeneratorUnique(t *testing.T) {
	g := NewUUIDGeneratorWithOptions(nil)
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := g.Generate()
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate id: %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestNewGeneratorWithOptions(t *testing.T) {
	g, err := NewGeneratorWithOptions(&ref.TypeOptions{
		Namespace: Namespace,
		Type:      "UUIDGenerator",
		Options:   &UUIDOptions{Version: "v7"},
	})
	if err != nil {
		t.Fatalf("NewGeneratorWithOptions failed: %v", err)
	}
	if _, err := uuid.Parse(g.Generate()); err != nil {
		t.Errorf("invalid uuid: %v", err)
	}

	if _, err := NewGeneratorWithOptions(&ref.TypeOptions{Namespace: Namespace, Type: "Unknown"}); err == nil {
		t.Error("expected error for unknown type")
	}
}
