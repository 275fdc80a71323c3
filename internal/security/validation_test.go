package security

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateBodySize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		size    int
		max     int
		wantErr error
	}{
		{name: "within limit", size: 100, max: 1024, wantErr: nil},
		{name: "at limit", size: 1024, max: 1024, wantErr: nil},
		{name: "over limit", size: 1025, max: 1024, wantErr: ErrBodyTooLarge},
		{name: "zero max uses default", size: 100, max: 0, wantErr: nil},
		{name: "empty data", size: 0, max: 100, wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			data := make([]byte, tt.size)
			err := ValidateBodySize(data, tt.max)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateBodySize(size=%d, max=%d) = %v, want %v",
					tt.size, tt.max, err, tt.wantErr)
			}
		})
	}
}

func TestValidateJSONDepth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		json    string
		max     int
		wantErr error
	}{
		{
			name:    "flat object",
			json:    `{"key": "value"}`,
			max:     2,
			wantErr: nil,
		},
		{
			name:    "nested within limit",
			json:    `{"a": {"b": {"c": 1}}}`,
			max:     3,
			wantErr: nil,
		},
		{
			name:    "nested over limit",
			json:    `{"a": {"b": {"c": {"d": 1}}}}`,
			max:     3,
			wantErr: ErrJSONTooDeep,
		},
		{
			name:    "array nesting",
			json:    `[[[1]]]`,
			max:     3,
			wantErr: nil,
		},
		{
			name:    "array over limit",
			json:    `[[[[1]]]]`,
			max:     3,
			wantErr: ErrJSONTooDeep,
		},
		{
			name:    "empty data",
			json:    "",
			max:     1,
			wantErr: nil,
		},
		{
			name:    "simple string",
			json:    `"hello"`,
			max:     1,
			wantErr: nil,
		},
		{
			name:    "zero max uses default",
			json:    `{"key": "value"}`,
			max:     0,
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateJSONDepth([]byte(tt.json), tt.max)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateJSONDepth(%q, %d) = %v, want %v",
					tt.json, tt.max, err, tt.wantErr)
			}
		})
	}
}

func TestValidateJSONDepth_DeepNesting(t *testing.T) {
	t.Parallel()

	// Build a deeply nested JSON: {"a":{"a":{"a":...}}}
	depth := 50
	var sb strings.Builder
	for range depth {
		sb.WriteString(`{"a":`)
	}
	sb.WriteString("1")
	for range depth {
		sb.WriteString("}")
	}

	err := ValidateJSONDepth([]byte(sb.String()), 32)
	if !errors.Is(err, ErrJSONTooDeep) {
		t.Errorf("expected ErrJSONTooDeep for depth %d, got %v", depth, err)
	}
}

func TestValidateText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		max     int
		wantErr error
	}{
		{name: "plain text", text: "hello there", max: 100, wantErr: nil},
		{name: "at limit", text: strings.Repeat("a", 100), max: 100, wantErr: nil},
		{name: "over limit", text: strings.Repeat("a", 101), max: 100, wantErr: ErrTextTooLong},
		{name: "empty", text: "", max: 100, wantErr: ErrEmptyMessage},
		{name: "whitespace only", text: "  \n\t ", max: 100, wantErr: ErrEmptyMessage},
		{name: "invalid utf8", text: "abc\xff\xfe", max: 100, wantErr: ErrInvalidText},
		{name: "nul byte", text: "abc\x00def", max: 100, wantErr: ErrInvalidText},
		{name: "multibyte runes counted once", text: strings.Repeat("日", 100), max: 100, wantErr: nil},
		{name: "zero max uses default", text: "hello", max: 0, wantErr: nil},
		{name: "newlines allowed", text: "line one\nline two", max: 100, wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateText(tt.text, tt.max)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateText(%q, %d) = %v, want %v", tt.text, tt.max, err, tt.wantErr)
			}
		})
	}
}

func TestValidateImageCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		n       int
		max     int
		wantErr error
	}{
		{name: "none", n: 0, max: 4, wantErr: nil},
		{name: "at limit", n: 4, max: 4, wantErr: nil},
		{name: "over limit", n: 5, max: 4, wantErr: ErrTooManyImages},
		{name: "zero max uses default", n: DefaultMaxImages, max: 0, wantErr: nil},
		{name: "over default", n: DefaultMaxImages + 1, max: 0, wantErr: ErrTooManyImages},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateImageCount(tt.n, tt.max)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateImageCount(%d, %d) = %v, want %v", tt.n, tt.max, err, tt.wantErr)
			}
		})
	}
}

func BenchmarkValidateJSONDepth(b *testing.B) {
	// Moderately nested JSON.
	data := []byte(`{"users": [{"name": "Alice", "profile": {"age": 30, "address": {"city": "NYC"}}}]}`)
	b.ResetTimer()
	for range b.N {
		_ = ValidateJSONDepth(data, 32)
	}
}

func BenchmarkValidateText(b *testing.B) {
	text := strings.Repeat("what are the odds on tonight's game ", 40)
	b.ResetTimer()
	for range b.N {
		_ = ValidateText(text, DefaultMaxTextRunes)
	}
}
