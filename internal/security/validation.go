package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Validation limits.
const (
	DefaultMaxBodySize  = 1 << 20 // 1 MiB
	DefaultMaxJSONDepth = 32      // reasonable nesting limit
	DefaultMaxTextRunes = 8000
	DefaultMaxImages    = 4
)

// Validation errors.
var (
	ErrBodyTooLarge  = errors.New("request body exceeds maximum size")
	ErrJSONTooDeep   = errors.New("JSON nesting exceeds maximum depth")
	ErrInvalidJSON   = errors.New("invalid JSON")
	ErrEmptyMessage  = errors.New("message text is empty")
	ErrTextTooLong   = errors.New("message text exceeds maximum length")
	ErrInvalidText   = errors.New("message text is not valid UTF-8")
	ErrTooManyImages = errors.New("too many image attachments")
)

// ValidateBodySize checks that data does not exceed limit bytes.
// If limit is <= 0, DefaultMaxBodySize is used.
func ValidateBodySize(data []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxBodySize
	}
	if len(data) > limit {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrBodyTooLarge, len(data), limit)
	}
	return nil
}

// ValidateJSONDepth checks that the JSON in data does not nest deeper
// than limit levels. This protects against JSON bombs that could exhaust
// stack or memory. If limit is <= 0, DefaultMaxJSONDepth is used.
func ValidateJSONDepth(data []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxJSONDepth
	}
	if len(data) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}

		switch tok {
		case json.Delim('{'), json.Delim('['):
			depth++
			if depth > limit {
				return fmt.Errorf("%w: depth %d (max %d)", ErrJSONTooDeep, depth, limit)
			}
		case json.Delim('}'), json.Delim(']'):
			depth--
		}
	}
}

// ValidateText checks inbound message text: it must be non-blank,
// valid UTF-8, free of NUL bytes, and within maxRunes runes.
// If maxRunes is <= 0, DefaultMaxTextRunes is used.
func ValidateText(text string, maxRunes int) error {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxTextRunes
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if !utf8.ValidString(text) || strings.ContainsRune(text, 0) {
		return ErrInvalidText
	}
	if n := utf8.RuneCountInString(text); n > maxRunes {
		return fmt.Errorf("%w: %d runes (max %d)", ErrTextTooLong, n, maxRunes)
	}
	return nil
}

// ValidateImageCount checks the number of image attachments.
// If max is <= 0, DefaultMaxImages is used.
func ValidateImageCount(n, max int) error {
	if max <= 0 {
		max = DefaultMaxImages
	}
	if n > max {
		return fmt.Errorf("%w: %d (max %d)", ErrTooManyImages, n, max)
	}
	return nil
}
