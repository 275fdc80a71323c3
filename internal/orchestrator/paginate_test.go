package orchestrator

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitPages(t *testing.T) {
	t.Parallel()

	t.Run("short text is a single page", func(t *testing.T) {
		t.Parallel()

		first, pages := splitPages("hello", 100)
		if first != "hello" {
			t.Errorf("first = %q, want %q", first, "hello")
		}
		if pages != nil {
			t.Errorf("pages = %v, want nil", pages)
		}
	})

	t.Run("zero limit disables splitting", func(t *testing.T) {
		t.Parallel()

		text := strings.Repeat("x", 5000)
		first, pages := splitPages(text, 0)
		if first != text || pages != nil {
			t.Error("zero limit should return the text unchanged")
		}
	})

	t.Run("splits at line boundaries", func(t *testing.T) {
		t.Parallel()

		first, pages := splitPages("aaaa\nbbbb\ncccc", 10)
		if first != "aaaa\nbbbb" {
			t.Errorf("first = %q, want %q", first, "aaaa\nbbbb")
		}
		if len(pages) != 1 || pages[0] != "cccc" {
			t.Errorf("pages = %q, want [%q]", pages, "cccc")
		}
	})
}

func TestSplitText_PreservesCodeFence(t *testing.T) {
	t.Parallel()

	text := "intro\n```go\nx := 1\ny := 2\n```\ntail"
	chunks := splitText(text, 20)

	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2: %q", len(chunks), chunks)
	}
	// The fenced block stays whole even past the limit.
	if got := strings.Count(chunks[0], "```"); got != 2 {
		t.Errorf("first chunk has %d fences, want 2:\n%s", got, chunks[0])
	}
	if chunks[1] != "tail" {
		t.Errorf("second chunk = %q, want %q", chunks[1], "tail")
	}
}

func TestSplitText_ForceSplitsLongLine(t *testing.T) {
	t.Parallel()

	chunks := splitText(strings.Repeat("x", 25), 10)

	want := []string{"xxxxxxxxxx", "xxxxxxxxxx", "xxxxx"}
	if len(chunks) != len(want) {
		t.Fatalf("chunks = %d, want %d: %q", len(chunks), len(want), chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, chunks[i], want[i])
		}
	}
}

func TestForceSplit_RuneSafe(t *testing.T) {
	t.Parallel()

	line := strings.Repeat("é", 10) // 2 bytes per rune
	parts := forceSplit(line, 5)

	for i, part := range parts {
		if len(part) > 5 {
			t.Errorf("part %d is %d bytes, want <= 5", i, len(part))
		}
		if !utf8.ValidString(part) {
			t.Errorf("part %d cuts through a rune: %q", i, part)
		}
	}
	if got := strings.Join(parts, ""); got != line {
		t.Errorf("reassembled = %q, want %q", got, line)
	}
}
