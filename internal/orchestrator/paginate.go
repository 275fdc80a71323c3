package orchestrator

import (
	"strings"
	"unicode/utf8"
)

// splitPages breaks reply text into display pages of at most limit bytes
// each, splitting at line boundaries and keeping fenced code blocks
// (``` ... ```) intact when they still have a chance to fit. The first
// page is returned separately from any overflow pages.
func splitPages(text string, limit int) (string, []string) {
	if limit <= 0 || len(text) <= limit {
		return text, nil
	}
	pages := splitText(text, limit)
	if len(pages) == 0 {
		return "", nil
	}
	return pages[0], pages[1:]
}

// splitText breaks text into chunks respecting limit, preserving fenced
// code blocks at line granularity.
func splitText(text string, limit int) []string {
	lines := strings.Split(text, "\n")

	var chunks []string
	var current strings.Builder

	inCodeBlock := false

	for _, line := range lines {
		lineWithNewline := line + "\n"

		isFence := strings.HasPrefix(strings.TrimSpace(line), "```")

		// Track fenced code block boundaries. The flag is updated after
		// the overflow check so the closing fence still counts as
		// "inside" the code block.
		wasInCodeBlock := inCodeBlock
		if isFence {
			inCodeBlock = !inCodeBlock
		}

		// If adding this line would exceed the limit...
		if current.Len()+len(lineWithNewline) > limit {
			// Keep accumulating inside a code block (including the
			// closing fence line) while the block still has a chance to
			// fit (< 2x limit as a safety valve).
			stillInBlock := wasInCodeBlock || (isFence && !inCodeBlock)
			if stillInBlock && current.Len() < limit*2 {
				current.WriteString(lineWithNewline)
				continue
			}

			// Flush the current chunk if non-empty.
			if current.Len() > 0 {
				chunks = append(chunks, strings.TrimRight(current.String(), "\n"))
				current.Reset()
			}

			// If a single line exceeds the limit, force-split it.
			if len(lineWithNewline) > limit {
				chunks = append(chunks, forceSplit(line, limit)...)
				continue
			}
		}

		current.WriteString(lineWithNewline)
	}

	if current.Len() > 0 {
		chunks = append(chunks, strings.TrimRight(current.String(), "\n"))
	}

	return chunks
}

// forceSplit breaks a single long line into chunks of at most maxLen
// bytes without cutting through a multi-byte rune.
func forceSplit(line string, maxLen int) []string {
	var parts []string
	for len(line) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		if cut == 0 {
			cut = maxLen
		}
		parts = append(parts, line[:cut])
		line = line[cut:]
	}
	if len(line) > 0 {
		parts = append(parts, line)
	}
	return parts
}
