package channels

import (
	"strings"
	"unicode"
)

// Chunker splits markdown-ish text into platform-sized pieces, preferring
// paragraph, line, sentence, and word boundaries in that order and
// avoiding cuts inside fenced code blocks. Adapters use it when a single
// outbound message exceeds the platform limit.
type Chunker struct {
	MaxSize int
}

// NewChunker creates a chunker. maxSize <= 0 falls back to 4000.
func NewChunker(maxSize int) *Chunker {
	if maxSize <= 0 {
		maxSize = 4000
	}
	return &Chunker{MaxSize: maxSize}
}

// Chunk splits text into pieces no longer than MaxSize.
func (c *Chunker) Chunk(text string) []string {
	if text == "" {
		return nil
	}
	if len(text) <= c.MaxSize {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > c.MaxSize {
		cut := c.breakPoint(remaining)
		if cut <= 0 {
			cut = c.MaxSize
		}
		chunk := strings.TrimRightFunc(remaining[:cut], unicode.IsSpace)
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		remaining = strings.TrimLeftFunc(remaining[cut:], unicode.IsSpace)
	}
	if remaining = strings.TrimSpace(remaining); remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}

// breakPoint picks the best cut position within the first MaxSize bytes.
func (c *Chunker) breakPoint(text string) int {
	window := text[:c.MaxSize]
	fenceOpen := openFenceStart(window)

	candidate := func(idx int) bool {
		return idx > 0 && (fenceOpen < 0 || idx < fenceOpen)
	}

	if idx := strings.LastIndex(window, "\n\n"); candidate(idx) {
		return idx + 1
	}
	if idx := strings.LastIndex(window, "\n"); candidate(idx) {
		return idx + 1
	}
	for _, ending := range []string{". ", "! ", "? "} {
		if idx := strings.LastIndex(window, ending); candidate(idx) {
			return idx + 1
		}
	}
	// A cut inside an open fence is worse than cutting right before it.
	if fenceOpen > 0 {
		if idx := strings.LastIndex(window[:fenceOpen], "\n"); idx > 0 {
			return idx + 1
		}
	}
	if idx := strings.LastIndexFunc(window, unicode.IsSpace); idx > 0 {
		return idx
	}
	return c.MaxSize
}

// openFenceStart returns the byte offset of the fence that is still open
// at the end of text, or -1 when every ``` fence is balanced.
func openFenceStart(text string) int {
	start := -1
	open := false
	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		if strings.HasPrefix(strings.TrimLeft(line, " \t"), "```") {
			if open {
				open = false
				start = -1
			} else {
				open = true
				start = offset
			}
		}
		offset += len(line)
	}
	if open {
		return start
	}
	return -1
}
