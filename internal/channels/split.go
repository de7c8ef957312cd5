package channels

import (
	"strings"
	"unicode/utf8"
)

// SplitMessage cuts text into chunks of at most limit bytes. Each cut
// prefers the last space in the window when that space falls in the latter
// half; otherwise it splits hard at the limit, backing off to a rune
// boundary. limit <= 0 means no splitting.
func SplitMessage(text string, limit int) []string {
	if text == "" {
		return nil
	}
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(text) > limit {
		cut := limit
		window := text[:limit]
		if idx := strings.LastIndexByte(window, ' '); idx >= limit/2 {
			cut = idx
		}
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if cut == 0 {
			cut = limit
		}
		chunk := strings.TrimRight(text[:cut], " ")
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		text = strings.TrimLeft(text[cut:], " ")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
