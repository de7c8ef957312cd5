package channels

import (
	"strings"
	"testing"
)

func TestChunkerShortInput(t *testing.T) {
	c := NewChunker(100)
	if got := c.Chunk(""); got != nil {
		t.Fatalf("Chunk(empty) = %v, want nil", got)
	}
	if got := c.Chunk("fits"); len(got) != 1 || got[0] != "fits" {
		t.Fatalf("Chunk(short) = %v, want the text untouched", got)
	}
}

func TestChunkerPrefersParagraphBreaks(t *testing.T) {
	c := NewChunker(30)
	text := "First paragraph.\n\nSecond paragraph that continues."
	got := c.Chunk(text)
	if len(got) == 0 || got[0] != "First paragraph." {
		t.Fatalf("Chunk() = %q, want the first chunk cut at the paragraph break", got)
	}
	for _, chunk := range got {
		if len(chunk) > 30 {
			t.Errorf("chunk %q exceeds the size limit", chunk)
		}
	}
}

func TestChunkerPrefersSentenceBreaks(t *testing.T) {
	c := NewChunker(30)
	got := c.Chunk("One sentence here. Another follows here and runs long.")
	if len(got) == 0 || got[0] != "One sentence here." {
		t.Fatalf("Chunk() = %q, want the first chunk cut after the sentence", got)
	}
}

func TestChunkerKeepsCodeFencesIntact(t *testing.T) {
	c := NewChunker(40)
	text := "Intro line\n```go\ncode line one\ncode line two\n```\nafter"
	got := c.Chunk(text)
	if len(got) < 2 {
		t.Fatalf("Chunk() = %q, want multiple chunks", got)
	}
	if got[0] != "Intro line" {
		t.Errorf("first chunk = %q, want the cut before the fence", got[0])
	}
	var block string
	for _, chunk := range got {
		if strings.Contains(chunk, "```") {
			block = chunk
			break
		}
	}
	if strings.Count(block, "```") != 2 {
		t.Errorf("code block was split across chunks: %q", got)
	}
	if !strings.Contains(block, "code line one") || !strings.Contains(block, "code line two") {
		t.Errorf("code block lost content: %q", block)
	}
}

func TestChunkerHardSplitsLongWords(t *testing.T) {
	c := NewChunker(5)
	got := c.Chunk("abcdefghijklmnop")
	want := []string{"abcde", "fghij", "klmno", "p"}
	if len(got) != len(want) {
		t.Fatalf("Chunk() = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestChunkerDefaultSize(t *testing.T) {
	c := NewChunker(0)
	if c.MaxSize != 4000 {
		t.Fatalf("MaxSize = %d, want the 4000 default", c.MaxSize)
	}
}
