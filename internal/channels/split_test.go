package channels

import (
	"slices"
	"testing"
)

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{
			name:  "empty",
			text:  "",
			limit: 10,
			want:  nil,
		},
		{
			name:  "fits",
			text:  "short",
			limit: 10,
			want:  []string{"short"},
		},
		{
			name:  "no limit",
			text:  "anything at all goes through unchanged",
			limit: 0,
			want:  []string{"anything at all goes through unchanged"},
		},
		{
			name:  "splits at word boundary in latter half",
			text:  "hello world foo",
			limit: 8,
			want:  []string{"hello", "world", "foo"},
		},
		{
			name:  "hard split without spaces",
			text:  "abcdefghij",
			limit: 4,
			want:  []string{"abcd", "efgh", "ij"},
		},
		{
			name:  "ignores space in first half",
			text:  "ab cdefghkl",
			limit: 8,
			want:  []string{"ab cdefg", "hkl"},
		},
		{
			name:  "exact boundary",
			text:  "aaaa bbbb cccc dddd",
			limit: 10,
			want:  []string{"aaaa bbbb", "cccc dddd"},
		},
		{
			name:  "hard split backs off to rune boundary",
			text:  "aaaa€bbb",
			limit: 6,
			want:  []string{"aaaa", "€bbb"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitMessage(tt.text, tt.limit)
			if !slices.Equal(got, tt.want) {
				t.Fatalf("SplitMessage(%q, %d) = %q, want %q", tt.text, tt.limit, got, tt.want)
			}
			for _, chunk := range got {
				if tt.limit > 0 && len(chunk) > tt.limit {
					t.Errorf("chunk %q is %d bytes, over the %d limit", chunk, len(chunk), tt.limit)
				}
			}
		})
	}
}
