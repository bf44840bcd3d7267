package telegram

import (
	"strings"
	"testing"
)

func TestSplitTextShortPassesThrough(t *testing.T) {
	t.Parallel()

	got := splitText("hello", 100)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()

	lines := make([]string, 40)
	for i := range lines {
		lines[i] = strings.Repeat("x", 20)
	}
	s := strings.Join(lines, "\n")

	chunks := splitText(s, 100)
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d, want a split", len(chunks))
	}
	for i, c := range chunks {
		if n := len([]rune(c)); n > 100 {
			t.Errorf("chunk %d is %d runes, over the limit", i, n)
		}
		// Newline-boundary splitting keeps lines whole.
		for _, line := range strings.Split(c, "\n") {
			if line != strings.Repeat("x", 20) {
				t.Errorf("chunk %d broke a line: %q", i, line)
			}
		}
	}
}

func TestSplitTextHardBreakWithoutNewlines(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("y", 250)
	chunks := splitText(s, 100)
	var total int
	for _, c := range chunks {
		if len([]rune(c)) > 100 {
			t.Errorf("chunk over limit: %d", len([]rune(c)))
		}
		total += len([]rune(c))
	}
	if total != 250 {
		t.Errorf("runes lost in split: %d of 250", total)
	}
}
