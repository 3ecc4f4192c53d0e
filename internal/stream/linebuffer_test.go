package stream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineBuffer_CompleteLines(t *testing.T) {
	var b LineBuffer
	lines := b.Feed("one\ntwo\n")
	assert.Equal(t, []string{"one", "two"}, lines)
	assert.Equal(t, "", b.Pending())
}

func TestLineBuffer_RetainsPartial(t *testing.T) {
	var b LineBuffer
	assert.Equal(t, []string{"one"}, b.Feed("one\ntw"))
	assert.Equal(t, "tw", b.Pending())

	assert.Equal(t, []string{"two"}, b.Feed("o\n"))
	assert.Equal(t, "", b.Pending())
}

func TestLineBuffer_NoNewline(t *testing.T) {
	var b LineBuffer
	assert.Empty(t, b.Feed("abc"))
	assert.Empty(t, b.Feed("def"))
	assert.Equal(t, "abcdef", b.Pending())
}

func TestLineBuffer_BlankLinesKept(t *testing.T) {
	var b LineBuffer
	assert.Equal(t, []string{"a", "", "  "}, b.Feed("a\n\n  \nb"))
	assert.Equal(t, "b", b.Pending())
}

func TestLineBuffer_EmptyChunk(t *testing.T) {
	var b LineBuffer
	b.Feed("x")
	assert.Nil(t, b.Feed(""))
	assert.Equal(t, "x", b.Pending())
}

func TestLineBuffer_Flush(t *testing.T) {
	var b LineBuffer
	b.Feed("a\nrest")
	assert.Equal(t, "rest", b.Flush())
	assert.Equal(t, "", b.Pending())
}

// Rejoining every returned line plus the leftover must reproduce the input no
// matter where the chunk boundaries fall.
func TestLineBuffer_RoundTripAcrossSplits(t *testing.T) {
	texts := []string{
		"",
		"single",
		"a\nb\nc",
		"a\nb\nc\n",
		"\n\n\n",
		"{\"session_id\":\"s\"}\n✻ Toggling… (23s · ⚒ 783 tokens)\nDo you want to proceed? ",
		"multi-byte ✻ ⚒ ❯ split\nacross\n",
	}

	for _, text := range texts {
		for i := 0; i <= len(text); i++ {
			for j := i; j <= len(text); j++ {
				var b LineBuffer
				var out strings.Builder
				for _, chunk := range []string{text[:i], text[i:j], text[j:]} {
					for _, line := range b.Feed(chunk) {
						if strings.Contains(line, "\n") {
							t.Fatalf("line contains newline: %q", line)
						}
						out.WriteString(line)
						out.WriteString("\n")
					}
					if strings.Contains(b.Pending(), "\n") {
						t.Fatalf("pending contains newline: %q", b.Pending())
					}
				}
				out.WriteString(b.Pending())
				if out.String() != text {
					t.Fatalf("split (%d,%d) of %q: got %q", i, j, text, out.String())
				}
			}
		}
	}
}
