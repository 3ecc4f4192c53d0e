package stream

import "strings"

// LineBuffer accumulates raw subprocess output and splits it into
// newline-terminated lines. Any trailing unterminated text is retained
// until a later chunk completes it.
type LineBuffer struct {
	pending string
}

// Feed appends chunk to the retained text and returns every line that is now
// terminated by '\n'. Returned lines never contain '\n'. Blank lines are
// returned as-is; filtering them is the caller's concern.
func (b *LineBuffer) Feed(chunk string) []string {
	if chunk == "" {
		return nil
	}

	data := b.pending + chunk
	parts := strings.Split(data, "\n")

	if strings.HasSuffix(data, "\n") {
		// Split leaves an empty segment after the final newline.
		b.pending = ""
		return parts[:len(parts)-1]
	}

	b.pending = parts[len(parts)-1]
	return parts[:len(parts)-1]
}

// Pending returns the unterminated tail.
func (b *LineBuffer) Pending() string {
	return b.pending
}

// Flush returns the unterminated tail and resets the buffer. Used at EOF.
func (b *LineBuffer) Flush() string {
	rest := b.pending
	b.pending = ""
	return rest
}
