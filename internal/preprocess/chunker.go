package preprocess

import (
	"strings"
	"unicode/utf8"
)

// ChunkConfig bounds the size of a chunk.
type ChunkConfig struct {
	// MaxLines is the maximum number of lines per chunk.
	MaxLines int
	// MaxChars is the maximum number of characters per chunk, counting one
	// newline per line. A single longer line still forms its own chunk.
	MaxChars int
}

// DefaultChunkConfig returns the production limits.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxLines: 400,
		MaxChars: 6000,
	}
}

func (c ChunkConfig) withDefaults() ChunkConfig {
	d := DefaultChunkConfig()
	if c.MaxLines <= 0 {
		c.MaxLines = d.MaxLines
	}
	if c.MaxChars <= 0 {
		c.MaxChars = d.MaxChars
	}
	return c
}

// Chunk splits text into ordered chunks of whole lines.
//
// Before a line is appended, the current chunk is closed if it already holds
// MaxLines lines or if the line (plus its newline) would push it past
// MaxChars. The check looks at the chunk as it was before the new line, so
// the first line of a chunk is never measured against anything. Empty input
// yields no chunks.
func Chunk(text string, cfg ChunkConfig) []string {
	cfg = cfg.withDefaults()

	var chunks []string
	var current []string
	currentLen := 0

	for _, line := range splitLines(text) {
		lineLen := runeLen(line) + 1
		if len(current) > 0 && (len(current) >= cfg.MaxLines || currentLen+lineLen > cfg.MaxChars) {
			chunks = append(chunks, strings.Join(current, "\n"))
			current = nil
			currentLen = 0
		}
		current = append(current, line)
		currentLen += lineLen
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, "\n"))
	}
	return chunks
}

// splitLines splits on every line boundary: \n, \r\n, \r, \v, \f,
// \x1c-\x1e, U+0085, U+2028 and U+2029. A trailing line break does not
// produce an extra empty line.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	var lines []string
	start := 0
	for i, r := range text {
		if i < start {
			continue
		}
		if !isLineBreak(r) {
			continue
		}
		lines = append(lines, text[start:i])
		start = i + utf8.RuneLen(r)
		if r == '\r' && start < len(text) && text[start] == '\n' {
			start++
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}

func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// truncateRunes cuts s to at most n characters.
func truncateRunes(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
