package format

import (
	"strings"
	"unicode/utf16"
)

// MaxMessageLen is kept below Telegram's 4096 unit cap to leave room for
// entity bookkeeping.
const MaxMessageLen = 4000

// Chunk splits text into pieces of at most limit UTF-16 units, breaking at
// line ends where possible. A line longer than limit is cut between runes.
func Chunk(text string, limit int) []string {
	if limit <= 0 || UTF16Len(text) <= limit {
		return []string{text}
	}

	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if s := strings.TrimRight(cur.String(), "\n"); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
		curLen = 0
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		n := UTF16Len(line)
		if curLen+n > limit {
			flush()
		}
		for n > limit {
			head, rest := splitAt(line, limit)
			chunks = append(chunks, head)
			line, n = rest, UTF16Len(rest)
		}
		cur.WriteString(line)
		curLen += n
	}
	flush()
	return chunks
}

// splitAt cuts s after at most limit UTF-16 units without splitting a rune.
func splitAt(s string, limit int) (string, string) {
	units := 0
	for i, r := range s {
		l := utf16.RuneLen(r)
		if l < 0 {
			l = 1
		}
		if units+l > limit {
			return s[:i], s[i:]
		}
		units += l
	}
	return s, ""
}
