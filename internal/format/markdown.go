package format

import (
	"regexp"
	"strings"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ParseResult contains plain text and message entities
type ParseResult struct {
	Text     string
	Entities []tgbotapi.MessageEntity
}

var (
	headerRe = regexp.MustCompile(`(?m)^#{1,6}\s+(.+?)$`)
	inlineRe = regexp.MustCompile("\\*\\*(.+?)\\*\\*|`([^`\n]+?)`")
)

// UTF16Len returns the length of s in UTF-16 code units, the unit Telegram
// uses for entity offsets and message limits.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}

// ParseMarkdown converts a small Markdown subset into Telegram entities:
// **bold**, `code`, and "# Header" lines rendered bold. Anything else,
// including single * and _, is left as literal text.
func ParseMarkdown(text string) ParseResult {
	text = headerRe.ReplaceAllString(text, "**$1**")

	var (
		out      strings.Builder
		entities []tgbotapi.MessageEntity
		offset   int
		last     int
	)
	for _, m := range inlineRe.FindAllStringSubmatchIndex(text, -1) {
		plain := text[last:m[0]]
		out.WriteString(plain)
		offset += UTF16Len(plain)

		kind, inner := "bold", ""
		if m[2] != -1 {
			inner = text[m[2]:m[3]]
		} else {
			kind, inner = "code", text[m[4]:m[5]]
		}
		length := UTF16Len(inner)
		entities = append(entities, tgbotapi.MessageEntity{Type: kind, Offset: offset, Length: length})
		out.WriteString(inner)
		offset += length
		last = m[1]
	}
	out.WriteString(text[last:])

	return ParseResult{
		Text:     strings.TrimRight(out.String(), " \n"),
		Entities: entities,
	}
}
