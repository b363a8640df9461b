package format

import (
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUTF16Len(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0, UTF16Len(""))
	assert.Equal(t, 3, UTF16Len("abc"))
	assert.Equal(t, 1, UTF16Len("é"))
	assert.Equal(t, 2, UTF16Len("🔔"))
	assert.Equal(t, 5, UTF16Len("🔔 ok"))
}

func TestParseMarkdown(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		in       string
		text     string
		entities []tgbotapi.MessageEntity
	}{
		{
			name:     "bold and code",
			in:       "**Active** reminders `REM`",
			text:     "Active reminders REM",
			entities: []tgbotapi.MessageEntity{{Type: "bold", Offset: 0, Length: 6}, {Type: "code", Offset: 17, Length: 3}},
		},
		{
			name:     "offsets count surrogate pairs",
			in:       "🔔 **tea** now",
			text:     "🔔 tea now",
			entities: []tgbotapi.MessageEntity{{Type: "bold", Offset: 3, Length: 3}},
		},
		{
			name:     "header becomes bold",
			in:       "# Reminders\nnone",
			text:     "Reminders\nnone",
			entities: []tgbotapi.MessageEntity{{Type: "bold", Offset: 0, Length: 9}},
		},
		{
			name: "underscores stay literal",
			in:   "check file_name_v2 *soon*",
			text: "check file_name_v2 *soon*",
		},
		{
			name: "trailing whitespace trimmed",
			in:   "done \n\n",
			text: "done",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ParseMarkdown(tt.in)
			assert.Equal(t, tt.text, got.Text)
			assert.Equal(t, tt.entities, got.Entities)
		})
	}
}

func TestChunkShortText(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"hello"}, Chunk("hello", 10))
	assert.Equal(t, []string{"hello"}, Chunk("hello", 0))
}

func TestChunkBreaksAtLines(t *testing.T) {
	t.Parallel()
	text := "aaaa\nbbbb\ncccc\n"
	got := Chunk(text, 10)
	assert.Equal(t, []string{"aaaa\nbbbb", "cccc"}, got)
}

func TestChunkLongLine(t *testing.T) {
	t.Parallel()
	line := strings.Repeat("🔔", 7) // 14 units
	got := Chunk(line, 5)
	require.Len(t, got, 4)
	for _, c := range got {
		assert.LessOrEqual(t, UTF16Len(c), 5)
	}
	assert.Equal(t, line, strings.Join(got, ""))
}

func TestChunkLimitHolds(t *testing.T) {
	t.Parallel()
	var b strings.Builder
	for i := 0; i < 500; i++ {
		b.WriteString("- **REM** water the plants 🌱\n")
	}
	for _, c := range Chunk(b.String(), MaxMessageLen) {
		assert.LessOrEqual(t, UTF16Len(c), MaxMessageLen)
	}
}
