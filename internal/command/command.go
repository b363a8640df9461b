// Package command turns chat slash-commands into typed values.
package command

import "strings"

// Command is one of the types below. Dispatch with a type switch.
type Command interface {
	command()
}

type (
	Done     struct{ Code string }
	Cancel   struct{ Code string }
	Pause    struct{ Code string }
	Resume   struct{ Code string }
	List     struct{}
	Timezone struct{ Zone string } // empty Zone asks for the current one
	Next     struct{ Code string }
	Backup   struct{}
	Help     struct{}
	Unknown  struct{ Name string }
)

func (Done) command()     {}
func (Cancel) command()   {}
func (Pause) command()    {}
func (Resume) command()   {}
func (List) command()     {}
func (Timezone) command() {}
func (Next) command()     {}
func (Backup) command()   {}
func (Help) command()     {}
func (Unknown) command()  {}

// IsCommand reports whether text is a slash command rather than free text.
func IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/")
}

// Parse reads a slash command. Short codes are upper-cased; a missing code
// yields an empty Code which callers answer with usage. "/cmd@botname" is
// accepted as in group chats.
func Parse(text string) Command {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return Unknown{}
	}

	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}

	var arg string
	if len(fields) > 1 {
		arg = fields[1]
	}
	code := strings.ToUpper(arg)

	switch name {
	case "done", "ack":
		return Done{Code: code}
	case "cancel":
		return Cancel{Code: code}
	case "pause":
		return Pause{Code: code}
	case "resume":
		return Resume{Code: code}
	case "list":
		return List{}
	case "timezone", "tz":
		return Timezone{Zone: arg}
	case "next":
		return Next{Code: code}
	case "backup":
		return Backup{}
	case "help", "start":
		return Help{}
	}
	return Unknown{Name: "/" + name}
}
