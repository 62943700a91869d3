package protocol

import (
	"errors"
	"strings"
	"unicode"
)

var (
	ErrEmptyLine = errors.New("empty command line")
)

// MaxUsername caps username length in bytes.
const MaxUsername = 32

// Command verbs. Matching is case-sensitive on the wire.
const (
	VerbAuth   = "AUTH"
	VerbSend   = "SEND"
	VerbGet    = "GET"
	VerbDelete = "DELETE"
	VerbUsers  = "USERS"
	VerbQuit   = "QUIT"
)

// Command is one parsed input line.
//
// Arg is the first token after the verb (recipient or peer username) and
// Tail is everything after Arg with inner spacing preserved, so
// "SEND bob hello  world" yields Arg "bob", Tail "hello  world".
type Command struct {
	Verb string
	Arg  string
	Tail string
}

// ParseCommand splits a newline-terminated line into a Command. It strips
// the terminator and a trailing \r, but performs no per-verb validation;
// the dispatcher decides which shapes are legal. Lines that are empty or
// all whitespace yield ErrEmptyLine.
func ParseCommand(line string) (*Command, error) {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")

	if strings.TrimSpace(line) == "" {
		return nil, ErrEmptyLine
	}

	cmd := &Command{}

	verb, rest, ok := strings.Cut(line, " ")
	cmd.Verb = verb
	if !ok {
		return cmd, nil
	}

	arg, tail, ok := strings.Cut(rest, " ")
	cmd.Arg = arg
	if ok {
		cmd.Tail = tail
	}

	return cmd, nil
}

// ValidUsername reports whether name is acceptable for AUTH: non-empty,
// at most MaxUsername bytes, no whitespace of any kind.
func ValidUsername(name string) bool {
	if name == "" || len(name) > MaxUsername {
		return false
	}
	for _, r := range name {
		if unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// Response lines. One formatting helper per server-to-client line so the
// wire contract lives in a single place.

const (
	Welcome    = "WELCOME Provide AUTH <username>"
	HistoryEnd = "OK History end"
	UsersBegin = "USERS_BEGIN"
	UsersEnd   = "USERS_END"
	Bye        = "BYE"
	Shutdown   = "SHUTDOWN Server shutting down..."
)

func OK(detail string) string {
	if detail == "" {
		return "OK"
	}
	return "OK " + detail
}

func Err(reason string) string {
	return "ERR " + reason
}

func PushMessage(sender, text string) string {
	return "MESSAGE " + sender + " " + text
}

func HistoryLine(timestamp, sender, text string) string {
	return "HISTORY " + timestamp + " " + sender + " " + text
}

func NoMessages(other string) string {
	return "INFO No messages with " + other
}

func UserLine(name string) string {
	return "USER " + name
}
