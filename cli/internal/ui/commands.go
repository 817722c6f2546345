package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BioHazard786/Warproom/cli/internal/document"
)

var (
	ErrEmptyCommand   = errors.New("empty command")
	ErrUnknownCommand = errors.New("unknown command")
)

type CommandKind int

const (
	CmdHelp CommandKind = iota
	CmdAccept
	CmdReject
	CmdCode
	CmdAppend
	CmdEdit
	CmdLanguage
	CmdAddVector
	CmdClearVectors
	CmdRun
	CmdSubmit
	CmdAudio
	CmdVideo
	CmdRepublish
	CmdLeave
)

// Command is one parsed line of the room prompt.
type Command struct {
	Kind CommandKind
	// Arg carries the correlation ID, code text, language or problem ID.
	Arg    string
	Vector document.TestVector
	On     bool
}

const vectorSeparator = "=>"

// HelpText lists the prompt commands.
const HelpText = `Commands:
  accept <id> | reject <id>        admit or decline a join request (host)
  code <text>                      replace the code (\n starts a new line)
  append <text>                    add a line to the code
  edit                             edit the code in $EDITOR
  lang <python|java|cpp|javascript>
  vector add <input> => <expected> add a test vector (host)
  vector clear                     remove all test vectors (host)
  run                              run the code against the test vectors
  submit <problem-id>              judge the code
  audio on|off | video on|off      toggle local media
  republish                        retry the peer connection
  leave                            leave the room
  help                             show this help`

// ParseCommand parses a line typed at the room prompt.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, ErrEmptyCommand
	}
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(name) {
	case "help", "?":
		return Command{Kind: CmdHelp}, nil
	case "accept", "reject":
		if rest == "" {
			return Command{}, fmt.Errorf("usage: %s <id>", name)
		}
		kind := CmdAccept
		if strings.EqualFold(name, "reject") {
			kind = CmdReject
		}
		return Command{Kind: kind, Arg: rest}, nil
	case "code":
		return Command{Kind: CmdCode, Arg: unescape(rest)}, nil
	case "append":
		return Command{Kind: CmdAppend, Arg: unescape(rest)}, nil
	case "edit":
		return Command{Kind: CmdEdit}, nil
	case "lang", "language":
		lang := document.Language(strings.ToLower(rest))
		if !lang.Valid() {
			return Command{}, fmt.Errorf("%w %q, choose one of %v", document.ErrUnsupportedLanguage, rest, document.Languages())
		}
		return Command{Kind: CmdLanguage, Arg: string(lang)}, nil
	case "vector", "vectors":
		return parseVector(rest)
	case "run":
		return Command{Kind: CmdRun}, nil
	case "submit":
		if rest == "" {
			return Command{}, errors.New("usage: submit <problem-id>")
		}
		return Command{Kind: CmdSubmit, Arg: rest}, nil
	case "audio", "video":
		on, err := parseSwitch(rest)
		if err != nil {
			return Command{}, fmt.Errorf("usage: %s on|off", name)
		}
		kind := CmdAudio
		if strings.EqualFold(name, "video") {
			kind = CmdVideo
		}
		return Command{Kind: kind, On: on}, nil
	case "republish":
		return Command{Kind: CmdRepublish}, nil
	case "leave", "quit", "exit":
		return Command{Kind: CmdLeave}, nil
	}
	return Command{}, fmt.Errorf("%w %q, type 'help'", ErrUnknownCommand, name)
}

func parseVector(rest string) (Command, error) {
	sub, args, _ := strings.Cut(rest, " ")
	switch strings.ToLower(sub) {
	case "clear":
		return Command{Kind: CmdClearVectors}, nil
	case "add":
		in, exp, ok := strings.Cut(args, vectorSeparator)
		if !ok {
			return Command{}, errors.New("usage: vector add <input> => <expected>")
		}
		return Command{Kind: CmdAddVector, Vector: document.TestVector{
			Input:    unescape(strings.TrimSpace(in)),
			Expected: unescape(strings.TrimSpace(exp)),
		}}, nil
	}
	return Command{}, errors.New("usage: vector add <input> => <expected> | vector clear")
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

var escapes = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\\`, `\`)

func unescape(s string) string { return escapes.Replace(s) }
