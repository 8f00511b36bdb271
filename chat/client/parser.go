package client

import (
	"dsbuild/chat"
	"fmt"
	"strings"
)

type ParseErrorKind int

const (
	BadSyntax ParseErrorKind = iota
	CommandNotExists
)

// ParseError is returned for a line which is not a request.
type ParseError struct {
	Kind ParseErrorKind
	Info string
}

func (e *ParseError) Error() string {
	if e.Kind == CommandNotExists {
		return fmt.Sprintf("command %q does not exist", e.Info)
	}
	return "bad syntax: " + e.Info
}

func badSyntax(info string) error {
	return &ParseError{Kind: BadSyntax, Info: info}
}

// Parse reads a request of the user:
//
//	/send 'message'
//	/create chat
//	/connect chat
//	/disconnect
//	/status
//
// A parameter in single quotes can contain spaces.
func Parse(line string) (chat.RequestKind, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return chat.RequestKind{}, badSyntax("request must start with /")
	}
	cmd, param, _ := strings.Cut(line[1:], " ")
	if cmd == "" {
		return chat.RequestKind{}, badSyntax("request must not be empty")
	}
	switch strings.ToLower(cmd) {
	case "send":
		msg, err := parameter(cmd, "message", param)
		return chat.SendMessage(msg), err
	case "create":
		name, err := parameter(cmd, "chat name", param)
		return chat.Create(name), err
	case "connect":
		name, err := parameter(cmd, "chat name", param)
		return chat.Connect(name), err
	case "disconnect":
		return chat.Disconnect(), nil
	case "status":
		return chat.Status(), nil
	default:
		return chat.RequestKind{}, &ParseError{Kind: CommandNotExists, Info: cmd}
	}
}

func parameter(cmd, what, param string) (string, error) {
	param = strings.TrimSpace(param)
	if param == "" {
		return "", badSyntax(fmt.Sprintf("%s: expected '%s'", cmd, what))
	}
	if !strings.HasPrefix(param, "'") {
		if strings.ContainsRune(param, ' ') {
			return "", badSyntax(fmt.Sprintf("%s: quote '%s' with spaces", cmd, what))
		}
		return param, nil
	}
	if len(param) < 2 || !strings.HasSuffix(param, "'") {
		return "", badSyntax("closing quote expected")
	}
	return param[1 : len(param)-1], nil
}
