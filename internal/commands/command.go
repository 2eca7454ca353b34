package commands

import (
	"fmt"
	"strconv"
	"strings"
)

type Type string

const (
	TypeAdd      Type = "add"
	TypeGenerate Type = "generate"
	TypePause    Type = "pause"
	TypeResume   Type = "resume"
	TypeDelete   Type = "delete"
	TypePreview  Type = "preview"
	TypeShow     Type = "show"
	TypeDone     Type = "done"
)

const (
	DefaultPreviewCount = 5
	MaxPreviewCount     = 100
)

type ErrorCode string

const (
	ErrCodeEmptyInput      ErrorCode = "empty_input"
	ErrCodeUnknownCommand  ErrorCode = "unknown_command"
	ErrCodeInvalidArgument ErrorCode = "invalid_argument"
	ErrCodeHandlerMissing  ErrorCode = "handler_missing"
)

type CommandError struct {
	Code    ErrorCode
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AddArgs carries "add <title>; <rule>". Rule is parsed by the handler with model.ParseRule.
type AddArgs struct {
	Title string
	Rule  string
}

// TargetArgs names a definition, or an instance for done, by id or unique id prefix.
type TargetArgs struct {
	Target string
}

type PreviewArgs struct {
	Target string
	Count  int
}

type Command struct {
	Type    Type
	Raw     string
	Add     *AddArgs
	Target  *TargetArgs
	Preview *PreviewArgs
}

func Parse(input string) (Command, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}
	if strings.HasPrefix(raw, "/") {
		raw = strings.TrimSpace(strings.TrimPrefix(raw, "/"))
	}
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}

	parts := strings.Fields(raw)
	head := strings.ToLower(parts[0])
	args := parts[1:]

	switch Type(head) {
	case TypeAdd:
		return parseAdd(input, strings.TrimSpace(raw[len(parts[0]):]))
	case TypeGenerate:
		if len(args) > 0 {
			return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "generate takes no arguments"}
		}
		return Command{Type: TypeGenerate, Raw: input}, nil
	case TypePause, TypeResume, TypeDelete, TypeShow, TypeDone:
		return parseTarget(input, Type(head), args)
	case TypePreview:
		return parsePreview(input, args)
	default:
		return Command{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unsupported command: %s", head)}
	}
}

func parseAdd(raw, rest string) (Command, error) {
	title, rule, ok := strings.Cut(rest, ";")
	title, rule = strings.TrimSpace(title), strings.TrimSpace(rule)
	if !ok || title == "" || rule == "" {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "usage: add <title>; <rule>"}
	}
	return Command{Type: TypeAdd, Raw: raw, Add: &AddArgs{Title: title, Rule: rule}}, nil
}

func parseTarget(raw string, typ Type, args []string) (Command, error) {
	if len(args) != 1 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("%s requires exactly one id", typ)}
	}
	return Command{Type: typ, Raw: raw, Target: &TargetArgs{Target: args[0]}}, nil
}

func parsePreview(raw string, args []string) (Command, error) {
	if len(args) == 0 || len(args) > 2 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "usage: preview <id> [count]"}
	}
	count := DefaultPreviewCount
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 || n > MaxPreviewCount {
			return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("preview count must be 1-%d", MaxPreviewCount)}
		}
		count = n
	}
	return Command{Type: TypePreview, Raw: raw, Preview: &PreviewArgs{Target: args[0], Count: count}}, nil
}
