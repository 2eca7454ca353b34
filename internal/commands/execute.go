package commands

import "fmt"

type Result struct {
	Message string
	// Markdown, when set, is rendered in the detail pane instead of Message.
	Markdown string
}

type Handlers struct {
	Add      func(AddArgs) (Result, error)
	Generate func() (Result, error)
	Pause    func(TargetArgs) (Result, error)
	Resume   func(TargetArgs) (Result, error)
	Delete   func(TargetArgs) (Result, error)
	Show     func(TargetArgs) (Result, error)
	Done     func(TargetArgs) (Result, error)
	Preview  func(PreviewArgs) (Result, error)
}

func Execute(cmd Command, handlers Handlers) (Result, error) {
	switch cmd.Type {
	case TypeAdd:
		if handlers.Add == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Add(*cmd.Add)
	case TypeGenerate:
		if handlers.Generate == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Generate()
	case TypePreview:
		if handlers.Preview == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Preview(*cmd.Preview)
	case TypePause, TypeResume, TypeDelete, TypeShow, TypeDone:
		h := map[Type]func(TargetArgs) (Result, error){
			TypePause:  handlers.Pause,
			TypeResume: handlers.Resume,
			TypeDelete: handlers.Delete,
			TypeShow:   handlers.Show,
			TypeDone:   handlers.Done,
		}[cmd.Type]
		if h == nil {
			return Result{}, missing(cmd.Type)
		}
		return h(*cmd.Target)
	default:
		return Result{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unknown command type: %s", cmd.Type)}
	}
}

func missing(t Type) error {
	return &CommandError{Code: ErrCodeHandlerMissing, Message: fmt.Sprintf("%s handler not configured", t)}
}
