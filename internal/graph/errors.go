package graph

import "fmt"

// Kind classifies a graph.Error. Only configuration mistakes surface as
// errors — data-path commands never fail on well-formed input.
type Kind string

const (
	ErrConfigMissingParameter Kind = "config_missing_parameter"
	ErrConfigUnknownKey       Kind = "config_unknown_key"
	ErrConfigUnknownMethod    Kind = "config_unknown_method"
	ErrNotImplemented         Kind = "not_implemented"
)

// Error is the value form of a failed command. Only a malformed Configure
// or an unknown command kind returns one; the engine is left unchanged
// when it does.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is supports errors.Is(err, &graph.Error{Kind: graph.ErrConfigUnknownKey})-style
// matching: two *Error values match when their Kinds are equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
