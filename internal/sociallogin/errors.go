package sociallogin

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInvalidConfiguration Kind = "invalid_configuration"
	KindElementTimeout       Kind = "element_timeout"
	KindNavigation           Kind = "navigation"
	KindAutomation           Kind = "automation"
)

// Error identifies which phase of a run failed and why.
type Error struct {
	Kind  Kind
	Step  Step   // last step completed before the failure
	Op    string // e.g. `wait "#identifierNext"`
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Step, e.Op, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Step, e.Op)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(kind Kind, step Step, op string, cause error) *Error {
	return &Error{Kind: kind, Step: step, Op: op, Cause: cause}
}

// IsKind reports whether err (or anything it wraps) is an *Error of kind.
func IsKind(err error, kind Kind) bool {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or "" when err is not a run error.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return ""
}
