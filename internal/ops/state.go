// Package ops holds the controllers that own the lifecycle of the client's
// asynchronous operations: repeating feeds, one-shot requests and uploads.
package ops

type Kind int

const (
	KindIdle Kind = iota
	KindPending
	KindSucceeded
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindIdle:
		return "idle"
	case KindPending:
		return "pending"
	case KindSucceeded:
		return "succeeded"
	case KindFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is the lifecycle of one operation. The zero value is Idle. A State
// holds a value only when Succeeded and a reason only when Failed.
type State[T any] struct {
	kind   Kind
	value  T
	reason string
}

func Idle[T any]() State[T] {
	return State[T]{kind: KindIdle}
}

func Pending[T any]() State[T] {
	return State[T]{kind: KindPending}
}

func Succeeded[T any](value T) State[T] {
	return State[T]{kind: KindSucceeded, value: value}
}

func Failed[T any](reason string) State[T] {
	return State[T]{kind: KindFailed, reason: reason}
}

func (s State[T]) Kind() Kind {
	return s.kind
}

func (s State[T]) IsPending() bool {
	return s.kind == KindPending
}

// IsTerminal reports Succeeded or Failed.
func (s State[T]) IsTerminal() bool {
	return s.kind == KindSucceeded || s.kind == KindFailed
}

func (s State[T]) Value() (T, bool) {
	if s.kind != KindSucceeded {
		var zero T
		return zero, false
	}
	return s.value, true
}

func (s State[T]) Reason() (string, bool) {
	if s.kind != KindFailed {
		return "", false
	}
	return s.reason, true
}
