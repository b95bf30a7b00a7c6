package reorg

import (
	"context"
	"fmt"

	model "github.com/shieldfold/shieldnode/model/chain"
)

// Kind distinguishes the two event types the Processor emits.
type Kind int

const (
	// Add signals that header now belongs to the path from genesis to the
	// current cursor.
	Add Kind = iota
	// Remove signals that header no longer belongs to that path.
	Remove
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case Add:
		return "add"
	case Remove:
		return "remove"
	default:
		return "unknown"
	}
}

// Handler receives one event and acknowledges it by returning. A non-nil
// error is a HandlerFailed condition: the Processor stops emitting further
// events for this Advance call and the cursor is left at its pre-emission
// value.
type Handler func(ctx context.Context, header *model.Header) error

// HandlerError wraps a Handler's failure with the event it failed to
// acknowledge, so callers can tell which header and which direction was in
// flight when the pass aborted.
type HandlerError struct {
	Kind   Kind
	Header *model.Header
	Err    error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("reorg: handler failed acknowledging %s(%s): %v", e.Kind, e.Header.Hash, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// subscription holds an ordered list of handlers for one event kind.
// Handlers run strictly in registration order; the first one to return an
// error short-circuits the rest for that event.
type subscription struct {
	kind     Kind
	handlers []Handler
}

func newSubscription(kind Kind) *subscription {
	return &subscription{kind: kind}
}

// Subscribe registers h to run, in order, whenever this subscription's kind
// of event is emitted. Not safe to call concurrently with emit.
func (s *subscription) Subscribe(h Handler) {
	s.handlers = append(s.handlers, h)
}

func (s *subscription) emit(ctx context.Context, header *model.Header) error {
	for _, h := range s.handlers {
		if err := h(ctx, header); err != nil {
			return &HandlerError{Kind: s.kind, Header: header, Err: err}
		}
	}
	return nil
}
