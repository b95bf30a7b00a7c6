package reorg

import (
	"context"
	"fmt"
	"sync"

	model "github.com/shieldfold/shieldnode/model/chain"
)

// EventBus fans a Processor's Add/Remove events out to any number of
// downstream subscribers without the Processor needing to know how many
// exist. It deliberately stops at the process boundary — it is not a wire
// protocol, matching the "RPC transports are out of scope" non-goal — so
// every subscriber runs in-process and synchronously, same as a directly
// registered Handler.
type EventBus struct {
	mu          sync.Mutex
	subscribers []namedHandler
}

type namedHandler struct {
	name string
	add  Handler
	rem  Handler
}

// NewEventBus returns an empty EventBus.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe registers a named consumer's Add and Remove handlers. Either may
// be nil if the consumer only cares about one direction. name is used only
// for diagnostics (e.g. wrapping a HandlerError with which subscriber
// failed).
func (b *EventBus) Subscribe(name string, onAdd, onRemove Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, namedHandler{name: name, add: onAdd, rem: onRemove})
}

// Attach wires the bus into a Processor as its Add and Remove handlers. Call
// this once, after all Subscribe calls, before the Processor's first
// Advance.
func (b *EventBus) Attach(p *Processor) {
	p.OnAdd(b.dispatch(Add))
	p.OnRemove(b.dispatch(Remove))
}

func (b *EventBus) dispatch(kind Kind) Handler {
	return func(ctx context.Context, header *model.Header) error {
		b.mu.Lock()
		subs := append([]namedHandler(nil), b.subscribers...)
		b.mu.Unlock()

		for _, s := range subs {
			h := s.add
			if kind == Remove {
				h = s.rem
			}
			if h == nil {
				continue
			}
			if err := h(ctx, header); err != nil {
				return &HandlerError{Kind: kind, Header: header, Err: fmt.Errorf("subscriber %s: %w", s.name, err)}
			}
		}
		return nil
	}
}
