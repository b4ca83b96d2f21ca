// README: In-process message bus routing envelopes to actor mailboxes.
package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"carpool/internal/types"
)

// Sender is the outbound half of the bus that negotiation code depends on.
type Sender interface {
	Send(msg Message) error
}

type Bus struct {
	log *slog.Logger

	mu    sync.RWMutex
	boxes map[types.ID]*Mailbox
}

func NewBus(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{log: log, boxes: make(map[types.ID]*Mailbox)}
}

// Open creates the mailbox for id. Each actor owns exactly one.
func (b *Bus) Open(id types.ID) (*Mailbox, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.boxes[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateActor, id)
	}
	mb := NewMailbox(id)
	b.boxes[id] = mb
	return mb, nil
}

// Close detaches id; later sends to it fail with ErrUnknownActor.
func (b *Bus) Close(id types.ID) {
	b.mu.Lock()
	mb, ok := b.boxes[id]
	delete(b.boxes, id)
	b.mu.Unlock()
	if ok {
		mb.close()
	}
}

func (b *Bus) Send(msg Message) error {
	b.mu.RLock()
	mb, ok := b.boxes[msg.To]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("send %s to %s: %w", msg.Kind, msg.To, ErrUnknownActor)
	}
	if err := mb.put(msg); err != nil {
		return fmt.Errorf("send %s to %s: %w", msg.Kind, msg.To, err)
	}
	b.log.Debug("message sent", "kind", msg.Kind, "from", msg.From, "to", msg.To, "conversation", msg.Conversation)
	return nil
}

// Broadcast sends a copy of msg to every receiver through out and returns the
// ones that were delivered. Undeliverable receivers are reported in the joined error.
func Broadcast(out Sender, msg Message, to []types.ID) ([]types.ID, error) {
	delivered := make([]types.ID, 0, len(to))
	var errs []error
	for _, id := range to {
		m := msg
		m.To = id
		if err := out.Send(m); err != nil {
			errs = append(errs, err)
			continue
		}
		delivered = append(delivered, id)
	}
	return delivered, errors.Join(errs...)
}

func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.boxes)
}
