// README: Unbounded per-actor FIFO mailbox with a wait-with-predicate receive.
package transport

import (
	"context"
	"sync"
	"time"

	"carpool/internal/types"
)

// Mailbox never blocks senders. Messages are handed out in arrival order;
// Receive may take a later message first, leaving earlier ones queued.
type Mailbox struct {
	owner types.ID

	mu     sync.Mutex
	queue  []Message
	closed bool
	ready  chan struct{}
}

func NewMailbox(owner types.ID) *Mailbox {
	return &Mailbox{owner: owner, ready: make(chan struct{}, 1)}
}

func (m *Mailbox) Owner() types.ID { return m.owner }

func (m *Mailbox) put(msg Message) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMailboxClosed
	}
	m.queue = append(m.queue, msg)
	m.mu.Unlock()
	m.signal()
	return nil
}

func (m *Mailbox) signal() {
	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// Ready fires after new messages arrive. It is a hint: callers drain with
// Next until it reports false.
func (m *Mailbox) Ready() <-chan struct{} { return m.ready }

// Next pops the oldest message without blocking.
func (m *Mailbox) Next() (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return Message{}, false
	}
	msg := m.queue[0]
	m.queue[0] = Message{}
	m.queue = m.queue[1:]
	return msg, true
}

func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// take removes and returns the oldest message satisfying match.
func (m *Mailbox) take(match func(Message) bool) (Message, bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, msg := range m.queue {
		if match(msg) {
			m.queue = append(m.queue[:i:i], m.queue[i+1:]...)
			return msg, true, m.closed
		}
	}
	return Message{}, false, m.closed
}

// Receive waits for the oldest message satisfying match. Non-matching
// messages stay queued in order. A zero deadline waits until ctx is done.
func (m *Mailbox) Receive(ctx context.Context, match func(Message) bool, deadline time.Time) (Message, error) {
	var timeout <-chan time.Time
	if !deadline.IsZero() {
		t := time.NewTimer(time.Until(deadline))
		defer t.Stop()
		timeout = t.C
	}
	for {
		msg, ok, closed := m.take(match)
		if ok {
			return msg, nil
		}
		if closed {
			return Message{}, ErrMailboxClosed
		}
		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case <-timeout:
			// one last look so a message racing the timer is not lost
			if msg, ok, _ := m.take(match); ok {
				return msg, nil
			}
			return Message{}, ErrTimeout
		case <-m.ready:
		}
	}
}

// Discard removes every queued message satisfying match and returns them.
func (m *Mailbox) Discard(match func(Message) bool) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var dropped []Message
	kept := m.queue[:0]
	for _, msg := range m.queue {
		if match(msg) {
			dropped = append(dropped, msg)
			continue
		}
		kept = append(kept, msg)
	}
	for i := len(kept); i < len(m.queue); i++ {
		m.queue[i] = Message{}
	}
	m.queue = kept
	return dropped
}

func (m *Mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.signal()
}
