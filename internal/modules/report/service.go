// README: Result collector: dedupes per actor, persists, fans out to live subscribers.
package report

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"carpool/internal/types"
)

type Collector struct {
	simulationID string
	store        Store
	log          *slog.Logger

	mu      sync.Mutex
	results []Result
	seen    map[types.ID]bool
	notify  chan struct{}
	subs    map[int]chan Result
	nextSub int
	closed  bool
}

// NewCollector returns a collector for one simulation. store may be nil.
func NewCollector(simulationID string, store Store, log *slog.Logger) *Collector {
	if log == nil {
		log = slog.Default()
	}
	return &Collector{
		simulationID: simulationID,
		store:        store,
		log:          log,
		seen:         make(map[types.ID]bool),
		notify:       make(chan struct{}),
		subs:         make(map[int]chan Result),
	}
}

func (c *Collector) SimulationID() string { return c.simulationID }

// Report records r. A second report for the same actor is dropped.
func (c *Collector) Report(ctx context.Context, r Result) {
	r = sanitize(r)
	r.SimulationID = c.simulationID
	if r.ReportedAt.IsZero() {
		r.ReportedAt = time.Now().UTC()
	}

	c.mu.Lock()
	if c.seen[r.ActorID] {
		c.mu.Unlock()
		c.log.Warn("duplicate result dropped", "actor", r.ActorID, "status", r.Status)
		return
	}
	c.seen[r.ActorID] = true
	c.results = append(c.results, r)
	close(c.notify)
	c.notify = make(chan struct{})
	for id, ch := range c.subs {
		select {
		case ch <- r:
		default:
			c.log.Warn("subscriber too slow, result skipped", "subscription", id, "actor", r.ActorID)
		}
	}
	c.mu.Unlock()

	c.log.Info("result", "actor", r.ActorID, "role", r.Role, "status", r.Status,
		"route_cost", r.RouteCost, "price", r.Price, "income", r.Income)

	if c.store != nil {
		if err := c.store.Save(ctx, r); err != nil {
			c.log.Error("persist result failed", "actor", r.ActorID, "err", err)
		}
	}
}

func (c *Collector) Results() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Result, len(c.results))
	copy(out, c.results)
	return out
}

func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

func (c *Collector) Summary() Summary {
	return Summarize(c.Results())
}

// WaitFor blocks until at least n results were reported or ctx is done.
func (c *Collector) WaitFor(ctx context.Context, n int) error {
	for {
		c.mu.Lock()
		if len(c.results) >= n {
			c.mu.Unlock()
			return nil
		}
		ch := c.notify
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Subscribe streams every result reported from now on. The returned cancel
// func must be called once the subscriber is done; Close ends all streams.
func (c *Collector) Subscribe(buffer int) (<-chan Result, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan Result, buffer)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Close ends every subscription. Later reports are still recorded.
func (c *Collector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}
