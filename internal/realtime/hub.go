// Package realtime fans table change notifications out to subscribers.
// Events are invalidation signals: consumers re-read the store rather than
// trusting the record they carry.
package realtime

import (
	"context"
	"fmt"
	"sync"

	"campusportal/internal/metrics"
)

// OpResync marks an event that carries no row. It reaches every
// subscriber regardless of table or filter and means changes may have
// been missed.
const OpResync = "RESYNC"

type Event struct {
	Table  string                 `json:"table"`
	Op     string                 `json:"op"`
	Record map[string]interface{} `json:"record"`
}

// Filter narrows a subscription to events whose record has Column equal to
// Value. The zero Filter matches every event on the table.
type Filter struct {
	Column string
	Value  string
}

func Resync() Event {
	return Event{Op: OpResync}
}

func Eq(column, value string) Filter {
	return Filter{Column: column, Value: value}
}

func (f Filter) Matches(e Event) bool {
	if f.Column == "" {
		return true
	}
	v, ok := e.Record[f.Column]
	if !ok || v == nil {
		return false
	}
	return fmt.Sprint(v) == f.Value
}

type Source interface {
	Subscribe(ctx context.Context, table string, filter Filter) (*Subscription, error)
}

// Subscription delivers matching events on C until its context ends or Close
// is called, after which C is closed.
type Subscription struct {
	C <-chan Event

	once  sync.Once
	close func()
}

func (s *Subscription) Close() {
	s.once.Do(s.close)
}

type subscriber struct {
	table  string
	filter Filter
	ch     chan Event
}

func (s *subscriber) wants(e Event) bool {
	if s.table != "" && s.table != e.Table {
		return false
	}
	return s.filter.Matches(e)
}

const subscriberBuffer = 16

type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]*subscriber)}
}

// Subscribe with an empty table receives events for every table.
func (h *Hub) Subscribe(ctx context.Context, table string, filter Filter) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = &subscriber{table: table, filter: filter, ch: ch}
	h.mu.Unlock()

	done := make(chan struct{})
	sub := &Subscription{C: ch}
	sub.close = func() {
		h.mu.Lock()
		delete(h.subs, id)
		close(ch)
		h.mu.Unlock()
		close(done)
	}
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-done:
		}
	}()
	return sub, nil
}

// Publish never blocks. A subscriber whose buffer is full misses the event;
// it already has a pending signal to act on.
func (h *Hub) Publish(e Event) {
	label := e.Table
	if e.Op == OpResync {
		label = "resync"
	}
	metrics.ChangeEvents.WithLabelValues(label).Inc()
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if e.Op != OpResync && !sub.wants(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
		}
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
