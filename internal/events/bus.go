// Package events is the progress channel between a running job and the
// clients watching it.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type names an event on the wire.
type Type string

// Event types.
const (
	TypeStart Type = "start"
	TypeLead  Type = "lead"
	TypeError Type = "error"
	TypeDone  Type = "done"
)

// Event is one progress update for a job.
type Event struct {
	JobID uuid.UUID `json:"job_id"`
	Type  Type      `json:"type"`
	// Index is the lead's position in the job input, -1 for job-level events.
	Index int       `json:"index"`
	Data  any       `json:"data,omitempty"`
	At    time.Time `json:"at"`
}

// DefaultBuffer is the per-subscriber channel size.
const DefaultBuffer = 64

type subscriber struct {
	ch chan Event
}

// Bus fans job events out to subscribers of that job. Publishing never
// blocks: a subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.Mutex
	subs   map[uuid.UUID][]*subscriber
	closed map[uuid.UUID]bool
	buffer int

	dropped uint64
}

// NewBus creates a bus. A buffer below 1 uses DefaultBuffer.
func NewBus(buffer int) *Bus {
	if buffer < 1 {
		buffer = DefaultBuffer
	}
	return &Bus{
		subs:   make(map[uuid.UUID][]*subscriber),
		closed: make(map[uuid.UUID]bool),
		buffer: buffer,
	}
}

// Subscribe returns a channel of the job's events and a cancel func that
// unsubscribes. The channel is closed by cancel or by Close(jobID). If the
// job is already closed the channel comes back closed.
func (b *Bus) Subscribe(jobID uuid.UUID) (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, b.buffer)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed[jobID] {
		close(s.ch)
		return s.ch, func() {}
	}
	b.subs[jobID] = append(b.subs[jobID], s)

	var once sync.Once
	return s.ch, func() {
		once.Do(func() { b.unsubscribe(jobID, s) })
	}
}

func (b *Bus) unsubscribe(jobID uuid.UUID, s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[jobID]
	for i, x := range list {
		if x == s {
			b.subs[jobID] = append(list[:i], list[i+1:]...)
			close(s.ch)
			break
		}
	}
	if len(b.subs[jobID]) == 0 {
		delete(b.subs, jobID)
	}
}

// Publish delivers e to every current subscriber of e.JobID. Events for a
// closed job are discarded.
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed[e.JobID] {
		return
	}
	for _, s := range b.subs[e.JobID] {
		select {
		case s.ch <- e:
		default:
			b.dropped++
		}
	}
}

// Close ends every subscription of the job. Later subscriptions receive a
// closed channel.
func (b *Bus) Close(jobID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed[jobID] {
		return
	}
	b.closed[jobID] = true
	for _, s := range b.subs[jobID] {
		close(s.ch)
	}
	delete(b.subs, jobID)
}

// Subscribers returns how many subscribers the job currently has.
func (b *Bus) Subscribers(jobID uuid.UUID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[jobID])
}

// Dropped returns how many deliveries were skipped because a subscriber
// was full.
func (b *Bus) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
