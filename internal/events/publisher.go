package events

import (
	"sync"
)

// GlobalRunID subscribes to every run's events at once. The batch path uses
// this to interleave concurrent runs into a single printed stream.
const GlobalRunID = "*"

// Publisher fans analysis events out to subscriber channels. Publishing
// never blocks: a subscriber that stops draining loses events once its
// buffer fills. Close tears down every subscription channel.
type Publisher interface {
	Publish(event Event)
	Subscribe(runID string) <-chan Event
	Close()
}

const defaultBufferSize = 100

// MemoryPublisher is the in-process Publisher. Delivery order matches
// publish order per subscriber; the buffer bounds how far a slow consumer
// may lag before drops start.
type MemoryPublisher struct {
	mu         sync.RWMutex
	subs       map[string][]chan Event
	bufferSize int
	closed     bool
}

// PublisherOption configures a MemoryPublisher.
type PublisherOption func(*MemoryPublisher)

// WithBufferSize overrides the per-subscriber channel buffer.
func WithBufferSize(size int) PublisherOption {
	return func(p *MemoryPublisher) {
		p.bufferSize = size
	}
}

// NewMemoryPublisher builds a publisher with no subscribers yet.
func NewMemoryPublisher(opts ...PublisherOption) *MemoryPublisher {
	p := &MemoryPublisher{
		subs:       make(map[string][]chan Event),
		bufferSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish delivers the event to the run's subscribers and to global ones.
func (p *MemoryPublisher) Publish(event Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return
	}
	deliver(p.subs[event.RunID], event)
	if event.RunID != GlobalRunID {
		deliver(p.subs[GlobalRunID], event)
	}
}

// deliver offers the event to each channel, dropping on full buffers.
func deliver(channels []chan Event, event Event) {
	for _, ch := range channels {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe registers a channel for the run's events (or all events via
// GlobalRunID). After Close it returns an already-closed channel.
func (p *MemoryPublisher) Subscribe(runID string) <-chan Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan Event, p.bufferSize)
	if p.closed {
		close(ch)
		return ch
	}
	p.subs[runID] = append(p.subs[runID], ch)
	return ch
}

// Close closes all subscriber channels and rejects further publishes.
func (p *MemoryPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	for _, channels := range p.subs {
		for _, ch := range channels {
			close(ch)
		}
	}
	p.subs = nil
}

// SinkFor returns a Sink that stamps events with the given run ID and
// publishes them.
func SinkFor(p Publisher, runID string) Sink {
	if p == nil {
		return nil
	}
	return func(e Event) {
		e.RunID = runID
		p.Publish(e)
	}
}
