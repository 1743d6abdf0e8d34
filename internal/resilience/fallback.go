package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrBufferFull  = errors.New("local buffer is full")
	ErrNoFlushFunc = errors.New("no flush function set")
)

// BufferedEvent is an event waiting for its broker to come back
type BufferedEvent struct {
	ID        string          `json:"id"`
	Topic     string          `json:"topic"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	Retries   int             `json:"retries"`
}

// FlushFunc delivers a single buffered event
type FlushFunc func(ctx context.Context, event BufferedEvent) error

// BufferOption configures an EventBuffer
type BufferOption func(*EventBuffer)

// WithMaxRetries drops an event once it has failed n flushes. Zero keeps
// events until they are delivered.
func WithMaxRetries(n int) BufferOption {
	return func(b *EventBuffer) { b.maxRetries = n }
}

// WithDropHandler is called for every event given up on
func WithDropHandler(fn func(event BufferedEvent)) BufferOption {
	return func(b *EventBuffer) { b.onDrop = fn }
}

// EventBuffer is a bounded FIFO of events that could not be published.
// Add never blocks; once capacity is reached new events are refused.
type EventBuffer struct {
	mu         sync.Mutex
	queue      []BufferedEvent
	capacity   int
	maxRetries int
	flush      FlushFunc
	onDrop     func(BufferedEvent)
}

// NewEventBuffer creates a buffer holding at most capacity events
func NewEventBuffer(capacity int, opts ...BufferOption) *EventBuffer {
	b := &EventBuffer{capacity: capacity}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetFlushFunc sets how buffered events are delivered
func (b *EventBuffer) SetFlushFunc(fn FlushFunc) {
	b.mu.Lock()
	b.flush = fn
	b.mu.Unlock()
}

// Add queues an event
func (b *EventBuffer) Add(event BufferedEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) >= b.capacity {
		return ErrBufferFull
	}
	b.queue = append(b.queue, event)
	return nil
}

// Flush takes the queued events and delivers them in order. Failed events
// go back to the front of the queue, ahead of anything added meanwhile,
// unless they ran out of retries.
func (b *EventBuffer) Flush(ctx context.Context) (int, error) {
	b.mu.Lock()
	fn := b.flush
	if fn == nil {
		b.mu.Unlock()
		return 0, ErrNoFlushFunc
	}
	pending := b.queue
	b.queue = nil
	b.mu.Unlock()

	var (
		sent    int
		lastErr error
		requeue []BufferedEvent
		dropped []BufferedEvent
	)
	for i, event := range pending {
		if err := ctx.Err(); err != nil {
			lastErr = err
			requeue = append(requeue, pending[i:]...)
			break
		}
		if err := fn(ctx, event); err != nil {
			lastErr = err
			event.Retries++
			if b.maxRetries > 0 && event.Retries >= b.maxRetries {
				dropped = append(dropped, event)
				continue
			}
			requeue = append(requeue, event)
			continue
		}
		sent++
	}

	b.mu.Lock()
	b.queue = append(requeue, b.queue...)
	onDrop := b.onDrop
	b.mu.Unlock()

	if onDrop != nil {
		for _, event := range dropped {
			onDrop(event)
		}
	}

	if lastErr != nil {
		return sent, fmt.Errorf("flushed %d of %d events: %w", sent, len(pending), lastErr)
	}
	return sent, nil
}

// Size returns the number of queued events
func (b *EventBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
