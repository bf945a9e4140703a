package bus

import (
	"context"
	"sync"

	"github.com/yungbote/tutorgraph-backend/internal/realtime"
)

// MemoryBus delivers events synchronously to in-process subscribers and keeps
// a copy of everything published.
type MemoryBus struct {
	mu        sync.Mutex
	published []realtime.GraphEvent
	subs      []func(realtime.GraphEvent)
}

func NewMemoryBus() *MemoryBus { return &MemoryBus{} }

func (b *MemoryBus) Publish(ctx context.Context, ev realtime.GraphEvent) error {
	b.mu.Lock()
	b.published = append(b.published, ev)
	subs := append([]func(realtime.GraphEvent){}, b.subs...)
	b.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
	return nil
}

func (b *MemoryBus) StartForwarder(ctx context.Context, onEvent func(ev realtime.GraphEvent)) error {
	if onEvent == nil {
		return nil
	}
	b.mu.Lock()
	b.subs = append(b.subs, onEvent)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBus) Published() []realtime.GraphEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]realtime.GraphEvent{}, b.published...)
}

func (b *MemoryBus) Close() error { return nil }
