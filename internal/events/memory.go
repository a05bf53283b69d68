package events

import (
	"context"
	"sync"
)

// MemoryPublisher records events in memory for development and tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []LeadDiscovered
}

// NewMemoryPublisher creates an empty MemoryPublisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish appends the event.
func (p *MemoryPublisher) Publish(_ context.Context, event LeadDiscovered) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (p *MemoryPublisher) Events() []LeadDiscovered {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]LeadDiscovered(nil), p.events...)
}
