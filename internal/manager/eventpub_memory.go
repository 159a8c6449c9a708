package manager

import "sync"

// MemoryPublisher keeps the most recent events in memory. A zero limit keeps
// everything.
type MemoryPublisher struct {
	mu     sync.Mutex
	limit  int
	events []Event
}

// NewMemoryPublisher returns a publisher retaining at most limit events.
func NewMemoryPublisher(limit int) *MemoryPublisher { return &MemoryPublisher{limit: limit} }

func (p *MemoryPublisher) Publish(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	if p.limit > 0 && len(p.events) > p.limit {
		p.events = append(p.events[:0], p.events[len(p.events)-p.limit:]...)
	}
}

// Events returns a copy of the retained events, oldest first.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// Names returns the retained event names, oldest first.
func (p *MemoryPublisher) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Name
	}
	return out
}
