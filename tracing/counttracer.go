package tracing

import (
	"sync"
)

// CountTracer counts the events of every kind.
type CountTracer struct {
	lock  sync.Mutex
	kinds []string
	count map[string]uint64
}

// NewCountTracer creates a new CountTracer
func NewCountTracer() *CountTracer {
	return &CountTracer{
		count: make(map[string]uint64),
	}
}

// Trace counts the event.
func (t *CountTracer) Trace(event Event) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if _, ok := t.count[event.Kind]; !ok {
		t.kinds = append(t.kinds, event.Kind)
	}

	t.count[event.Kind]++
}

// GetKinds returns the kinds seen, in order of first appearance.
func (t *CountTracer) GetKinds() []string {
	t.lock.Lock()
	defer t.lock.Unlock()

	return append([]string(nil), t.kinds...)
}

// GetCount returns the number of events of the kind.
func (t *CountTracer) GetCount(kind string) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.count[kind]
}
