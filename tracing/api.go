// Package tracing turns the hooks fired by the memory-management core into a
// stream of page events that tracers can count or store.
package tracing

import (
	"github.com/sarchlab/pagesim/mem/vm"
	"github.com/sarchlab/pagesim/mem/vm/mmu"
)

// Kinds of events.
const (
	KindPageMapped     = "PageMapped"
	KindPageReserved   = "PageReserved"
	KindPageSwappedOut = "PageSwappedOut"
	KindPageSwappedIn  = "PageSwappedIn"
	KindMapFailed      = "MapFailed"
	KindTableAllocated = "TableAllocated"
)

// An Event is one change of the page tables. Fields that do not apply to the
// kind are zero.
type Event struct {
	Seq        uint64
	Kind       string
	PID        uint32
	PGN        uint64
	Frame      uint64
	SwapType   uint64
	SwapOffset uint64
	Level      int
}

// A Tracer receives events.
type Tracer interface {
	Trace(event Event)
}

func eventFromPage(kind string, e mmu.PageEvent) Event {
	return Event{
		Kind:       kind,
		PID:        e.Owner,
		PGN:        e.PGN,
		Frame:      e.Frame,
		SwapType:   e.SwapType,
		SwapOffset: e.SwapOffset,
	}
}

func eventFromTable(a vm.TableAllocation) Event {
	return Event{
		Kind:  KindTableAllocated,
		Frame: a.Frame,
		Level: a.Level,
	}
}
