package tracing

import (
	"sync/atomic"

	"github.com/sarchlab/pagesim/hooking"
	"github.com/sarchlab/pagesim/mem/vm"
	"github.com/sarchlab/pagesim/mem/vm/mmu"
)

// CollectTrace lets the tracer receive the events of a domain.
func CollectTrace(domain hooking.Hookable, tracer Tracer) {
	domain.AcceptHook(&traceHook{t: tracer})
}

// A traceHook is a hook that converts hook contexts into events.
type traceHook struct {
	t   Tracer
	seq atomic.Uint64
}

var kindOfPos = map[*hooking.HookPos]string{
	mmu.HookPosPageMapped:     KindPageMapped,
	mmu.HookPosPageReserved:   KindPageReserved,
	mmu.HookPosPageSwappedOut: KindPageSwappedOut,
	mmu.HookPosPageSwappedIn:  KindPageSwappedIn,
	mmu.HookPosMapFailed:      KindMapFailed,
}

// Func passes the event to the tracer. Positions it does not know are ignored.
func (h *traceHook) Func(ctx hooking.HookCtx) {
	var event Event

	switch item := ctx.Item.(type) {
	case mmu.PageEvent:
		kind, ok := kindOfPos[ctx.Pos]
		if !ok {
			return
		}

		event = eventFromPage(kind, item)
	case vm.TableAllocation:
		if ctx.Pos != vm.HookPosTableAllocated {
			return
		}

		event = eventFromTable(item)
	default:
		return
	}

	event.Seq = h.seq.Add(1)
	h.t.Trace(event)
}
