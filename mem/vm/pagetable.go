package vm

import (
	"fmt"

	"github.com/sarchlab/pagesim/hooking"
)

// HookPosTableAllocated marks a new intermediate table being installed. The
// item is a TableAllocation.
var HookPosTableAllocated = &hooking.HookPos{Name: "TableAllocated"}

// TableAllocation describes a table frame installed by a walk.
type TableAllocation struct {
	// Level is the index of the new table in the layout.
	Level int
	Frame uint64
}

// A TableFrameAllocator supplies frames for new page-table levels.
type TableFrameAllocator interface {
	AllocateTableFrame() (uint64, error)
	ReleaseTableFrame(fpn uint64)
}

// A PageTableWalker walks the page-table hierarchy stored in a physical
// memory device.
type PageTableWalker struct {
	hooking.HookableBase

	layout Layout
	dev    ByteDevice
	frames TableFrameAllocator
}

// NewPageTableWalker creates a walker over the device. Tables created on
// demand take their frames from the allocator.
func NewPageTableWalker(
	layout Layout,
	dev ByteDevice,
	frames TableFrameAllocator,
) *PageTableWalker {
	if err := layout.Validate(); err != nil {
		panic(err)
	}

	return &PageTableWalker{
		layout: layout,
		dev:    dev,
		frames: frames,
	}
}

// Layout returns the address layout the walker uses.
func (w *PageTableWalker) Layout() Layout {
	return w.layout
}

// ResolveOrAllocate returns the physical address of the leaf slot of the
// page, creating every missing intermediate table on the way. Tables created
// before a failure stay installed; they are valid empty tables.
func (w *PageTableWalker) ResolveOrAllocate(root, pgn uint64) (uint64, error) {
	return w.walk(root, pgn, true)
}

// Resolve returns the physical address of the leaf slot of the page. It fails
// with ErrPageTableLevelMissing if any intermediate level is absent.
func (w *PageTableWalker) Resolve(root, pgn uint64) (uint64, error) {
	return w.walk(root, pgn, false)
}

// Lookup returns the leaf entry of the page without allocating.
func (w *PageTableWalker) Lookup(root, pgn uint64) (PTE, error) {
	slot, err := w.Resolve(root, pgn)
	if err != nil {
		return 0, err
	}

	return ReadEntry(w.dev, slot)
}

// Translate maps a virtual address to a physical address.
func (w *PageTableWalker) Translate(root, vAddr uint64) (uint64, error) {
	if vAddr >= w.layout.MaxAddress() {
		return 0, fmt.Errorf("%w: 0x%x", ErrInvalidAddress, vAddr)
	}

	entry, err := w.Lookup(root, w.layout.PageNum(vAddr))
	if err != nil {
		return 0, err
	}

	resident, ok := Decode(entry).(Resident)
	if !ok {
		return 0, fmt.Errorf("%w: 0x%x", ErrPageFault, vAddr)
	}

	return resident.Frame*w.layout.PageSize() + w.layout.Offset(vAddr), nil
}

// VisitLeaves calls fn with every present leaf entry of the pages in
// [first, last], in page order. Subtrees whose tables are absent are skipped
// without being walked page by page. Pages past the layout are ignored.
func (w *PageTableWalker) VisitLeaves(
	root, first, last uint64,
	fn func(pgn uint64, pte PTE) error,
) error {
	last = min(last, w.layout.NumPages()-1)
	if first > last {
		return nil
	}

	return w.visit(root, 0, 0, first, last, fn)
}

func (w *PageTableWalker) visit(
	base uint64,
	level int,
	prefix, first, last uint64,
	fn func(pgn uint64, pte PTE) error,
) error {
	lv := w.layout.Levels[level]
	span := uint64(1) << (lv.Shift - w.layout.PageShift)
	isLeaf := level == len(w.layout.Levels)-1

	idx := uint64(0)
	if first > prefix {
		idx = (first - prefix) / span
	}

	for ; idx < lv.Entries(); idx++ {
		lo := prefix + idx*span
		if lo > last {
			break
		}

		entry, err := ReadEntry(w.dev, base+idx*w.layout.EntrySize)
		if err != nil {
			return err
		}

		if !entry.Present() {
			continue
		}

		if isLeaf {
			err = fn(lo, entry)
		} else {
			err = w.visit(entry.FPN()*w.layout.PageSize(), level+1, lo,
				first, last, fn)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

// ClearTable zeroes the part of the frame used by a table of the level.
func (w *PageTableWalker) ClearTable(fpn uint64, level int) error {
	base := fpn * w.layout.PageSize()
	for i := uint64(0); i < w.layout.TableBytes(level); i++ {
		if err := w.dev.Write(base+i, 0); err != nil {
			return err
		}
	}

	return nil
}

func (w *PageTableWalker) walk(root, pgn uint64, allocate bool) (uint64, error) {
	if pgn >= w.layout.NumPages() {
		return 0, fmt.Errorf("%w: page 0x%x", ErrInvalidAddress, pgn)
	}

	indices := w.layout.IndicesFromPageNum(pgn)
	leaf := len(indices) - 1
	base := root

	for level := 0; level < leaf; level++ {
		slot := base + indices[level]*w.layout.EntrySize

		entry, err := ReadEntry(w.dev, slot)
		if err != nil {
			return 0, err
		}

		if !entry.Present() {
			if !allocate {
				return 0, fmt.Errorf("%w: %s[%d] of page 0x%x",
					ErrPageTableLevelMissing,
					w.layout.Levels[level].Name, indices[level], pgn)
			}

			entry, err = w.installTable(slot, level+1)
			if err != nil {
				return 0, err
			}
		}

		base = entry.FPN() * w.layout.PageSize()
	}

	return base + indices[leaf]*w.layout.EntrySize, nil
}

func (w *PageTableWalker) installTable(slot uint64, level int) (PTE, error) {
	fpn, err := w.frames.AllocateTableFrame()
	if err != nil {
		return 0, err
	}

	entry, err := Encode(Resident{Frame: fpn})
	if err == nil {
		err = w.ClearTable(fpn, level)
	}

	if err == nil {
		err = WriteEntry(w.dev, slot, entry)
	}

	if err != nil {
		w.frames.ReleaseTableFrame(fpn)
		return 0, err
	}

	w.InvokeHook(hooking.HookCtx{
		Domain: w,
		Pos:    HookPosTableAllocated,
		Item:   TableAllocation{Level: level, Frame: fpn},
	})

	return entry, nil
}
