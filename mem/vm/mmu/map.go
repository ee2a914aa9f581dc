package mmu

import (
	"fmt"

	"github.com/sarchlab/pagesim/mem/memphy"
	"github.com/sarchlab/pagesim/mem/vm"
	"github.com/sarchlab/pagesim/mem/vm/frame"
	"github.com/sirupsen/logrus"
)

// leafUndo remembers the entry a leaf slot held before this call wrote it.
type leafUndo struct {
	slot uint64
	old  vm.PTE
}

// MapRange backs pgnum pages starting at the page-aligned address with fresh
// frames. Either every page is mapped or none is: a shortfall of frames, or
// any failure while installing, releases the frames of this call and restores
// the entries it had written. Mapped pages join the FIFO in address order.
func (m *MMU) MapRange(mm *MM, addr uint64, pgnum int) (int, Region, error) {
	mm.Lock()
	defer mm.Unlock()

	return m.mapRange(mm, addr, pgnum)
}

func (m *MMU) mapRange(mm *MM, addr uint64, pgnum int) (int, Region, error) {
	if err := m.rangeMustBeValid(addr, pgnum); err != nil {
		return 0, Region{}, err
	}

	if pgnum == 0 {
		return 0, Region{Start: addr, End: addr}, nil
	}

	start := m.layout.PageNum(addr)

	if uint64(pgnum) > vm.MaxFPN {
		m.mapFailed(mm, start, pgnum)

		return 0, Region{}, fmt.Errorf("%w: %d pages exceed the frame range: %w",
			ErrPartialMapping, pgnum, memphy.ErrOutOfFrames)
	}

	list, got := m.frames.Allocate(pgnum)
	if got < pgnum {
		m.frames.Release(list)
		m.mapFailed(mm, start, pgnum)

		return 0, Region{}, fmt.Errorf("%w: got %d of %d frames: %w",
			ErrPartialMapping, got, pgnum, memphy.ErrOutOfFrames)
	}

	undos, err := m.installFrames(mm, start, list)
	if err != nil {
		m.restoreLeaves(undos)
		m.frames.Release(list)
		m.mapFailed(mm, start, pgnum)

		return 0, Region{}, fmt.Errorf("%w: page 0x%x: %w",
			ErrPartialMapping, start+uint64(len(undos)), err)
	}

	for i, u := range undos {
		pgn := start + uint64(i)
		fpn, _ := list.Take()

		m.discard(mm, pgn, vm.Decode(u.old))
		mm.enlistPage(pgn)

		m.pageEvent(HookPosPageMapped, PageEvent{
			Owner: mm.owner,
			PGN:   pgn,
			Frame: fpn,
		})
	}

	m.log.WithFields(logrus.Fields{
		"pid":   mm.owner,
		"addr":  addr,
		"count": pgnum,
	}).Debug("range mapped")

	return pgnum, Region{
		Start: addr,
		End:   addr + uint64(pgnum)*m.layout.PageSize(),
	}, nil
}

// installFrames writes one resident entry per held frame. The returned undo
// list covers every leaf written, also when an error is returned.
func (m *MMU) installFrames(
	mm *MM,
	start uint64,
	list *frame.List,
) ([]leafUndo, error) {
	undos := make([]leafUndo, 0, list.Len())

	for i := 0; i < list.Len(); i++ {
		u, err := m.writeLeaf(mm, start+uint64(i),
			vm.Resident{Frame: list.At(i)})
		if err != nil {
			return undos, err
		}

		undos = append(undos, u)
	}

	return undos, nil
}

func (m *MMU) writeLeaf(
	mm *MM,
	pgn uint64,
	mapping vm.Mapping,
) (leafUndo, error) {
	pte, err := vm.Encode(mapping)
	if err != nil {
		return leafUndo{}, err
	}

	slot, err := m.walker.ResolveOrAllocate(mm.pgd, pgn)
	if err != nil {
		return leafUndo{}, err
	}

	old, err := vm.ReadEntry(m.ram, slot)
	if err != nil {
		return leafUndo{}, err
	}

	if err := vm.WriteEntry(m.ram, slot, pte); err != nil {
		return leafUndo{}, err
	}

	return leafUndo{slot: slot, old: old}, nil
}

func (m *MMU) restoreLeaves(undos []leafUndo) {
	for i := len(undos) - 1; i >= 0; i-- {
		if err := vm.WriteEntry(m.ram, undos[i].slot, undos[i].old); err != nil {
			m.log.WithError(err).
				WithField("addr", undos[i].slot).
				Error("cannot restore page-table entry")
		}
	}
}

// discard gives back the storage of a mapping that was replaced.
func (m *MMU) discard(mm *MM, pgn uint64, old vm.Mapping) {
	switch old := old.(type) {
	case vm.Resident:
		m.ram.PutFreeFrame(old.Frame)
		mm.dropPage(pgn)
	case vm.Swapped:
		if old.Type < uint64(len(m.swaps)) {
			m.swaps[old.Type].PutFreeFrame(old.Offset)
		}
	}
}

func (m *MMU) mapFailed(mm *MM, start uint64, pgnum int) {
	m.log.WithFields(logrus.Fields{
		"pid":   mm.owner,
		"pgn":   start,
		"count": pgnum,
	}).Warn("cannot map range")

	m.pageEvent(HookPosMapFailed, PageEvent{
		Owner: mm.owner,
		PGN:   start,
		Frame: uint64(pgnum),
	})
}

func (m *MMU) rangeMustBeValid(addr uint64, pgnum int) error {
	if pgnum < 0 {
		return fmt.Errorf("%w: %d pages", vm.ErrInvalidAddress, pgnum)
	}

	pageSize := m.layout.PageSize()
	if addr%pageSize != 0 {
		return fmt.Errorf("%w: 0x%x is not page aligned",
			vm.ErrInvalidAddress, addr)
	}

	if addr/pageSize+uint64(pgnum) > m.layout.NumPages() {
		return fmt.Errorf("%w: 0x%x + %d pages",
			vm.ErrInvalidAddress, addr, pgnum)
	}

	return nil
}

// MarkReservedRange installs present entries without frames over pgnum pages
// starting at the address. Pages that already have a frame or a swap slot
// keep them. On failure the entries written by the call are restored.
func (m *MMU) MarkReservedRange(mm *MM, addr uint64, pgnum int) error {
	mm.Lock()
	defer mm.Unlock()

	if err := m.rangeMustBeValid(addr, pgnum); err != nil {
		return err
	}

	start := m.layout.PageNum(addr)
	var (
		undos    []leafUndo
		reserved []uint64
	)

	for i := 0; i < pgnum; i++ {
		pgn := start + uint64(i)

		if m.isBacked(mm, pgn) {
			m.pageLog(mm, pgn).Debug("page already backed, not reserved")
			continue
		}

		u, err := m.writeLeaf(mm, pgn, vm.Reserved{})
		if err != nil {
			m.restoreLeaves(undos)
			return fmt.Errorf("reserving page 0x%x: %w", pgn, err)
		}

		undos = append(undos, u)
		reserved = append(reserved, pgn)
	}

	for _, pgn := range reserved {
		m.pageEvent(HookPosPageReserved, PageEvent{Owner: mm.owner, PGN: pgn})
	}

	return nil
}

func (m *MMU) isBacked(mm *MM, pgn uint64) bool {
	pte, err := m.walker.Lookup(mm.pgd, pgn)
	if err != nil {
		return false
	}

	switch vm.Decode(pte).(type) {
	case vm.Resident, vm.Swapped:
		return true
	default:
		return false
	}
}

// GrowArea extends the area by incSize bytes, rounded up to whole pages, and
// maps the new pages. The area's end and break move only when the mapping
// succeeds. It returns the new part of the area.
func (m *MMU) GrowArea(mm *MM, vmaID int, incSize uint64) (Region, error) {
	mm.Lock()
	defer mm.Unlock()

	v, err := mm.vma(vmaID)
	if err != nil {
		return Region{}, err
	}

	return m.growArea(mm, v, incSize)
}

func (m *MMU) growArea(mm *MM, v *VMA, incSize uint64) (Region, error) {
	incAmt := m.layout.AlignUp(incSize)
	area := Region{Start: v.Sbrk, End: v.Sbrk + incAmt}

	if area.End < area.Start {
		return Region{}, fmt.Errorf("%w: grow by %d", vm.ErrInvalidAddress,
			incSize)
	}

	if mm.overlapsOtherVMA(v.ID, area) {
		return Region{}, fmt.Errorf("%w: vma %d growing to %s",
			ErrOverlap, v.ID, area)
	}

	pages := int(incAmt / m.layout.PageSize())
	if _, _, err := m.mapRange(mm, area.Start, pages); err != nil {
		return Region{}, fmt.Errorf("growing vma %d: %w", v.ID, err)
	}

	v.Sbrk = area.End
	v.End = max(v.End, area.End)

	m.log.WithFields(logrus.Fields{
		"pid":  mm.owner,
		"vma":  v.ID,
		"addr": area.Start,
	}).Debugf("vma grown by %d bytes", incAmt)

	return area, nil
}
