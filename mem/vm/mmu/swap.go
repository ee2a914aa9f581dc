package mmu

import (
	"errors"
	"fmt"

	"github.com/sarchlab/pagesim/mem/memphy"
	"github.com/sarchlab/pagesim/mem/vm"
)

// SwapOut moves a resident page to a frame of the active swap device and
// frees its RAM frame.
func (m *MMU) SwapOut(mm *MM, pgn uint64) error {
	mm.Lock()
	defer mm.Unlock()

	return m.swapOut(mm, pgn)
}

func (m *MMU) swapOut(mm *MM, pgn uint64) error {
	if len(m.swaps) == 0 {
		return ErrNoSwap
	}

	slot, err := m.walker.Resolve(mm.pgd, pgn)
	if err != nil {
		return err
	}

	pte, err := vm.ReadEntry(m.ram, slot)
	if err != nil {
		return err
	}

	resident, ok := vm.Decode(pte).(vm.Resident)
	if !ok {
		return fmt.Errorf("%w: page 0x%x", ErrNotResident, pgn)
	}

	swp := m.swaps[m.activeSwap]

	swpFPN, err := swp.GetFreeFrame()
	if err != nil {
		return fmt.Errorf("swapping out page 0x%x: %w", pgn, err)
	}

	err = m.moveOut(slot, resident.Frame, swp, swpFPN)
	if err != nil {
		swp.PutFreeFrame(swpFPN)
		return fmt.Errorf("swapping out page 0x%x: %w", pgn, err)
	}

	m.ram.PutFreeFrame(resident.Frame)
	mm.dropPage(pgn)

	m.pageLog(mm, pgn).
		WithField("fpn", resident.Frame).
		Debugf("swapped out to %d:%d", m.activeSwap, swpFPN)

	m.pageEvent(HookPosPageSwappedOut, PageEvent{
		Owner:      mm.owner,
		PGN:        pgn,
		Frame:      resident.Frame,
		SwapType:   uint64(m.activeSwap),
		SwapOffset: swpFPN,
	})

	return nil
}

func (m *MMU) moveOut(
	slot, fpn uint64,
	swp memphy.Device,
	swpFPN uint64,
) error {
	pte, err := vm.Encode(vm.Swapped{
		Type:   uint64(m.activeSwap),
		Offset: swpFPN,
	})
	if err != nil {
		return err
	}

	err = memphy.CopyPage(m.ram, fpn, swp, swpFPN, m.layout.PageSize())
	if err != nil {
		return err
	}

	return vm.WriteEntry(m.ram, slot, pte)
}

// SwapIn brings a swapped page back to RAM. When RAM has no free frame, the
// oldest resident page of the mm is swapped out first.
func (m *MMU) SwapIn(mm *MM, pgn uint64) error {
	mm.Lock()
	defer mm.Unlock()

	_, err := m.swapIn(mm, pgn)

	return err
}

func (m *MMU) swapIn(mm *MM, pgn uint64) (uint64, error) {
	slot, err := m.walker.Resolve(mm.pgd, pgn)
	if err != nil {
		return 0, err
	}

	pte, err := vm.ReadEntry(m.ram, slot)
	if err != nil {
		return 0, err
	}

	swapped, ok := vm.Decode(pte).(vm.Swapped)
	if !ok {
		return 0, fmt.Errorf("%w: page 0x%x", ErrNotSwapped, pgn)
	}

	if swapped.Type >= uint64(len(m.swaps)) {
		return 0, fmt.Errorf("%w: page 0x%x on swap %d",
			vm.ErrInvalidSwapLocation, pgn, swapped.Type)
	}

	swp := m.swaps[swapped.Type]

	fpn, err := m.getFrameOrEvict(mm)
	if err != nil {
		return 0, fmt.Errorf("swapping in page 0x%x: %w", pgn, err)
	}

	err = m.moveIn(slot, swp, swapped.Offset, fpn)
	if err != nil {
		m.ram.PutFreeFrame(fpn)
		return 0, fmt.Errorf("swapping in page 0x%x: %w", pgn, err)
	}

	swp.PutFreeFrame(swapped.Offset)
	mm.enlistPage(pgn)

	m.pageLog(mm, pgn).
		WithField("fpn", fpn).
		Debugf("swapped in from %d:%d", swapped.Type, swapped.Offset)

	m.pageEvent(HookPosPageSwappedIn, PageEvent{
		Owner:      mm.owner,
		PGN:        pgn,
		Frame:      fpn,
		SwapType:   swapped.Type,
		SwapOffset: swapped.Offset,
	})

	return fpn, nil
}

func (m *MMU) moveIn(
	slot uint64,
	swp memphy.Device,
	swpFPN, fpn uint64,
) error {
	pte, err := vm.Encode(vm.Resident{Frame: fpn})
	if err != nil {
		return err
	}

	err = memphy.CopyPage(swp, swpFPN, m.ram, fpn, m.layout.PageSize())
	if err != nil {
		return err
	}

	return vm.WriteEntry(m.ram, slot, pte)
}

// getFrameOrEvict takes a free RAM frame, swapping out the oldest resident
// page of the mm if the pool is empty.
func (m *MMU) getFrameOrEvict(mm *MM) (uint64, error) {
	fpn, err := m.ram.GetFreeFrame()
	if err == nil || !errors.Is(err, memphy.ErrOutOfFrames) {
		return fpn, err
	}

	victim, ok := mm.popVictim()
	if !ok {
		return 0, err
	}

	if err := m.swapOut(mm, victim); err != nil {
		mm.requeueVictim(victim)
		return 0, fmt.Errorf("evicting page 0x%x: %w", victim, err)
	}

	return m.ram.GetFreeFrame()
}

// FindVictim removes and returns the oldest resident page of the mm.
func (m *MMU) FindVictim(mm *MM) (uint64, bool) {
	mm.Lock()
	defer mm.Unlock()

	return mm.popVictim()
}
