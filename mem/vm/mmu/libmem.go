package mmu

import (
	"fmt"

	"github.com/sarchlab/pagesim/mem/vm"
	"github.com/sirupsen/logrus"
)

// Alloc reserves size bytes in the area and records them under the region
// symbol. A free region of the area is reused if one is large enough;
// otherwise the area grows at its break and the unused tail of the last new
// page becomes a free region. It returns the start address of the region.
func (m *MMU) Alloc(mm *MM, vmaID, rgID int, size uint64) (uint64, error) {
	mm.Lock()
	defer mm.Unlock()

	if err := symbolMustBeInRange(rgID); err != nil {
		return 0, err
	}

	if !mm.symbols[rgID].Empty() {
		return 0, fmt.Errorf("%w: symbol %d in use", ErrInvalidRegion, rgID)
	}

	if size == 0 {
		return 0, fmt.Errorf("%w: empty allocation", ErrInvalidRegion)
	}

	v, err := mm.vma(vmaID)
	if err != nil {
		return 0, err
	}

	if rg, ok := v.takeFreeRegion(size); ok {
		mm.symbols[rgID] = rg
		return rg.Start, nil
	}

	oldSbrk := v.Sbrk

	area, err := m.growArea(mm, v, size)
	if err != nil {
		return 0, err
	}

	rg := Region{Start: oldSbrk, End: oldSbrk + size}
	v.putFreeRegion(Region{Start: rg.End, End: area.End})
	mm.symbols[rgID] = rg

	m.log.WithFields(logrus.Fields{
		"pid":  mm.owner,
		"vma":  vmaID,
		"addr": rg.Start,
	}).Debugf("region %d allocated", rgID)

	return rg.Start, nil
}

// Free gives the region of the symbol back to the free list of the area and
// clears the symbol. The pages stay mapped.
func (m *MMU) Free(mm *MM, vmaID, rgID int) error {
	mm.Lock()
	defer mm.Unlock()

	if err := symbolMustBeInRange(rgID); err != nil {
		return err
	}

	rg := mm.symbols[rgID]
	if rg.Empty() {
		return fmt.Errorf("%w: symbol %d is not allocated",
			ErrInvalidRegion, rgID)
	}

	v, err := mm.vma(vmaID)
	if err != nil {
		return err
	}

	v.putFreeRegion(rg)
	mm.symbols[rgID] = Region{}

	return nil
}

// ReadRegion reads the byte at the offset of the region, bringing the page
// into RAM if needed.
func (m *MMU) ReadRegion(mm *MM, rgID int, offset uint64) (byte, error) {
	mm.Lock()
	defer mm.Unlock()

	vAddr, err := mm.regionAddress(rgID, offset)
	if err != nil {
		return 0, err
	}

	pAddr, _, err := m.pageIn(mm, vAddr)
	if err != nil {
		return 0, err
	}

	return m.ram.Read(pAddr)
}

// WriteRegion writes the byte at the offset of the region, bringing the page
// into RAM if needed, and marks the page dirty.
func (m *MMU) WriteRegion(mm *MM, rgID int, offset uint64, data byte) error {
	mm.Lock()
	defer mm.Unlock()

	vAddr, err := mm.regionAddress(rgID, offset)
	if err != nil {
		return err
	}

	pAddr, slot, err := m.pageIn(mm, vAddr)
	if err != nil {
		return err
	}

	if err := m.ram.Write(pAddr, data); err != nil {
		return err
	}

	pte, err := vm.Encode(vm.Resident{
		Frame: pAddr / m.layout.PageSize(),
		Dirty: true,
	})
	if err != nil {
		return err
	}

	return vm.WriteEntry(m.ram, slot, pte)
}

func (mm *MM) regionAddress(rgID int, offset uint64) (uint64, error) {
	if err := symbolMustBeInRange(rgID); err != nil {
		return 0, err
	}

	rg := mm.symbols[rgID]
	if offset >= rg.Size() {
		return 0, fmt.Errorf("%w: offset %d outside %s of symbol %d",
			ErrInvalidRegion, offset, rg, rgID)
	}

	return rg.Start + offset, nil
}

// pageIn makes the page of the address resident and returns the RAM address
// and the leaf slot. Swapped pages are swapped in; reserved pages get a
// zeroed frame.
func (m *MMU) pageIn(mm *MM, vAddr uint64) (uint64, uint64, error) {
	pgn := m.layout.PageNum(vAddr)

	slot, err := m.walker.Resolve(mm.pgd, pgn)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: 0x%x: %w", vm.ErrPageFault, vAddr, err)
	}

	pte, err := vm.ReadEntry(m.ram, slot)
	if err != nil {
		return 0, 0, err
	}

	var fpn uint64

	switch mapping := vm.Decode(pte).(type) {
	case vm.Resident:
		fpn = mapping.Frame
	case vm.Swapped:
		fpn, err = m.swapIn(mm, pgn)
	case vm.Reserved:
		fpn, err = m.backReserved(mm, pgn, slot)
	default:
		err = fmt.Errorf("%w: 0x%x", vm.ErrPageFault, vAddr)
	}

	if err != nil {
		return 0, 0, err
	}

	return fpn*m.layout.PageSize() + m.layout.Offset(vAddr), slot, nil
}

func (m *MMU) backReserved(mm *MM, pgn, slot uint64) (uint64, error) {
	fpn, err := m.getFrameOrEvict(mm)
	if err != nil {
		return 0, fmt.Errorf("backing page 0x%x: %w", pgn, err)
	}

	pte, err := vm.Encode(vm.Resident{Frame: fpn})
	if err == nil {
		err = m.zeroFrame(fpn)
	}

	if err == nil {
		err = vm.WriteEntry(m.ram, slot, pte)
	}

	if err != nil {
		m.ram.PutFreeFrame(fpn)
		return 0, err
	}

	mm.enlistPage(pgn)

	m.pageEvent(HookPosPageMapped, PageEvent{
		Owner: mm.owner,
		PGN:   pgn,
		Frame: fpn,
	})

	return fpn, nil
}

func (m *MMU) zeroFrame(fpn uint64) error {
	pageSize := m.layout.PageSize()
	for i := uint64(0); i < pageSize; i++ {
		if err := m.ram.Write(fpn*pageSize+i, 0); err != nil {
			return err
		}
	}

	return nil
}
