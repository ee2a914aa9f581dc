package mmu

import (
	"fmt"

	"github.com/sarchlab/pagesim/mem/vm"
)

// LookupEntry returns the decoded leaf entry of the page. It does not create
// tables.
func (m *MMU) LookupEntry(mm *MM, pgn uint64) (vm.Mapping, error) {
	mm.Lock()
	defer mm.Unlock()

	pte, err := m.walker.Lookup(mm.pgd, pgn)
	if err != nil {
		return vm.Absent{}, err
	}

	return vm.Decode(pte), nil
}

// SetEntry overwrites the raw leaf entry of the page. The tables above the
// leaf must exist.
func (m *MMU) SetEntry(mm *MM, pgn uint64, pte vm.PTE) error {
	mm.Lock()
	defer mm.Unlock()

	slot, err := m.walker.Resolve(mm.pgd, pgn)
	if err != nil {
		return err
	}

	return vm.WriteEntry(m.ram, slot, pte)
}

// SetFrame binds the page to a frame, creating missing tables. The frame is
// owned by the caller; the page does not join the FIFO.
func (m *MMU) SetFrame(mm *MM, pgn, fpn uint64) error {
	mm.Lock()
	defer mm.Unlock()

	_, err := m.writeLeaf(mm, pgn, vm.Resident{Frame: fpn})

	return err
}

// SetSwap points the page at a swap location. The tables above the leaf must
// exist.
func (m *MMU) SetSwap(mm *MM, pgn, swpType, swpOffset uint64) error {
	mm.Lock()
	defer mm.Unlock()

	pte, err := vm.Encode(vm.Swapped{Type: swpType, Offset: swpOffset})
	if err != nil {
		return err
	}

	slot, err := m.walker.Resolve(mm.pgd, pgn)
	if err != nil {
		return fmt.Errorf("setting swap of page 0x%x: %w", pgn, err)
	}

	return vm.WriteEntry(m.ram, slot, pte)
}

// Translate maps a virtual address of the process to a RAM address.
func (m *MMU) Translate(mm *MM, vAddr uint64) (uint64, error) {
	mm.Lock()
	defer mm.Unlock()

	return m.walker.Translate(mm.pgd, vAddr)
}
