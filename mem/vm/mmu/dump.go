package mmu

import (
	"fmt"
	"io"

	"github.com/sarchlab/pagesim/mem/vm"
)

// A LeafEntry is a present leaf of a page table.
type LeafEntry struct {
	PGN     uint64
	PTE     vm.PTE
	Mapping vm.Mapping
}

// Entries returns the present leaves of the pages covering [start, end), in
// page order. Pages whose tables were never built are skipped.
func (m *MMU) Entries(mm *MM, start, end uint64) ([]LeafEntry, error) {
	mm.Lock()
	defer mm.Unlock()

	return m.entries(mm, start, end)
}

func (m *MMU) entries(mm *MM, start, end uint64) ([]LeafEntry, error) {
	end = min(end, m.layout.MaxAddress())
	if end <= start {
		return nil, nil
	}

	var leaves []LeafEntry

	err := m.walker.VisitLeaves(mm.pgd,
		m.layout.PageNum(start), m.layout.PageNum(end-1),
		func(pgn uint64, pte vm.PTE) error {
			leaves = append(leaves, LeafEntry{
				PGN:     pgn,
				PTE:     pte,
				Mapping: vm.Decode(pte),
			})

			return nil
		})

	return leaves, err
}

// DumpPageTable prints the present leaves of the pages covering [start, end).
func (m *MMU) DumpPageTable(w io.Writer, mm *MM, start, end uint64) error {
	mm.Lock()
	defer mm.Unlock()

	leaves, err := m.entries(mm, start, end)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "print_pgtbl: %d - %d\n", start, end)

	for _, l := range leaves {
		fmt.Fprintf(w, "%08x: %08x %s\n", l.PGN, uint32(l.PTE),
			describeMapping(l.Mapping))
	}

	return nil
}

func describeMapping(mapping vm.Mapping) string {
	switch mapping := mapping.(type) {
	case vm.Resident:
		if mapping.Dirty {
			return fmt.Sprintf("fpn %d dirty", mapping.Frame)
		}

		return fmt.Sprintf("fpn %d", mapping.Frame)
	case vm.Swapped:
		return fmt.Sprintf("swap %d:%d", mapping.Type, mapping.Offset)
	case vm.Reserved:
		return "reserved"
	default:
		return "absent"
	}
}
