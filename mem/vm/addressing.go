// Package vm holds the paging primitives of the simulated MMU: the address
// layout that splits a virtual address into per-level indices, the 32-bit
// page-table entry codec, and the page-table walker that operates over a
// physical memory device.
package vm

import (
	"errors"
	"fmt"
)

// A Level describes the index field of one page-table level.
type Level struct {
	Name  string
	Shift uint64
	Bits  uint64
}

// Entries returns the number of slots in a table of this level.
func (l Level) Entries() uint64 {
	return 1 << l.Bits
}

// A Layout describes how virtual addresses are split across the page-table
// hierarchy. Levels are ordered from the top (L1) to the leaf.
type Layout struct {
	PageShift uint64
	EntrySize uint64
	Levels    []Level
}

// MM64Layout is the five-level layout. Each level indexes 9 bits above the
// 12-bit page offset, giving a 57-bit virtual address.
var MM64Layout = Layout{
	PageShift: 12,
	EntrySize: 4,
	Levels: []Level{
		{Name: "PGD", Shift: 48, Bits: 9},
		{Name: "P4D", Shift: 39, Bits: 9},
		{Name: "PUD", Shift: 30, Bits: 9},
		{Name: "PMD", Shift: 21, Bits: 9},
		{Name: "PT", Shift: 12, Bits: 9},
	},
}

// MM48Layout is the four-level layout with a 48-bit virtual address.
var MM48Layout = Layout{
	PageShift: 12,
	EntrySize: 4,
	Levels: []Level{
		{Name: "PGD", Shift: 39, Bits: 9},
		{Name: "PUD", Shift: 30, Bits: 9},
		{Name: "PMD", Shift: 21, Bits: 9},
		{Name: "PT", Shift: 12, Bits: 9},
	},
}

// LayoutFor returns the layout of an address mode, "mm64" or "mm48".
func LayoutFor(mode string) (Layout, error) {
	switch mode {
	case "mm64", "":
		return MM64Layout, nil
	case "mm48":
		return MM48Layout, nil
	default:
		return Layout{}, fmt.Errorf("unknown address mode %q", mode)
	}
}

// PageSize returns the size of a page in bytes.
func (l Layout) PageSize() uint64 {
	return 1 << l.PageShift
}

// NumLevels returns the depth of the hierarchy.
func (l Layout) NumLevels() int {
	return len(l.Levels)
}

// AddressBits returns the width of a virtual address.
func (l Layout) AddressBits() uint64 {
	top := l.Levels[0]
	return top.Shift + top.Bits
}

// MaxAddress returns one past the largest virtual address.
func (l Layout) MaxAddress() uint64 {
	return 1 << l.AddressBits()
}

// TableBytes returns how many bytes of its frame a table of the level uses.
func (l Layout) TableBytes(level int) uint64 {
	return l.Levels[level].Entries() * l.EntrySize
}

// NumPages returns the number of virtual pages the layout can address.
func (l Layout) NumPages() uint64 {
	return l.MaxAddress() >> l.PageShift
}

// Offset returns the in-page offset of the address.
func (l Layout) Offset(addr uint64) uint64 {
	return addr & (l.PageSize() - 1)
}

// PageNum returns the page number of the address.
func (l Layout) PageNum(addr uint64) uint64 {
	return addr >> l.PageShift
}

// AlignUp rounds size up to a whole number of pages.
func (l Layout) AlignUp(size uint64) uint64 {
	mask := l.PageSize() - 1
	return (size + mask) &^ mask
}

// Indices splits the address into one index per level, top level first.
func (l Layout) Indices(addr uint64) []uint64 {
	indices := make([]uint64, len(l.Levels))
	for i, level := range l.Levels {
		indices[i] = (addr >> level.Shift) & (level.Entries() - 1)
	}

	return indices
}

// IndicesFromPageNum splits a page number into one index per level.
func (l Layout) IndicesFromPageNum(pgn uint64) []uint64 {
	return l.Indices(pgn << l.PageShift)
}

// Compose is the inverse of Indices. It rebuilds an address from its level
// indices and in-page offset.
func (l Layout) Compose(indices []uint64, offset uint64) uint64 {
	addr := offset & (l.PageSize() - 1)
	for i, level := range l.Levels {
		addr |= (indices[i] & (level.Entries() - 1)) << level.Shift
	}

	return addr
}

// Validate checks that the index fields are contiguous, disjoint, sit right
// above the page offset, and that every table fits in one page.
func (l Layout) Validate() error {
	if len(l.Levels) == 0 {
		return errors.New("layout has no levels")
	}

	if l.EntrySize == 0 {
		return errors.New("layout entry size must be positive")
	}

	expectedShift := l.PageShift
	for i := len(l.Levels) - 1; i >= 0; i-- {
		level := l.Levels[i]
		if level.Shift != expectedShift {
			return fmt.Errorf("level %s starts at bit %d, expected %d",
				level.Name, level.Shift, expectedShift)
		}

		if l.TableBytes(i) > l.PageSize() {
			return fmt.Errorf("level %s table does not fit in a page",
				level.Name)
		}

		expectedShift += level.Bits
	}

	if expectedShift > 64 {
		return errors.New("layout is wider than 64 bits")
	}

	return nil
}
