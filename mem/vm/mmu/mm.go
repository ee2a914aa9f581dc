package mmu

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// MaxSymbolTableSize is the number of region symbols a process can hold.
const MaxSymbolTableSize = 30

// A Region is a half-open range [Start, End) of virtual addresses.
type Region struct {
	Start uint64
	End   uint64
}

// Size returns the number of bytes in the region.
func (r Region) Size() uint64 {
	if r.End <= r.Start {
		return 0
	}

	return r.End - r.Start
}

// Empty tells whether the region covers no byte.
func (r Region) Empty() bool {
	return r.Size() == 0
}

// Overlaps tells whether the two regions share an address. An empty region
// overlaps a region that strictly contains its start.
func (r Region) Overlaps(o Region) bool {
	switch {
	case r.Empty() && o.Empty():
		return false
	case r.Empty():
		return o.Start < r.Start && r.Start < o.End
	case o.Empty():
		return r.Start < o.Start && o.Start < r.End
	default:
		return r.Start < o.End && o.Start < r.End
	}
}

func (r Region) String() string {
	return fmt.Sprintf("rg[%d->%d]", r.Start, r.End)
}

// A VMA is a contiguous virtual area of a process. Addresses in
// [Start, Sbrk) have been handed out by the area's growth; Sbrk never passes
// End.
type VMA struct {
	ID    int
	Start uint64
	End   uint64
	Sbrk  uint64

	freeRegions []Region
	mm          *MM
}

// MM returns the mm instance that owns the area.
func (v *VMA) MM() *MM {
	return v.mm
}

// FreeRegions returns a copy of the free-region list, head first.
func (v *VMA) FreeRegions() []Region {
	v.mm.Lock()
	defer v.mm.Unlock()

	return slices.Clone(v.freeRegions)
}

// Region returns the extent of the area.
func (v *VMA) Region() Region {
	return Region{Start: v.Start, End: v.End}
}

func (v *VMA) String() string {
	return fmt.Sprintf("va[%d->%d]", v.Start, v.End)
}

// takeFreeRegion carves size bytes from the first free region large enough.
func (v *VMA) takeFreeRegion(size uint64) (Region, bool) {
	for i, rg := range v.freeRegions {
		if rg.Size() < size {
			continue
		}

		taken := Region{Start: rg.Start, End: rg.Start + size}

		rg.Start += size
		if rg.Empty() {
			v.freeRegions = slices.Delete(v.freeRegions, i, i+1)
		} else {
			v.freeRegions[i] = rg
		}

		return taken, true
	}

	return Region{}, false
}

func (v *VMA) putFreeRegion(rg Region) {
	if rg.Empty() {
		return
	}

	v.freeRegions = slices.Insert(v.freeRegions, 0, rg)
}

// An MM is the memory-management state of one process.
type MM struct {
	sync.Mutex

	owner   uint32
	pgd     uint64
	vmas    []*VMA
	fifo    []uint64
	symbols []Region
}

// Owner returns the id of the process that owns the mm.
func (mm *MM) Owner() uint32 {
	return mm.owner
}

// PGD returns the physical address of the top-level table.
func (mm *MM) PGD() uint64 {
	return mm.pgd
}

// VMA returns the area with the given id.
func (mm *MM) VMA(id int) (*VMA, error) {
	mm.Lock()
	defer mm.Unlock()

	return mm.vma(id)
}

// VMAs returns the areas in order.
func (mm *MM) VMAs() []*VMA {
	mm.Lock()
	defer mm.Unlock()

	return slices.Clone(mm.vmas)
}

// FIFO returns the resident page numbers, oldest first.
func (mm *MM) FIFO() []uint64 {
	mm.Lock()
	defer mm.Unlock()

	return slices.Clone(mm.fifo)
}

// Symbol returns the region recorded for the symbol id.
func (mm *MM) Symbol(id int) (Region, error) {
	mm.Lock()
	defer mm.Unlock()

	if err := symbolMustBeInRange(id); err != nil {
		return Region{}, err
	}

	return mm.symbols[id], nil
}

// Symbols returns a copy of the symbol table, indexed by symbol id.
func (mm *MM) Symbols() []Region {
	mm.Lock()
	defer mm.Unlock()

	return slices.Clone(mm.symbols)
}

func symbolMustBeInRange(id int) error {
	if id < 0 || id >= MaxSymbolTableSize {
		return fmt.Errorf("%w: symbol %d", ErrInvalidRegion, id)
	}

	return nil
}

func (mm *MM) vma(id int) (*VMA, error) {
	for _, v := range mm.vmas {
		if v.ID == id {
			return v, nil
		}
	}

	return nil, fmt.Errorf("%w: %d", ErrInvalidVMA, id)
}

func (mm *MM) addVMA(start uint64) *VMA {
	v := &VMA{
		ID:          len(mm.vmas),
		Start:       start,
		End:         start,
		Sbrk:        start,
		freeRegions: []Region{{Start: start, End: start}},
		mm:          mm,
	}
	mm.vmas = append(mm.vmas, v)

	return v
}

// overlapsOtherVMA tells whether the area would run into any VMA other than
// the one with the given id.
func (mm *MM) overlapsOtherVMA(id int, area Region) bool {
	for _, v := range mm.vmas {
		if v.ID == id {
			continue
		}

		if area.Overlaps(v.Region()) {
			return true
		}
	}

	return false
}

func (mm *MM) enlistPage(pgn uint64) {
	mm.fifo = append(mm.fifo, pgn)
}

func (mm *MM) dropPage(pgn uint64) {
	mm.fifo = slices.DeleteFunc(mm.fifo, func(p uint64) bool {
		return p == pgn
	})
}

func (mm *MM) popVictim() (uint64, bool) {
	if len(mm.fifo) == 0 {
		return 0, false
	}

	pgn := mm.fifo[0]
	mm.fifo = mm.fifo[1:]

	return pgn, true
}

func (mm *MM) requeueVictim(pgn uint64) {
	mm.fifo = slices.Insert(mm.fifo, 0, pgn)
}

// FIFOString lists the resident pages, oldest first.
func (mm *MM) FIFOString() string {
	mm.Lock()
	defer mm.Unlock()

	parts := make([]string, 0, len(mm.fifo))
	for _, pgn := range mm.fifo {
		parts = append(parts, fmt.Sprintf("pn[%d]", pgn))
	}

	return "[" + strings.Join(parts, " ") + "]"
}

// String lists the areas and their free regions.
func (mm *MM) String() string {
	mm.Lock()
	defer mm.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "mm[pid %d pgd 0x%x]", mm.owner, mm.pgd)

	for _, v := range mm.vmas {
		fmt.Fprintf(&sb, "\n  %d %s sbrk %d free", v.ID, v, v.Sbrk)

		for _, rg := range v.freeRegions {
			fmt.Fprintf(&sb, " %s", rg)
		}
	}

	return sb.String()
}
