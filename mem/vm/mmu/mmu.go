// Package mmu manages the virtual memory of processes on top of the page-table
// walker: areas and regions, mapping of page ranges, and swapping.
package mmu

import (
	"errors"
	"fmt"

	"github.com/sarchlab/pagesim/hooking"
	"github.com/sarchlab/pagesim/mem/memphy"
	"github.com/sarchlab/pagesim/mem/vm"
	"github.com/sarchlab/pagesim/mem/vm/frame"
	"github.com/sirupsen/logrus"
)

var (
	// ErrPartialMapping is returned when a range cannot be mapped completely.
	// Nothing of the range stays mapped.
	ErrPartialMapping = errors.New("range not mapped completely")

	// ErrInvalidVMA is returned for an unknown area id.
	ErrInvalidVMA = errors.New("invalid vma")

	// ErrOverlap is returned when an area would grow into another area.
	ErrOverlap = errors.New("vma overlaps another vma")

	// ErrInvalidRegion is returned for an unknown or empty region symbol, or
	// an offset outside the region.
	ErrInvalidRegion = errors.New("invalid region")

	// ErrNotResident is returned when swapping out a page without a frame.
	ErrNotResident = errors.New("page is not resident")

	// ErrNotSwapped is returned when swapping in a page that is not swapped.
	ErrNotSwapped = errors.New("page is not swapped")

	// ErrNoSwap is returned when eviction is needed but no swap device
	// exists.
	ErrNoSwap = errors.New("no swap device")
)

// Hook positions fired by the MMU. The item is a PageEvent.
var (
	HookPosPageMapped     = &hooking.HookPos{Name: "PageMapped"}
	HookPosPageReserved   = &hooking.HookPos{Name: "PageReserved"}
	HookPosPageSwappedOut = &hooking.HookPos{Name: "PageSwappedOut"}
	HookPosPageSwappedIn  = &hooking.HookPos{Name: "PageSwappedIn"}
	HookPosMapFailed      = &hooking.HookPos{Name: "MapFailed"}
)

// A PageEvent describes a change to one page of a process. For MapFailed,
// PGN is the first page of the range and Frame is the number of pages asked
// for.
type PageEvent struct {
	Owner      uint32
	PGN        uint64
	Frame      uint64
	SwapType   uint64
	SwapOffset uint64
}

// MMU manages the mm instances that share one RAM device and its swap
// devices.
type MMU struct {
	hooking.HookableBase

	layout     vm.Layout
	ram        memphy.Device
	swaps      []memphy.Device
	activeSwap int
	frames     *frame.Allocator
	walker     *vm.PageTableWalker
	log        logrus.FieldLogger
}

// AcceptHook registers the hook with the MMU and its page-table walker.
func (m *MMU) AcceptHook(hook hooking.Hook) {
	m.HookableBase.AcceptHook(hook)
	m.walker.AcceptHook(hook)
}

// Layout returns the address layout.
func (m *MMU) Layout() vm.Layout {
	return m.layout
}

// PageSize returns the size of a page in bytes.
func (m *MMU) PageSize() uint64 {
	return m.layout.PageSize()
}

// RAM returns the RAM device.
func (m *MMU) RAM() memphy.Device {
	return m.ram
}

// Swaps returns the swap devices.
func (m *MMU) Swaps() []memphy.Device {
	return m.swaps
}

// ActiveSwap returns the index of the swap device used for eviction.
func (m *MMU) ActiveSwap() int {
	return m.activeSwap
}

// NewMM creates the memory state of a process: an empty top-level table and
// the zero-length area 0.
func (m *MMU) NewMM(owner uint32) (*MM, error) {
	fpn, err := m.frames.AllocateTableFrame()
	if err != nil {
		return nil, fmt.Errorf("allocating PGD of process %d: %w", owner, err)
	}

	if err := m.walker.ClearTable(fpn, 0); err != nil {
		m.frames.ReleaseTableFrame(fpn)
		return nil, err
	}

	mm := &MM{
		owner:   owner,
		pgd:     fpn * m.layout.PageSize(),
		symbols: make([]Region, MaxSymbolTableSize),
	}
	mm.addVMA(0)

	m.log.WithFields(logrus.Fields{
		"pid": owner,
		"fpn": fpn,
	}).Debug("mm created")

	return mm, nil
}

// CreateVMA appends a zero-length area at the address.
func (m *MMU) CreateVMA(mm *MM, start uint64) (*VMA, error) {
	mm.Lock()
	defer mm.Unlock()

	if start%m.layout.PageSize() != 0 || start >= m.layout.MaxAddress() {
		return nil, fmt.Errorf("%w: 0x%x", vm.ErrInvalidAddress, start)
	}

	for _, v := range mm.vmas {
		if v.Start == start || v.Region().Overlaps(Region{start, start}) {
			return nil, fmt.Errorf("%w: 0x%x", ErrOverlap, start)
		}
	}

	return mm.addVMA(start), nil
}

// ReadPhysical reads one byte of RAM.
func (m *MMU) ReadPhysical(addr uint64) (byte, error) {
	return m.ram.Read(addr)
}

// WritePhysical writes one byte of RAM.
func (m *MMU) WritePhysical(addr uint64, data byte) error {
	return m.ram.Write(addr, data)
}

func (m *MMU) pageEvent(pos *hooking.HookPos, event PageEvent) {
	if m.NumHooks() == 0 {
		return
	}

	m.InvokeHook(hooking.HookCtx{
		Domain: m,
		Pos:    pos,
		Item:   event,
	})
}

func (m *MMU) pageLog(mm *MM, pgn uint64) logrus.FieldLogger {
	return m.log.WithFields(logrus.Fields{
		"pid": mm.owner,
		"pgn": pgn,
	})
}
