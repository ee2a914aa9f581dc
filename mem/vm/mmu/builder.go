package mmu

import (
	"github.com/sarchlab/pagesim/mem/memphy"
	"github.com/sarchlab/pagesim/mem/vm"
	"github.com/sarchlab/pagesim/mem/vm/frame"
	"github.com/sirupsen/logrus"
)

// A Builder can build MMUs.
type Builder struct {
	layout     vm.Layout
	ram        memphy.Device
	swaps      []memphy.Device
	activeSwap int
	log        logrus.FieldLogger
}

// MakeBuilder creates a new builder with the five-level layout.
func MakeBuilder() Builder {
	return Builder{
		layout: vm.MM64Layout,
		log:    logrus.StandardLogger(),
	}
}

// WithLayout sets the address layout of the page tables.
func (b Builder) WithLayout(layout vm.Layout) Builder {
	b.layout = layout
	return b
}

// WithRAM sets the device that holds page tables and resident pages.
func (b Builder) WithRAM(ram memphy.Device) Builder {
	b.ram = ram
	return b
}

// WithSwaps sets the swap devices. The index of a device in the list is its
// swap type.
func (b Builder) WithSwaps(swaps ...memphy.Device) Builder {
	b.swaps = swaps
	return b
}

// WithActiveSwap selects the swap device that receives evicted pages.
func (b Builder) WithActiveSwap(i int) Builder {
	b.activeSwap = i
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(log logrus.FieldLogger) Builder {
	b.log = log
	return b
}

// Build creates the MMU.
func (b Builder) Build() *MMU {
	b.parametersMustBeValid()

	m := &MMU{
		layout:     b.layout,
		ram:        b.ram,
		swaps:      append([]memphy.Device(nil), b.swaps...),
		activeSwap: b.activeSwap,
		log:        b.log,
	}

	m.frames = frame.NewAllocator(b.ram, b.log)
	m.walker = vm.NewPageTableWalker(b.layout, b.ram, m.frames)

	return m
}

func (b Builder) parametersMustBeValid() {
	if b.ram == nil {
		panic("RAM is not set")
	}

	if len(b.swaps) > 0 &&
		(b.activeSwap < 0 || b.activeSwap >= len(b.swaps)) {
		panic("active swap is not one of the swap devices")
	}

	if uint64(len(b.swaps)) > vm.MaxSwapType+1 {
		panic("too many swap devices")
	}

	if b.log == nil {
		panic("logger is not set")
	}
}
