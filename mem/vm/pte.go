package vm

import "fmt"

// PTE is the 32-bit page-table entry as stored in physical memory.
type PTE uint32

// Bit layout of a PTE. The frame-number field and the swap fields overlap;
// the swapped bit selects which one is meaningful.
const (
	PresentMask  PTE = 1 << 31
	SwappedMask  PTE = 1 << 30
	ReservedMask PTE = 1 << 29
	DirtyMask    PTE = 1 << 28

	FPNLoBit = 0
	FPNMask  PTE = 0x1FFF << FPNLoBit

	SwapTypeLoBit = 0
	SwapTypeMask  PTE = 0x1F << SwapTypeLoBit

	SwapOffsetLoBit = 5
	SwapOffsetMask  PTE = 0x1FFFFF << SwapOffsetLoBit
)

// Largest values the variable fields can carry.
const (
	MaxFPN        = uint64(FPNMask >> FPNLoBit)
	MaxSwapType   = uint64(SwapTypeMask >> SwapTypeLoBit)
	MaxSwapOffset = uint64(SwapOffsetMask >> SwapOffsetLoBit)
)

// Present tells whether the entry is valid.
func (p PTE) Present() bool {
	return p&PresentMask != 0
}

// Swapped tells whether the page lives in the swap store.
func (p PTE) Swapped() bool {
	return p&SwappedMask != 0
}

// Dirty tells whether the page was modified since it was loaded.
func (p PTE) Dirty() bool {
	return p&DirtyMask != 0
}

// FPN returns the frame-number field.
func (p PTE) FPN() uint64 {
	return uint64((p & FPNMask) >> FPNLoBit)
}

// SwapType returns the swap-type field.
func (p PTE) SwapType() uint64 {
	return uint64((p & SwapTypeMask) >> SwapTypeLoBit)
}

// SwapOffset returns the swap-offset field.
func (p PTE) SwapOffset() uint64 {
	return uint64((p & SwapOffsetMask) >> SwapOffsetLoBit)
}

func setVal(p PTE, val uint64, mask PTE, loBit uint) PTE {
	return (p &^ mask) | ((PTE(val) << loBit) & mask)
}

// A Mapping is the decoded meaning of a PTE. It is one of Absent, Reserved,
// Resident, or Swapped.
type Mapping interface {
	isMapping()
}

// Absent is an entry that carries no addressing information.
type Absent struct{}

// Reserved is a present entry whose page has no frame yet.
type Reserved struct{}

// Resident is a present entry bound to a RAM frame. Intermediate levels use
// the same form to point at the next table.
type Resident struct {
	Frame uint64
	Dirty bool
}

// Swapped is a present entry whose content lives in a swap store.
type Swapped struct {
	Type   uint64
	Offset uint64
}

func (Absent) isMapping()   {}
func (Reserved) isMapping() {}
func (Resident) isMapping() {}
func (Swapped) isMapping()  {}

// Decode interprets a raw entry.
func Decode(p PTE) Mapping {
	switch {
	case !p.Present():
		return Absent{}
	case p.Swapped():
		return Swapped{Type: p.SwapType(), Offset: p.SwapOffset()}
	case p.FPN() == 0:
		return Reserved{}
	default:
		return Resident{Frame: p.FPN(), Dirty: p.Dirty()}
	}
}

// Encode builds the raw entry of a mapping.
func Encode(m Mapping) (PTE, error) {
	switch m := m.(type) {
	case Absent:
		return 0, nil
	case Reserved:
		return PresentMask, nil
	case Resident:
		if m.Frame == 0 || m.Frame > MaxFPN {
			return 0, fmt.Errorf("%w: %d", ErrInvalidFrame, m.Frame)
		}

		p := PresentMask
		if m.Dirty {
			p |= DirtyMask
		}

		return setVal(p, m.Frame, FPNMask, FPNLoBit), nil
	case Swapped:
		if m.Type > MaxSwapType || m.Offset > MaxSwapOffset {
			return 0, fmt.Errorf("%w: type %d offset %d",
				ErrInvalidSwapLocation, m.Type, m.Offset)
		}

		p := PresentMask | SwappedMask
		p = setVal(p, m.Type, SwapTypeMask, SwapTypeLoBit)

		return setVal(p, m.Offset, SwapOffsetMask, SwapOffsetLoBit), nil
	default:
		panic(fmt.Sprintf("unknown mapping %T", m))
	}
}

// InitPTE builds an entry from flat fields. A non-present entry is zero. A
// present entry that is not swapped must carry a non-zero frame number.
func InitPTE(
	present bool,
	fpn uint64,
	dirty bool,
	swapped bool,
	swapType uint64,
	swapOffset uint64,
) (PTE, error) {
	if !present {
		return 0, nil
	}

	if !swapped {
		return Encode(Resident{Frame: fpn, Dirty: dirty})
	}

	return Encode(Swapped{Type: swapType, Offset: swapOffset})
}

// A ByteDevice is byte addressable memory.
type ByteDevice interface {
	Read(addr uint64) (byte, error)
	Write(addr uint64, data byte) error
}

// ReadEntry loads the little-endian entry at the physical address, one byte
// at a time.
func ReadEntry(dev ByteDevice, addr uint64) (PTE, error) {
	var entry PTE
	for i := uint64(0); i < 4; i++ {
		b, err := dev.Read(addr + i)
		if err != nil {
			return 0, err
		}

		entry |= PTE(b) << (i * 8)
	}

	return entry, nil
}

// WriteEntry stores the entry at the physical address in little-endian order,
// one byte at a time.
func WriteEntry(dev ByteDevice, addr uint64, entry PTE) error {
	for i := uint64(0); i < 4; i++ {
		err := dev.Write(addr+i, byte(entry>>(i*8)))
		if err != nil {
			return err
		}
	}

	return nil
}
