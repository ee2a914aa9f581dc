package mmu

// A MemoryManager is what the kernel's memory syscall dispatches to.
type MemoryManager interface {
	NewMM(owner uint32) (*MM, error)
	MarkReservedRange(mm *MM, addr uint64, pgnum int) error
	GrowArea(mm *MM, vmaID int, incSize uint64) (Region, error)
	SwapOut(mm *MM, pgn uint64) error
	ReadPhysical(addr uint64) (byte, error)
	WritePhysical(addr uint64, data byte) error
}
