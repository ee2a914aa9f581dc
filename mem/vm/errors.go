package vm

import "errors"

var (
	// ErrPageTableLevelMissing is returned by a resolve-only walk that meets
	// an absent intermediate entry.
	ErrPageTableLevelMissing = errors.New("page table level missing")

	// ErrPageFault is returned when translating an address whose leaf entry
	// does not bind a RAM frame.
	ErrPageFault = errors.New("page fault")

	// ErrInvalidFrame is returned when encoding a resident entry whose frame
	// number is zero or does not fit the frame field.
	ErrInvalidFrame = errors.New("invalid frame number")

	// ErrInvalidSwapLocation is returned when a swap type or offset does not
	// fit its field.
	ErrInvalidSwapLocation = errors.New("invalid swap location")

	// ErrInvalidAddress is returned for virtual addresses beyond the width of
	// the address layout.
	ErrInvalidAddress = errors.New("virtual address out of range")
)
