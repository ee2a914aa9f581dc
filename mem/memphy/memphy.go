// Package memphy models the physical memory devices of the simulated kernel:
// the RAM and the swap stores. A device is byte addressable and owns a pool of
// free frames.
package memphy

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/btree"
)

var (
	// ErrOutOfFrames is returned when the free-frame pool is exhausted.
	ErrOutOfFrames = errors.New("out of free frames")

	// ErrAddressOutOfRange is returned when accessing an address beyond the
	// capacity of the device.
	ErrAddressOutOfRange = errors.New(
		"accessing physical address beyond the device capacity")
)

// Device is the narrow interface that the memory-management core uses to
// reach a physical memory device.
type Device interface {
	// Read returns the byte at the physical address.
	Read(addr uint64) (byte, error)

	// Write stores a byte at the physical address.
	Write(addr uint64, data byte) error

	// GetFreeFrame takes one frame out of the free pool.
	GetFreeFrame() (uint64, error)

	// PutFreeFrame returns a frame to the free pool.
	PutFreeFrame(fpn uint64)
}

// MemPhy is a physical memory device with a free-frame pool. Frames are handed
// out lowest number first.
type MemPhy struct {
	sync.Mutex

	name       string
	storage    *Storage
	pageSize   uint64
	numFrames  uint64
	firstFrame uint64
	free       *btree.BTreeG[uint64]
}

// Name returns the name of the device.
func (m *MemPhy) Name() string {
	return m.name
}

// PageSize returns the size of a frame in bytes.
func (m *MemPhy) PageSize() uint64 {
	return m.pageSize
}

// NumFrames returns the number of frames the device can hold, including the
// reserved ones.
func (m *MemPhy) NumFrames() uint64 {
	return m.numFrames
}

// Capacity returns the size of the device in bytes.
func (m *MemPhy) Capacity() uint64 {
	return m.storage.Capacity()
}

// Read returns the byte at the physical address.
func (m *MemPhy) Read(addr uint64) (byte, error) {
	m.Lock()
	defer m.Unlock()

	return m.storage.LoadByte(addr)
}

// Write stores a byte at the physical address.
func (m *MemPhy) Write(addr uint64, data byte) error {
	m.Lock()
	defer m.Unlock()

	return m.storage.StoreByte(addr, data)
}

// GetFreeFrame takes the lowest-numbered free frame out of the pool.
func (m *MemPhy) GetFreeFrame() (uint64, error) {
	m.Lock()
	defer m.Unlock()

	fpn, ok := m.free.DeleteMin()
	if !ok {
		return 0, fmt.Errorf("%s: %w", m.name, ErrOutOfFrames)
	}

	return fpn, nil
}

// PutFreeFrame returns a frame to the pool. Returning a frame that is already
// free has no effect.
func (m *MemPhy) PutFreeFrame(fpn uint64) {
	m.Lock()
	defer m.Unlock()

	m.frameMustBeManaged(fpn)
	m.free.ReplaceOrInsert(fpn)
}

// FreeFrameCount returns the number of frames left in the pool.
func (m *MemPhy) FreeFrameCount() int {
	m.Lock()
	defer m.Unlock()

	return m.free.Len()
}

// IsFree tells whether the frame is currently in the pool.
func (m *MemPhy) IsFree(fpn uint64) bool {
	m.Lock()
	defer m.Unlock()

	return m.free.Has(fpn)
}

// Dump prints every non-zero byte of the device.
func (m *MemPhy) Dump(w io.Writer) error {
	m.Lock()
	defer m.Unlock()

	_, err := fmt.Fprintf(w, "===== PHYSICAL MEMORY DUMP %s =====\n", m.name)
	if err != nil {
		return err
	}

	for _, base := range m.storage.touchedUnits() {
		unit := m.storage.data[base]
		for i, b := range unit {
			if b == 0 {
				continue
			}

			_, err = fmt.Fprintf(w, "BYTE %08x: %d\n", base+uint64(i), b)
			if err != nil {
				return err
			}
		}
	}

	_, err = fmt.Fprintf(w, "===== PHYSICAL MEMORY END-DUMP =====\n")

	return err
}

func (m *MemPhy) frameMustBeManaged(fpn uint64) {
	if fpn < m.firstFrame || fpn >= m.numFrames {
		panic(fmt.Sprintf("%s: frame %d is not managed by the device",
			m.name, fpn))
	}
}
