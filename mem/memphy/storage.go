package memphy

import (
	"fmt"
	"maps"
	"slices"
)

// A Storage keeps the bytes of a physical memory device.
//
// The storage manages its content in units of one frame. Units that are never
// written by StoreByte are not allocated, so a large swap device costs
// nothing until pages are copied into it.
type Storage struct {
	unitSize uint64
	capacity uint64
	data     map[uint64][]byte
}

// NewStorage creates a storage object with the specified capacity and unit
// size.
func NewStorage(capacity, unitSize uint64) *Storage {
	storage := new(Storage)

	storage.unitSize = unitSize
	storage.capacity = capacity
	storage.data = make(map[uint64][]byte)

	return storage
}

// Capacity returns the number of addressable bytes.
func (s *Storage) Capacity() uint64 {
	return s.capacity
}

// createOrGetStorageUnit retrieves a storage unit if the unit has been created
// before. Otherwise it initializes a storage unit in the storage object.
func (s *Storage) createOrGetStorageUnit(address uint64) ([]byte, error) {
	if address >= s.capacity {
		return nil, fmt.Errorf("%w: 0x%x", ErrAddressOutOfRange, address)
	}

	baseAddr, _ := s.parseAddress(address)
	unit, ok := s.data[baseAddr]
	if !ok {
		unit = make([]byte, s.unitSize)
		s.data[baseAddr] = unit
	}

	return unit, nil
}

func (s *Storage) parseAddress(addr uint64) (baseAddr, inUnitAddr uint64) {
	inUnitAddr = addr % s.unitSize
	baseAddr = addr - inUnitAddr
	return
}

// LoadByte returns the byte stored at the address.
func (s *Storage) LoadByte(address uint64) (byte, error) {
	if address >= s.capacity {
		return 0, fmt.Errorf("%w: 0x%x", ErrAddressOutOfRange, address)
	}

	baseAddr, inUnitAddr := s.parseAddress(address)
	unit, ok := s.data[baseAddr]
	if !ok {
		return 0, nil
	}

	return unit[inUnitAddr], nil
}

// StoreByte stores one byte at the address.
func (s *Storage) StoreByte(address uint64, b byte) error {
	unit, err := s.createOrGetStorageUnit(address)
	if err != nil {
		return err
	}

	_, inUnitAddr := s.parseAddress(address)
	unit[inUnitAddr] = b

	return nil
}

// touchedUnits returns the base addresses of the allocated units in ascending
// order.
func (s *Storage) touchedUnits() []uint64 {
	return slices.Sorted(maps.Keys(s.data))
}
