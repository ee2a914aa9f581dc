package memphy

import "github.com/google/btree"

// A Builder can build physical memory devices.
type Builder struct {
	capacity       uint64
	pageSize       uint64
	reservedFrames uint64
}

// MakeBuilder creates a new builder with 4 KiB frames and frame 0 reserved.
func MakeBuilder() Builder {
	return Builder{
		capacity:       1 << 20,
		pageSize:       4096,
		reservedFrames: 1,
	}
}

// WithCapacity sets the size of the device in bytes.
func (b Builder) WithCapacity(capacity uint64) Builder {
	b.capacity = capacity
	return b
}

// WithPageSize sets the size of a frame.
func (b Builder) WithPageSize(pageSize uint64) Builder {
	b.pageSize = pageSize
	return b
}

// WithReservedFrames sets how many low frames never enter the free pool.
// Frame 0 means "no frame" in a page-table entry, so at least one frame
// should stay reserved on a RAM device.
func (b Builder) WithReservedFrames(n uint64) Builder {
	b.reservedFrames = n
	return b
}

// Build creates the device.
func (b Builder) Build(name string) *MemPhy {
	b.parametersMustBeValid()

	m := &MemPhy{
		name:       name,
		storage:    NewStorage(b.capacity, b.pageSize),
		pageSize:   b.pageSize,
		numFrames:  b.capacity / b.pageSize,
		firstFrame: b.reservedFrames,
		free:       btree.NewG(8, func(a, b uint64) bool { return a < b }),
	}

	for fpn := m.firstFrame; fpn < m.numFrames; fpn++ {
		m.free.ReplaceOrInsert(fpn)
	}

	return m
}

func (b Builder) parametersMustBeValid() {
	if b.pageSize == 0 {
		panic("page size must be positive")
	}

	if b.capacity < b.pageSize {
		panic("device must hold at least one frame")
	}

	if b.reservedFrames > b.capacity/b.pageSize {
		panic("more reserved frames than the device holds")
	}
}
