// Package kernel holds the process table of the simulated kernel and services
// the memory syscall on behalf of its processes.
package kernel

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/sarchlab/pagesim/mem/memphy"
	"github.com/sarchlab/pagesim/mem/vm/mmu"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNoSuchProcess is returned for a PID that was never spawned.
	ErrNoSuchProcess = errors.New("no such process")

	// ErrProcessExists is returned when spawning a PID twice.
	ErrProcessExists = errors.New("process already exists")

	// ErrUnknownMemOp is returned for a memory syscall with an unknown
	// operation code.
	ErrUnknownMemOp = errors.New("unknown memory operation")
)

// A Process is a spawned process and its memory state.
type Process struct {
	PID uint32
	MM  *mmu.MM
}

// Kernel owns the memory devices and the process table.
type Kernel struct {
	sync.Mutex

	memory mmu.MemoryManager
	mmu    *mmu.MMU
	ram    *memphy.MemPhy
	swaps  []*memphy.MemPhy
	procs  map[uint32]*Process
	log    logrus.FieldLogger
}

// MMU returns the MMU built by the builder. It is nil if the builder was
// given a memory manager.
func (k *Kernel) MMU() *mmu.MMU {
	return k.mmu
}

// RAM returns the RAM device built by the builder, or nil.
func (k *Kernel) RAM() *memphy.MemPhy {
	return k.ram
}

// Swaps returns the swap devices built by the builder.
func (k *Kernel) Swaps() []*memphy.MemPhy {
	return k.swaps
}

// Spawn creates a process with an empty address space.
func (k *Kernel) Spawn(pid uint32) (*Process, error) {
	k.Lock()
	defer k.Unlock()

	if _, ok := k.procs[pid]; ok {
		return nil, fmt.Errorf("%w: %d", ErrProcessExists, pid)
	}

	mm, err := k.memory.NewMM(pid)
	if err != nil {
		return nil, fmt.Errorf("spawning %d: %w", pid, err)
	}

	p := &Process{PID: pid, MM: mm}
	k.procs[pid] = p

	k.log.WithField("pid", pid).Info("process spawned")

	return p, nil
}

// Process returns the process with the PID.
func (k *Kernel) Process(pid uint32) (*Process, error) {
	k.Lock()
	defer k.Unlock()

	p, ok := k.procs[pid]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchProcess, pid)
	}

	return p, nil
}

// Processes returns the processes ordered by PID.
func (k *Kernel) Processes() []*Process {
	k.Lock()
	defer k.Unlock()

	procs := make([]*Process, 0, len(k.procs))
	for _, p := range k.procs {
		procs = append(procs, p)
	}

	slices.SortFunc(procs, func(a, b *Process) int {
		return cmp.Compare(a.PID, b.PID)
	})

	return procs
}
