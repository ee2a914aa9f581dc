package kernel

import (
	"fmt"

	"github.com/sarchlab/pagesim/config"
	"github.com/sarchlab/pagesim/mem/memphy"
	"github.com/sarchlab/pagesim/mem/vm/mmu"
	"github.com/sirupsen/logrus"
)

// A Builder can build kernels.
type Builder struct {
	cfg    config.Config
	memory mmu.MemoryManager
	log    logrus.FieldLogger
}

// MakeBuilder creates a builder with the default configuration.
func MakeBuilder() Builder {
	return Builder{
		cfg: config.Default(),
		log: logrus.StandardLogger(),
	}
}

// WithConfig sets the sizes of the memory devices and the address mode.
func (b Builder) WithConfig(cfg config.Config) Builder {
	b.cfg = cfg
	return b
}

// WithMemoryManager makes the kernel use the given memory manager instead of
// building devices and an MMU.
func (b Builder) WithMemoryManager(m mmu.MemoryManager) Builder {
	b.memory = m
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(log logrus.FieldLogger) Builder {
	b.log = log
	return b
}

// Build creates the kernel.
func (b Builder) Build() *Kernel {
	k := &Kernel{
		memory: b.memory,
		procs:  make(map[uint32]*Process),
		log:    b.log,
	}

	if k.memory == nil {
		b.buildMemory(k)
	}

	return k
}

func (b Builder) buildMemory(k *Kernel) {
	if err := b.cfg.Validate(); err != nil {
		panic(err)
	}

	layout, _ := b.cfg.Layout()

	k.ram = memphy.MakeBuilder().
		WithCapacity(b.cfg.RAMSize).
		WithPageSize(layout.PageSize()).
		Build("RAM")

	swaps := make([]memphy.Device, 0, len(b.cfg.SwapSizes))
	for i, size := range b.cfg.SwapSizes {
		swp := memphy.MakeBuilder().
			WithCapacity(size).
			WithPageSize(layout.PageSize()).
			WithReservedFrames(0).
			Build(fmt.Sprintf("SWP%d", i))

		k.swaps = append(k.swaps, swp)
		swaps = append(swaps, swp)
	}

	k.mmu = mmu.MakeBuilder().
		WithLayout(layout).
		WithRAM(k.ram).
		WithSwaps(swaps...).
		WithActiveSwap(b.cfg.ActiveSwap).
		WithLogger(b.log).
		Build()
	k.memory = k.mmu
}
