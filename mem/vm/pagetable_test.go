package vm

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/pagesim/hooking"
	"github.com/sarchlab/pagesim/mem/memphy"
	"go.uber.org/mock/gomock"
)

var _ = Describe("PageTableWalker", func() {
	var (
		mockCtrl *gomock.Controller
		frames   *MockTableFrameAllocator
		ram      *memphy.MemPhy
		walker   *PageTableWalker
		root     uint64
	)

	useRAMForTables := func() {
		frames.EXPECT().
			AllocateTableFrame().
			DoAndReturn(ram.GetFreeFrame).
			AnyTimes()
	}

	installLeaf := func(pgn uint64, m Mapping) {
		slot, err := walker.ResolveOrAllocate(root, pgn)
		Expect(err).ToNot(HaveOccurred())
		pte, err := Encode(m)
		Expect(err).ToNot(HaveOccurred())
		Expect(WriteEntry(ram, slot, pte)).To(Succeed())
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		frames = NewMockTableFrameAllocator(mockCtrl)
		ram = memphy.MakeBuilder().WithCapacity(64 * 4096).Build("RAM")

		walker = NewPageTableWalker(MM64Layout, ram, frames)

		rootFPN, err := ram.GetFreeFrame()
		Expect(err).ToNot(HaveOccurred())
		Expect(walker.ClearTable(rootFPN, 0)).To(Succeed())
		root = rootFPN * 4096
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	Context("resolve or allocate", func() {
		It("should create the four lower tables for the first page", func() {
			useRAMForTables()
			before := ram.FreeFrameCount()

			slot, err := walker.ResolveOrAllocate(root, 0x12345)

			Expect(err).ToNot(HaveOccurred())
			Expect(ram.FreeFrameCount()).To(Equal(before - 4))
			Expect(slot % 4).To(Equal(uint64(0)))
		})

		It("should reuse tables of neighbouring pages", func() {
			useRAMForTables()
			_, err := walker.ResolveOrAllocate(root, 0x12345)
			Expect(err).ToNot(HaveOccurred())
			before := ram.FreeFrameCount()

			slotA, err := walker.ResolveOrAllocate(root, 0x12345)
			Expect(err).ToNot(HaveOccurred())
			slotB, err := walker.ResolveOrAllocate(root, 0x12346)
			Expect(err).ToNot(HaveOccurred())

			Expect(ram.FreeFrameCount()).To(Equal(before))
			Expect(slotB - slotA).To(Equal(uint64(4)))
		})

		It("should report new tables to hooks", func() {
			useRAMForTables()
			var allocs []TableAllocation
			walker.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
				Expect(ctx.Pos).To(Equal(HookPosTableAllocated))
				allocs = append(allocs, ctx.Item.(TableAllocation))
			}))

			_, err := walker.ResolveOrAllocate(root, 7)

			Expect(err).ToNot(HaveOccurred())
			Expect(allocs).To(HaveLen(4))
			Expect(allocs[0].Level).To(Equal(1))
			Expect(allocs[3].Level).To(Equal(4))
		})

		It("should keep installed scaffolding when running out of frames",
			func() {
				calls := 0
				frames.EXPECT().
					AllocateTableFrame().
					DoAndReturn(func() (uint64, error) {
						calls++
						if calls > 2 {
							return 0, memphy.ErrOutOfFrames
						}
						return ram.GetFreeFrame()
					}).
					AnyTimes()

				_, err := walker.ResolveOrAllocate(root, 0x40)
				Expect(err).To(MatchError(memphy.ErrOutOfFrames))

				_, err = walker.Resolve(root, 0x40)
				Expect(err).To(MatchError(ErrPageTableLevelMissing))
				Expect(err.Error()).To(ContainSubstring("PUD"))
			})

		It("should give the frame back if the table cannot be installed",
			func() {
				tiny := memphy.MakeBuilder().WithCapacity(2 * 4096).Build("Tiny")
				walker = NewPageTableWalker(MM64Layout, tiny, frames)

				frames.EXPECT().AllocateTableFrame().Return(uint64(9), nil)
				frames.EXPECT().ReleaseTableFrame(uint64(9))

				_, err := walker.ResolveOrAllocate(4096, 0)

				Expect(err).To(MatchError(memphy.ErrAddressOutOfRange))
			})
	})

	Context("resolve only", func() {
		It("should fail on an empty hierarchy", func() {
			_, err := walker.Resolve(root, 0x12345)

			Expect(err).To(MatchError(ErrPageTableLevelMissing))
		})

		It("should fail when the L3 entry was never installed", func() {
			useRAMForTables()
			installLeaf(0, Resident{Frame: 30})

			addr := MM64Layout.Compose([]uint64{0, 0, 1, 0, 0}, 0)
			_, err := walker.Resolve(root, MM64Layout.PageNum(addr))

			Expect(err).To(MatchError(ErrPageTableLevelMissing))
		})

		It("should find the slot installed before", func() {
			useRAMForTables()
			slot, err := walker.ResolveOrAllocate(root, 0xabcde)
			Expect(err).ToNot(HaveOccurred())

			found, err := walker.Resolve(root, 0xabcde)

			Expect(err).ToNot(HaveOccurred())
			Expect(found).To(Equal(slot))
		})
	})

	Context("translate", func() {
		BeforeEach(func() {
			useRAMForTables()
		})

		It("should add the offset to the frame base", func() {
			installLeaf(0x55, Resident{Frame: 33})

			pAddr, err := walker.Translate(root, 0x55*4096+0x123)

			Expect(err).ToNot(HaveOccurred())
			Expect(pAddr).To(Equal(uint64(33*4096 + 0x123)))
		})

		It("should fault on an absent leaf", func() {
			installLeaf(0x55, Resident{Frame: 33})

			_, err := walker.Translate(root, 0x56*4096)

			Expect(err).To(MatchError(ErrPageFault))
		})

		It("should fault on a reserved leaf", func() {
			installLeaf(0x55, Reserved{})

			_, err := walker.Translate(root, 0x55*4096)

			Expect(err).To(MatchError(ErrPageFault))
		})

		It("should fault on a swapped leaf", func() {
			installLeaf(0x55, Swapped{Type: 0, Offset: 4})

			_, err := walker.Translate(root, 0x55*4096)

			Expect(err).To(MatchError(ErrPageFault))
		})

		It("should reject addresses wider than the layout", func() {
			_, err := walker.Translate(root, MM64Layout.MaxAddress())

			Expect(err).To(MatchError(ErrInvalidAddress))
		})
	})

	Context("page numbers beyond the layout", func() {
		It("should not alias onto a lower page", func() {
			useRAMForTables()
			installLeaf(5, Resident{Frame: 40})
			pgn := uint64(5) + MM64Layout.NumPages()

			_, err := walker.Resolve(root, pgn)
			Expect(err).To(MatchError(ErrInvalidAddress))

			_, err = walker.ResolveOrAllocate(root, pgn)
			Expect(err).To(MatchError(ErrInvalidAddress))

			_, err = walker.Lookup(root, pgn)
			Expect(err).To(MatchError(ErrInvalidAddress))
		})

		It("should accept the last page", func() {
			useRAMForTables()

			_, err := walker.ResolveOrAllocate(root, MM64Layout.NumPages()-1)

			Expect(err).ToNot(HaveOccurred())
		})
	})

	Context("visit leaves", func() {
		collect := func(first, last uint64) []uint64 {
			var pgns []uint64

			err := walker.VisitLeaves(root, first, last,
				func(pgn uint64, _ PTE) error {
					pgns = append(pgns, pgn)
					return nil
				})
			Expect(err).ToNot(HaveOccurred())

			return pgns
		}

		It("should list present leaves across the whole address space", func() {
			useRAMForTables()
			top := MM64Layout.NumPages() - 1
			installLeaf(0, Resident{Frame: 40})
			installLeaf(0x12345, Reserved{})
			installLeaf(top, Swapped{Type: 1, Offset: 2})

			Expect(collect(0, ^uint64(0))).To(Equal(
				[]uint64{0, 0x12345, top}))
		})

		It("should honour the bounds", func() {
			useRAMForTables()
			installLeaf(3, Resident{Frame: 40})
			installLeaf(4, Resident{Frame: 41})
			installLeaf(600, Resident{Frame: 42})

			Expect(collect(4, 599)).To(Equal([]uint64{4}))
			Expect(collect(5, 600)).To(Equal([]uint64{600}))
			Expect(collect(601, 500)).To(BeEmpty())
		})

		It("should stop at the first error of the callback", func() {
			useRAMForTables()
			installLeaf(1, Resident{Frame: 40})
			installLeaf(2, Resident{Frame: 41})
			calls := 0

			err := walker.VisitLeaves(root, 0, 10,
				func(uint64, PTE) error {
					calls++
					return ErrPageFault
				})

			Expect(err).To(MatchError(ErrPageFault))
			Expect(calls).To(Equal(1))
		})
	})

	Context("four-level layout", func() {
		It("should create three lower tables", func() {
			walker = NewPageTableWalker(MM48Layout, ram, frames)
			useRAMForTables()
			before := ram.FreeFrameCount()

			_, err := walker.ResolveOrAllocate(root, 0x12345)

			Expect(err).ToNot(HaveOccurred())
			Expect(ram.FreeFrameCount()).To(Equal(before - 3))
		})
	})
})
