package vm

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/pagesim/mem/memphy"
)

var _ = Describe("PTE", func() {
	Context("InitPTE", func() {
		It("should give zero for a non-present entry", func() {
			pte, err := InitPTE(false, 12, true, false, 0, 0)
			Expect(err).ToNot(HaveOccurred())
			Expect(pte).To(Equal(PTE(0)))
		})

		It("should build a resident entry", func() {
			pte, err := InitPTE(true, 0x123, true, false, 0, 0)
			Expect(err).ToNot(HaveOccurred())

			Expect(pte.Present()).To(BeTrue())
			Expect(pte.Swapped()).To(BeFalse())
			Expect(pte.Dirty()).To(BeTrue())
			Expect(pte.FPN()).To(Equal(uint64(0x123)))
		})

		It("should reject a resident entry with frame 0", func() {
			_, err := InitPTE(true, 0, false, false, 0, 0)
			Expect(err).To(MatchError(ErrInvalidFrame))
		})

		It("should reject a frame that does not fit", func() {
			_, err := InitPTE(true, MaxFPN+1, false, false, 0, 0)
			Expect(err).To(MatchError(ErrInvalidFrame))
		})

		It("should build a swapped entry", func() {
			pte, err := InitPTE(true, 0, false, true, 3, 0x1abcd)
			Expect(err).ToNot(HaveOccurred())

			Expect(pte.Present()).To(BeTrue())
			Expect(pte.Swapped()).To(BeTrue())
			Expect(pte.SwapType()).To(Equal(uint64(3)))
			Expect(pte.SwapOffset()).To(Equal(uint64(0x1abcd)))
		})

		It("should reject a swap offset that does not fit", func() {
			_, err := InitPTE(true, 0, false, true, 0, MaxSwapOffset+1)
			Expect(err).To(MatchError(ErrInvalidSwapLocation))
		})
	})

	Context("Decode", func() {
		DescribeTable("should round trip every variant",
			func(m Mapping) {
				pte, err := Encode(m)
				Expect(err).ToNot(HaveOccurred())
				Expect(Decode(pte)).To(Equal(m))
			},
			Entry("absent", Absent{}),
			Entry("reserved", Reserved{}),
			Entry("resident", Resident{Frame: 42}),
			Entry("dirty resident", Resident{Frame: MaxFPN, Dirty: true}),
			Entry("swapped", Swapped{Type: MaxSwapType, Offset: MaxSwapOffset}),
		)

		It("should keep resident and swapped exclusive", func() {
			for fpn := uint64(1); fpn <= MaxFPN; fpn += 97 {
				pte, err := Encode(Resident{Frame: fpn})
				Expect(err).ToNot(HaveOccurred())
				Expect(pte.Present()).To(BeTrue())
				Expect(pte.Swapped()).To(BeFalse())
				Expect(pte.FPN()).To(BeNumerically(">", 0))
			}

			for off := uint64(0); off <= MaxSwapOffset; off += 4099 {
				pte, err := Encode(Swapped{Type: 1, Offset: off})
				Expect(err).ToNot(HaveOccurred())
				Expect(pte.Present()).To(BeTrue())
				Expect(pte.Swapped()).To(BeTrue())
				Expect(Decode(pte)).To(BeAssignableToTypeOf(Swapped{}))
			}
		})

		It("should ignore other fields of an absent entry", func() {
			Expect(Decode(PTE(0x1fff) | SwappedMask)).To(Equal(Absent{}))
		})
	})

	Context("entry storage", func() {
		var ram *memphy.MemPhy

		BeforeEach(func() {
			ram = memphy.MakeBuilder().WithCapacity(2 * 4096).Build("RAM")
		})

		It("should store the entry in little-endian order", func() {
			Expect(WriteEntry(ram, 0x100, PTE(0x80001234))).To(Succeed())

			expected := []byte{0x34, 0x12, 0x00, 0x80}
			for i, e := range expected {
				b, err := ram.Read(0x100 + uint64(i))
				Expect(err).ToNot(HaveOccurred())
				Expect(b).To(Equal(e))
			}
		})

		It("should read back the stored entry", func() {
			Expect(WriteEntry(ram, 0x204, PTE(0xc0a0b0c0))).To(Succeed())

			pte, err := ReadEntry(ram, 0x204)
			Expect(err).ToNot(HaveOccurred())
			Expect(pte).To(Equal(PTE(0xc0a0b0c0)))
		})

		It("should fail beyond the device", func() {
			_, err := ReadEntry(ram, 2*4096-2)
			Expect(err).To(MatchError(memphy.ErrAddressOutOfRange))
		})
	})
})
