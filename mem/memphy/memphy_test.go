package memphy_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/pagesim/mem/memphy"
)

var _ = Describe("MemPhy", func() {
	var ram *memphy.MemPhy

	BeforeEach(func() {
		ram = memphy.MakeBuilder().
			WithCapacity(8 * 4096).
			Build("RAM")
	})

	It("should keep frame 0 out of the pool", func() {
		Expect(ram.NumFrames()).To(Equal(uint64(8)))
		Expect(ram.FreeFrameCount()).To(Equal(7))
		Expect(ram.IsFree(0)).To(BeFalse())
	})

	It("should hand out the lowest frame first", func() {
		fpn, err := ram.GetFreeFrame()
		Expect(err).ToNot(HaveOccurred())
		Expect(fpn).To(Equal(uint64(1)))

		fpn, err = ram.GetFreeFrame()
		Expect(err).ToNot(HaveOccurred())
		Expect(fpn).To(Equal(uint64(2)))

		ram.PutFreeFrame(1)

		fpn, err = ram.GetFreeFrame()
		Expect(err).ToNot(HaveOccurred())
		Expect(fpn).To(Equal(uint64(1)))
	})

	It("should fail when the pool is exhausted", func() {
		for i := 0; i < 7; i++ {
			_, err := ram.GetFreeFrame()
			Expect(err).ToNot(HaveOccurred())
		}

		_, err := ram.GetFreeFrame()
		Expect(err).To(MatchError(memphy.ErrOutOfFrames))
	})

	It("should ignore a frame returned twice", func() {
		fpn, _ := ram.GetFreeFrame()
		ram.PutFreeFrame(fpn)
		ram.PutFreeFrame(fpn)

		Expect(ram.FreeFrameCount()).To(Equal(7))
	})

	It("should panic when returning a reserved frame", func() {
		Expect(func() { ram.PutFreeFrame(0) }).To(Panic())
		Expect(func() { ram.PutFreeFrame(8) }).To(Panic())
	})

	It("should read back written bytes", func() {
		Expect(ram.Write(0x1234, 42)).To(Succeed())

		b, err := ram.Read(0x1234)
		Expect(err).ToNot(HaveOccurred())
		Expect(b).To(Equal(byte(42)))
	})

	It("should reject addresses beyond the capacity", func() {
		Expect(ram.Write(8*4096, 1)).To(MatchError(memphy.ErrAddressOutOfRange))
	})

	It("should dump non-zero bytes", func() {
		Expect(ram.Write(0x10, 7)).To(Succeed())
		Expect(ram.Write(0x2001, 9)).To(Succeed())

		buf := new(bytes.Buffer)
		Expect(ram.Dump(buf)).To(Succeed())

		Expect(buf.String()).To(ContainSubstring("BYTE 00000010: 7"))
		Expect(buf.String()).To(ContainSubstring("BYTE 00002001: 9"))
	})

	It("should panic on a device smaller than a frame", func() {
		Expect(func() {
			memphy.MakeBuilder().WithCapacity(100).Build("Tiny")
		}).To(Panic())
	})
})
