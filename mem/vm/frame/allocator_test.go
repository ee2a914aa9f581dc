package frame

import (
	"io"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/pagesim/mem/memphy"
	"github.com/sirupsen/logrus"
	"go.uber.org/mock/gomock"
)

var _ = Describe("Allocator", func() {
	var (
		mockCtrl *gomock.Controller
		dev      *MockDevice
		alloc    *Allocator
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		dev = NewMockDevice(mockCtrl)

		log := logrus.New()
		log.SetOutput(io.Discard)
		alloc = NewAllocator(dev, log)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should allocate the requested frames in order", func() {
		gomock.InOrder(
			dev.EXPECT().GetFreeFrame().Return(uint64(4), nil),
			dev.EXPECT().GetFreeFrame().Return(uint64(5), nil),
			dev.EXPECT().GetFreeFrame().Return(uint64(9), nil),
		)

		list, n := alloc.Allocate(3)

		Expect(n).To(Equal(3))
		Expect(list.Frames()).To(Equal([]uint64{4, 5, 9}))
	})

	It("should return a partial list when the pool runs out", func() {
		gomock.InOrder(
			dev.EXPECT().GetFreeFrame().Return(uint64(1), nil),
			dev.EXPECT().GetFreeFrame().Return(uint64(2), nil),
			dev.EXPECT().GetFreeFrame().Return(uint64(3), nil),
			dev.EXPECT().GetFreeFrame().Return(uint64(0), memphy.ErrOutOfFrames),
		)

		list, n := alloc.Allocate(5)

		Expect(n).To(Equal(3))
		Expect(list.Len()).To(Equal(3))
		Expect(list.Frames()).To(Equal([]uint64{1, 2, 3}))
	})

	It("should release every held frame once", func() {
		dev.EXPECT().GetFreeFrame().Return(uint64(7), nil)
		dev.EXPECT().GetFreeFrame().Return(uint64(8), nil)
		dev.EXPECT().PutFreeFrame(uint64(7))
		dev.EXPECT().PutFreeFrame(uint64(8))

		list, _ := alloc.Allocate(2)
		alloc.Release(list)
		alloc.Release(list)

		Expect(list.Len()).To(Equal(0))
	})

	It("should only release frames not yet taken", func() {
		dev.EXPECT().GetFreeFrame().Return(uint64(7), nil)
		dev.EXPECT().GetFreeFrame().Return(uint64(8), nil)
		dev.EXPECT().PutFreeFrame(uint64(8))

		list, _ := alloc.Allocate(2)
		fpn, ok := list.Take()
		alloc.Release(list)

		Expect(ok).To(BeTrue())
		Expect(fpn).To(Equal(uint64(7)))
	})

	It("should pass table frames through", func() {
		dev.EXPECT().GetFreeFrame().Return(uint64(12), nil)
		dev.EXPECT().PutFreeFrame(uint64(12))

		fpn, err := alloc.AllocateTableFrame()
		Expect(err).ToNot(HaveOccurred())
		alloc.ReleaseTableFrame(fpn)
	})

	Context("with a real device", func() {
		It("should leave the pool unchanged after allocate and release",
			func() {
				ram := memphy.MakeBuilder().WithCapacity(6 * 4096).Build("RAM")
				alloc = NewAllocator(ram, nil)

				list, n := alloc.Allocate(8)
				Expect(n).To(Equal(5))
				Expect(ram.FreeFrameCount()).To(Equal(0))

				alloc.Release(list)
				Expect(ram.FreeFrameCount()).To(Equal(5))
			})
	})
})

var _ = Describe("List", func() {
	It("should print its frames", func() {
		list := &List{}
		Expect(list.String()).To(Equal("fp[]"))

		list.push(3)
		list.push(4)
		Expect(list.String()).To(Equal("fp[3] fp[4]"))
	})

	It("should hand frames out in order", func() {
		list := &List{}
		list.push(3)
		list.push(4)

		fpn, _ := list.Take()
		Expect(fpn).To(Equal(uint64(3)))
		fpn, _ = list.Take()
		Expect(fpn).To(Equal(uint64(4)))
		_, ok := list.Take()
		Expect(ok).To(BeFalse())
	})
})
