package hooking

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type countingHook struct {
	count int
}

func (h *countingHook) Func(_ HookCtx) {
	h.count++
}

var _ = Describe("HookableBase", func() {
	var (
		base *HookableBase
		pos  = &HookPos{Name: "Test"}
	)

	BeforeEach(func() {
		base = &HookableBase{}
	})

	It("should invoke hooks in order", func() {
		var seen []string
		base.AcceptHook(HookFunc(func(ctx HookCtx) {
			seen = append(seen, "first:"+ctx.Pos.Name)
		}))
		base.AcceptHook(HookFunc(func(ctx HookCtx) {
			seen = append(seen, "second:"+ctx.Pos.Name)
		}))

		base.InvokeHook(HookCtx{Pos: pos})

		Expect(base.NumHooks()).To(Equal(2))
		Expect(seen).To(Equal([]string{"first:Test", "second:Test"}))
	})

	It("should panic on a duplicated hook", func() {
		hook := &countingHook{}
		base.AcceptHook(hook)

		Expect(func() { base.AcceptHook(hook) }).To(Panic())
	})

	It("should pass the item to the hook", func() {
		var item any
		base.AcceptHook(HookFunc(func(ctx HookCtx) { item = ctx.Item }))

		base.InvokeHook(HookCtx{Pos: pos, Item: uint64(7)})

		Expect(item).To(Equal(uint64(7)))
	})
})
