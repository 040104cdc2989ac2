package hooking

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type recordingHook struct {
	calls []HookCtx
}

func (h *recordingHook) Func(ctx HookCtx) {
	h.calls = append(h.calls, ctx)
}

var _ = Describe("HookableBase", func() {
	var (
		base   *HookableBase
		posA   = &HookPos{Name: "A"}
		posB   = &HookPos{Name: "B"}
		first  *recordingHook
		second *recordingHook
	)

	BeforeEach(func() {
		base = &HookableBase{}
		first = &recordingHook{}
		second = &recordingHook{}
	})

	It("should invoke hooks in registration order", func() {
		order := []string{}
		base.AcceptHook(first)
		base.AcceptHook(second)

		base.InvokeHook(HookCtx{Pos: posA, Item: 1})

		for _, h := range base.Hooks() {
			if h == first {
				order = append(order, "first")
			} else {
				order = append(order, "second")
			}
		}

		Expect(base.NumHooks()).To(Equal(2))
		Expect(order).To(Equal([]string{"first", "second"}))
		Expect(first.calls).To(HaveLen(1))
		Expect(second.calls).To(HaveLen(1))
		Expect(first.calls[0].Item).To(Equal(1))
	})

	It("should panic on a duplicated hook", func() {
		base.AcceptHook(first)

		Expect(func() { base.AcceptHook(first) }).To(Panic())
	})

	It("should filter by position", func() {
		base.AcceptHook(PosFilter(first, posB))

		base.InvokeHook(HookCtx{Pos: posA})
		base.InvokeHook(HookCtx{Pos: posB})

		Expect(first.calls).To(HaveLen(1))
		Expect(first.calls[0].Pos).To(BeIdenticalTo(posB))
	})
})
