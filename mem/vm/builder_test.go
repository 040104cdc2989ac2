package vm

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Builder", func() {
	It("should size the tiers by integer division", func() {
		m := MakeBuilder().
			WithPageSize(4096).
			WithRAMSize(10000).
			WithSwapSize(4096).
			Build("PT")

		Expect(m.Name()).To(Equal("PT"))
		Expect(m.PageSize()).To(Equal(uint64(4096)))
		Expect(m.NumRAMPages()).To(Equal(2))
		Expect(m.NumSwapPages()).To(Equal(1))
	})

	It("should panic on a zero page size", func() {
		Expect(func() {
			MakeBuilder().WithPageSize(0).Build("PT")
		}).To(Panic())
	})

	It("should report invalid sizes as an error", func() {
		m, err := NewManager(1<<20, 1<<20, 0)

		Expect(m).To(BeNil())
		Expect(err).To(MatchError(ContainSubstring("page size must be positive")))
	})

	It("should build from byte sizes", func() {
		m, err := NewManager(3*1024*1024, 1024*1024, 4*1024)

		Expect(err).To(BeNil())
		Expect(m.NumRAMPages()).To(Equal(768))
		Expect(m.NumSwapPages()).To(Equal(256))
	})
})
