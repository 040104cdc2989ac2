package vm

import (
	"bytes"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/pagesim/sim/hooking"
)

const testPageSize = 4096

func ownersOf(m *Manager, tier Tier) []int {
	owners := []int{}

	for _, o := range m.Snapshot().Owners(tier) {
		if o == nil {
			owners = append(owners, -1)
		} else {
			owners = append(owners, int(*o))
		}
	}

	return owners
}

func buildManager(ramPages, swapPages uint64) *Manager {
	return MakeBuilder().
		WithPageSize(testPageSize).
		WithRAMSize(ramPages * testPageSize).
		WithSwapSize(swapPages * testPageSize).
		Build("PT")
}

var _ = Describe("Manager", func() {
	var (
		m *Manager
	)

	BeforeEach(func() {
		m = buildManager(3, 2)
	})

	It("should start with every page free", func() {
		entries := m.Snapshot().Entries()

		Expect(entries).To(HaveLen(5))
		for _, e := range entries {
			Expect(e.Owned).To(BeFalse())
		}
		Expect(m.Snapshot().RAM[0].Tier).To(Equal(TierRAM))
		Expect(m.Snapshot().Swap[0].Tier).To(Equal(TierSwap))
	})

	It("should place a small request in RAM only", func() {
		ok := m.Allocate(1, 2)

		Expect(ok).To(BeTrue())
		Expect(ownersOf(m, TierRAM)).To(Equal([]int{1, 1, -1}))
		Expect(ownersOf(m, TierSwap)).To(Equal([]int{-1, -1}))

		ram, swap := m.PagesOwnedBy(1)
		Expect(ram).To(Equal(2))
		Expect(swap).To(Equal(0))
	})

	It("should succeed on zero pages without changing anything", func() {
		Expect(m.Allocate(1, 0)).To(BeTrue())
		Expect(m.Stats().Clock).To(Equal(uint64(0)))
		Expect(m.EvictionOrder()).To(BeEmpty())
	})

	It("should panic on a negative page count", func() {
		Expect(func() { m.Allocate(1, -1) }).To(Panic())
	})

	It("should stamp pages with an increasing clock", func() {
		m.Allocate(1, 1)
		m.Allocate(2, 1)

		s := m.Snapshot()
		Expect(s.RAM[0].Timestamp).To(Equal(uint64(0)))
		Expect(s.RAM[1].Timestamp).To(Equal(uint64(1)))
		Expect(m.Stats().Clock).To(Equal(uint64(2)))
	})

	It("should move the oldest pages to swap", func() {
		for pid := PID(1); pid <= 5; pid++ {
			Expect(m.Allocate(pid, 1)).To(BeTrue())
		}

		Expect(ownersOf(m, TierRAM)).To(Equal([]int{4, 5, 3}))
		Expect(ownersOf(m, TierSwap)).To(Equal([]int{1, 2}))
		Expect(m.EvictionOrder()).To(Equal([]int{2, 0, 1}))
	})

	It("should evict the first allocated page", func() {
		m.Allocate(10, 1)
		m.Allocate(11, 1)
		m.Allocate(12, 1)

		Expect(m.Allocate(13, 1)).To(BeTrue())

		Expect(ownersOf(m, TierSwap)).To(Equal([]int{10, -1}))
		Expect(ownersOf(m, TierRAM)).To(Equal([]int{13, 11, 12}))
	})

	It("should keep the swapped page's timestamp", func() {
		m.Allocate(1, 3)
		m.Allocate(2, 1)

		s := m.Snapshot()
		Expect(s.Swap[0].Timestamp).To(Equal(uint64(0)))
		Expect(s.RAM[0].Timestamp).To(Equal(uint64(3)))
	})

	It("should keep partially placed pages when running out of memory", func() {
		ok := m.Allocate(7, 10)

		Expect(ok).To(BeFalse())
		Expect(m.PageCount(7)).To(Equal(5))
		Expect(ownersOf(m, TierRAM)).To(Equal([]int{7, 7, 7}))
		Expect(ownersOf(m, TierSwap)).To(Equal([]int{7, 7}))
	})

	It("should drop the victim from the queue when swap is full", func() {
		m.Allocate(7, 10)

		Expect(m.EvictionOrder()).To(Equal([]int{0, 1}))

		stats := m.Stats()
		Expect(stats.FailedEvictions).To(Equal(uint64(1)))
		Expect(stats.FailedAllocations).To(Equal(uint64(1)))
		Expect(stats.QueueLength).To(Equal(2))
	})

	It("should fail when nothing can be evicted", func() {
		m = buildManager(0, 2)

		Expect(m.Allocate(1, 1)).To(BeFalse())
		Expect(ownersOf(m, TierSwap)).To(Equal([]int{-1, -1}))
	})

	Context("when freeing", func() {
		BeforeEach(func() {
			m.Allocate(1, 2)
			m.Allocate(2, 1)
			m.Allocate(3, 1)
		})

		It("should clear every page of the process in both tiers", func() {
			Expect(ownersOf(m, TierRAM)).To(Equal([]int{3, 1, 2}))
			Expect(ownersOf(m, TierSwap)).To(Equal([]int{1, -1}))

			m.Free(1)

			Expect(ownersOf(m, TierRAM)).To(Equal([]int{3, -1, 2}))
			Expect(ownersOf(m, TierSwap)).To(Equal([]int{-1, -1}))
		})

		It("should be idempotent", func() {
			m.Free(1)
			first := m.Snapshot()

			m.Free(1)

			Expect(m.Snapshot()).To(Equal(first))
		})

		It("should ignore unknown processes", func() {
			before := m.Snapshot()

			m.Free(99)

			Expect(m.Snapshot()).To(Equal(before))
		})

		It("should leave freed slots in the eviction queue", func() {
			order := m.EvictionOrder()

			m.Free(1)

			Expect(m.EvictionOrder()).To(Equal(order))
		})

		It("should queue a reused slot again", func() {
			m.Free(1)
			m.Allocate(4, 1)

			Expect(ownersOf(m, TierRAM)).To(Equal([]int{3, 4, 2}))
			Expect(m.EvictionOrder()).To(Equal([]int{1, 2, 0, 1}))
		})
	})

	Context("when a freed slot is reused before it is evicted", func() {
		allocateAll := func(m *Manager) {
			Expect(m.Allocate(1, 1)).To(BeTrue())
			Expect(m.Allocate(2, 1)).To(BeTrue())
			m.Free(1)

			for pid := PID(3); pid <= 7; pid++ {
				Expect(m.Allocate(pid, 1)).To(BeTrue())
			}
		}

		It("should evict the reused slot once per queue entry", func() {
			m = buildManager(3, 3)

			allocateAll(m)

			Expect(ownersOf(m, TierRAM)).To(Equal([]int{7, 6, 4}))
			Expect(ownersOf(m, TierSwap)).To(Equal([]int{3, 2, 5}))
			Expect(m.EvictionOrder()).To(Equal([]int{2, 0, 1, 0}))
		})

		It("should keep the old position with unique queue entries", func() {
			m = MakeBuilder().
				WithPageSize(testPageSize).
				WithRAMSize(3 * testPageSize).
				WithSwapSize(3 * testPageSize).
				WithUniqueQueueEntries().
				Build("PT")

			allocateAll(m)

			Expect(ownersOf(m, TierRAM)).To(Equal([]int{5, 6, 7}))
			Expect(ownersOf(m, TierSwap)).To(Equal([]int{3, 2, 4}))
			Expect(m.EvictionOrder()).To(Equal([]int{0, 1, 2}))
		})
	})

	It("should run the documented end-to-end scenario", func() {
		Expect(m.Allocate(1, 3)).To(BeTrue())
		Expect(ownersOf(m, TierRAM)).To(Equal([]int{1, 1, 1}))

		Expect(m.Allocate(2, 1)).To(BeTrue())
		Expect(ownersOf(m, TierRAM)).To(Equal([]int{2, 1, 1}))
		Expect(ownersOf(m, TierSwap)).To(Equal([]int{1, -1}))

		m.Free(1)
		Expect(ownersOf(m, TierRAM)).To(Equal([]int{2, -1, -1}))
		Expect(ownersOf(m, TierSwap)).To(Equal([]int{-1, -1}))

		Expect(m.Allocate(3, 5)).To(BeFalse())
		Expect(m.PageCount(3)).To(Equal(4))
		Expect(ownersOf(m, TierRAM)).To(Equal([]int{2, 3, 3}))
		Expect(ownersOf(m, TierSwap)).To(Equal([]int{3, 3}))

		stats := m.Stats()
		Expect(stats.Placements).To(Equal(uint64(5)))
		Expect(stats.Evictions).To(Equal(uint64(3)))
		Expect(stats.FreeRAMPages).To(Equal(0))
		Expect(stats.FreeSwapPages).To(Equal(0))
	})

	It("should list the owning processes", func() {
		m.Allocate(5, 1)
		m.Allocate(2, 1)
		m.Allocate(9, 2)

		Expect(m.Processes()).To(Equal([]PID{2, 5, 9}))
	})

	It("should return a snapshot that does not alias the tables", func() {
		m.Allocate(1, 1)
		s := m.Snapshot()

		s.RAM[0].Owner = 42
		s.RAM[1].Owned = true

		Expect(ownersOf(m, TierRAM)).To(Equal([]int{1, -1, -1}))
	})

	It("should print the snapshot", func() {
		m = buildManager(2, 1)
		m.Allocate(4, 1)

		buf := new(bytes.Buffer)
		n, err := m.Snapshot().WriteTo(buf)

		Expect(err).To(BeNil())
		Expect(n).To(Equal(int64(buf.Len())))
		Expect(buf.String()).To(Equal(
			"RAM:\nPage 0: Process 4\nPage 1: Free\n\nSwap:\nPage 0: Free\n"))
	})

	Context("with rollback on failure", func() {
		BeforeEach(func() {
			m = MakeBuilder().
				WithPageSize(testPageSize).
				WithRAMSize(3 * testPageSize).
				WithSwapSize(2 * testPageSize).
				WithRollbackOnFailure().
				Build("PT")
		})

		It("should release everything the failing call placed", func() {
			m.Allocate(1, 3)
			m.Allocate(2, 1)
			m.Free(1)

			Expect(m.Allocate(3, 5)).To(BeFalse())

			Expect(m.PageCount(3)).To(Equal(0))
			Expect(ownersOf(m, TierRAM)).To(Equal([]int{2, -1, -1}))
			Expect(ownersOf(m, TierSwap)).To(Equal([]int{-1, -1}))
		})

		It("should keep pages granted by earlier calls", func() {
			m.Allocate(1, 1)

			Expect(m.Allocate(1, 10)).To(BeFalse())

			Expect(m.PageCount(1)).To(Equal(1))
		})
	})

	Context("with requeue on failed eviction", func() {
		It("should keep the victim at the head of the queue", func() {
			m = MakeBuilder().
				WithPageSize(testPageSize).
				WithRAMSize(2 * testPageSize).
				WithRequeueOnFailedEviction().
				Build("PT")

			m.Allocate(1, 2)
			Expect(m.Allocate(2, 1)).To(BeFalse())

			Expect(m.EvictionOrder()).To(Equal([]int{0, 1}))
		})

		It("should drop the victim by default", func() {
			m = buildManager(2, 0)

			m.Allocate(1, 2)
			Expect(m.Allocate(2, 1)).To(BeFalse())

			Expect(m.EvictionOrder()).To(Equal([]int{1}))
		})
	})

	It("should count the same with and without an ownership index", func() {
		scanning := buildManager(8, 8)
		indexed := MakeBuilder().
			WithPageSize(testPageSize).
			WithRAMSize(8 * testPageSize).
			WithSwapSize(8 * testPageSize).
			WithOwnershipIndex().
			Build("Indexed")

		rng := rand.New(rand.NewSource(1))
		for i := 0; i < 500; i++ {
			pid := PID(rng.Intn(6))
			if rng.Intn(3) == 0 {
				scanning.Free(pid)
				indexed.Free(pid)
			} else {
				n := rng.Intn(4)
				Expect(indexed.Allocate(pid, n)).
					To(Equal(scanning.Allocate(pid, n)))
			}

			for p := PID(0); p < 6; p++ {
				ram, swap := indexed.PagesOwnedBy(p)
				Expect(indexed.PageCount(p)).To(Equal(ram + swap))
				Expect(indexed.PageCount(p)).To(Equal(scanning.PageCount(p)))
			}
		}

		Expect(indexed.Snapshot()).To(Equal(scanning.Snapshot()))
	})

	Context("with hooks", func() {
		var (
			mockCtrl *gomock.Controller
			hook     *MockHook
			calls    []hooking.HookCtx
		)

		BeforeEach(func() {
			mockCtrl = gomock.NewController(GinkgoT())
			hook = NewMockHook(mockCtrl)
			calls = nil

			hook.EXPECT().
				Func(gomock.Any()).
				Do(func(ctx hooking.HookCtx) { calls = append(calls, ctx) }).
				AnyTimes()

			m.AcceptHook(hook)
		})

		AfterEach(func() {
			mockCtrl.Finish()
		})

		It("should report placements and evictions", func() {
			m.Allocate(1, 3)
			m.Allocate(2, 1)

			Expect(calls).To(HaveLen(4))
			Expect(calls[0].Pos).To(BeIdenticalTo(HookPosPagePlaced))
			Expect(calls[0].Domain).To(BeIdenticalTo(m))

			evt := calls[3].Item.(PageEvent)
			Expect(calls[3].Pos).To(BeIdenticalTo(HookPosPageEvicted))
			Expect(evt.PID).To(Equal(PID(2)))
			Expect(evt.EvictedPID).To(Equal(PID(1)))
			Expect(evt.RAMIndex).To(Equal(0))
			Expect(evt.SwapIndex).To(Equal(0))
		})

		It("should report failures with the number of placed units", func() {
			m.Allocate(1, 6)

			last := calls[len(calls)-1]
			Expect(calls[len(calls)-2].Pos).To(BeIdenticalTo(HookPosEvictionFailed))
			Expect(last.Pos).To(BeIdenticalTo(HookPosAllocationFailed))
			Expect(last.Detail).To(Equal(5))
		})

		It("should report frees with the number of released pages", func() {
			m.Allocate(1, 2)
			calls = nil

			m.Free(1)

			Expect(calls).To(HaveLen(1))
			Expect(calls[0].Pos).To(BeIdenticalTo(HookPosProcessFreed))
			Expect(calls[0].Detail).To(Equal(2))
		})
	})
})
