package vm

import (
	"log"
	"sort"
	"sync"

	"github.com/sarchlab/pagesim/sim/hooking"
)

// A Manager owns the RAM and swap page tables of a simulated machine. Pages
// are handed out from RAM first. When RAM is full, the page that was assigned
// the longest time ago is copied to the first free swap slot and its RAM slot
// is reused.
//
// The manager keeps no per-process record. How many pages a process owns is
// found by scanning both tiers, which is linear in the number of slots. Build
// with WithOwnershipIndex to keep a running count instead.
type Manager struct {
	sync.Mutex
	hooking.HookableBase

	name     string
	pageSize uint64
	ram      []Page
	swap     []Page
	fifo     *fifoQueue
	clock    uint64

	rollbackOnFailure       bool
	requeueOnFailedEviction bool
	ownership               map[PID]int

	placements        uint64
	evictions         uint64
	failedEvictions   uint64
	failedAllocations uint64
}

// Name returns the name of the manager.
func (m *Manager) Name() string {
	return m.name
}

// PageSize returns the size of a page in bytes.
func (m *Manager) PageSize() uint64 {
	return m.pageSize
}

// NumRAMPages returns the number of slots in RAM.
func (m *Manager) NumRAMPages() int {
	return len(m.ram)
}

// NumSwapPages returns the number of slots in swap.
func (m *Manager) NumSwapPages() int {
	return len(m.swap)
}

// Allocate gives numPages pages to the process. Pages are placed one at a
// time and the call returns false as soon as one cannot be placed.
//
// Pages placed before the failing one stay owned by pid unless the manager is
// built with WithRollbackOnFailure.
func (m *Manager) Allocate(pid PID, numPages int) bool {
	if numPages < 0 {
		log.Panicf("cannot allocate %d pages", numPages)
	}

	m.Lock()
	defer m.Unlock()

	callStart := m.clock

	for placed := 0; placed < numPages; placed++ {
		if m.placePage(pid) {
			continue
		}

		m.failedAllocations++

		if m.rollbackOnFailure {
			m.releaseAssignedSince(pid, callStart)
		}

		m.invokeHook(HookPosAllocationFailed, PageEvent{
			PID:       pid,
			RAMIndex:  NoSlot,
			SwapIndex: NoSlot,
			Timestamp: m.clock,
		}, placed)

		return false
	}

	return true
}

func (m *Manager) placePage(pid PID) bool {
	index, found := firstFree(m.ram)
	if !found {
		return m.evict(pid)
	}

	m.assign(&m.ram[index], pid)
	m.fifo.push(index)
	m.placements++

	m.invokeHook(HookPosPagePlaced, PageEvent{
		PID:       pid,
		RAMIndex:  index,
		SwapIndex: NoSlot,
		Timestamp: m.ram[index].Timestamp,
	}, nil)

	return true
}

// evict moves the oldest RAM page to swap and gives its slot to pid. The
// victim index is taken off the queue before swap is checked and is not
// returned on failure unless requeueOnFailedEviction is set.
func (m *Manager) evict(pid PID) bool {
	victim, ok := m.fifo.pop()
	if !ok {
		m.evictionFailed(pid, NoSlot)
		return false
	}

	slot, found := firstFree(m.swap)
	if !found {
		if m.requeueOnFailedEviction {
			m.fifo.pushFront(victim)
		}

		m.evictionFailed(pid, victim)

		return false
	}

	evicted := m.ram[victim]
	m.swap[slot].Owner = evicted.Owner
	m.swap[slot].Owned = true
	m.swap[slot].Timestamp = evicted.Timestamp

	// The evicted owner keeps the same number of pages, so only the new owner
	// is counted.
	m.assign(&m.ram[victim], pid)
	m.fifo.push(victim)
	m.evictions++

	m.invokeHook(HookPosPageEvicted, PageEvent{
		PID:        pid,
		RAMIndex:   victim,
		SwapIndex:  slot,
		EvictedPID: evicted.Owner,
		Timestamp:  m.ram[victim].Timestamp,
	}, nil)

	return true
}

func (m *Manager) evictionFailed(pid PID, victim int) {
	m.failedEvictions++

	m.invokeHook(HookPosEvictionFailed, PageEvent{
		PID:       pid,
		RAMIndex:  victim,
		SwapIndex: NoSlot,
		Timestamp: m.clock,
	}, nil)
}

func (m *Manager) assign(p *Page, pid PID) {
	p.Owner = pid
	p.Owned = true
	p.Timestamp = m.clock
	m.clock++

	if m.ownership != nil {
		m.ownership[pid]++
	}
}

// releaseAssignedSince frees the pages of pid stamped at or after clock. Pages
// copied to swap keep their stamp, so both tiers are searched.
func (m *Manager) releaseAssignedSince(pid PID, clock uint64) {
	for _, tier := range [][]Page{m.ram, m.swap} {
		for i := range tier {
			p := &tier[i]
			if p.Owned && p.Owner == pid && p.Timestamp >= clock {
				m.releasePage(p)
			}
		}
	}
}

func (m *Manager) releasePage(p *Page) {
	if m.ownership != nil {
		owner := p.Owner

		m.ownership[owner]--
		if m.ownership[owner] <= 0 {
			delete(m.ownership, owner)
		}
	}

	p.release()
}

// Free releases every page owned by the process in both RAM and swap. Freed
// RAM slots keep their place in the eviction queue. Freeing an unknown
// process does nothing.
func (m *Manager) Free(pid PID) {
	m.Lock()
	defer m.Unlock()

	released := 0

	for _, tier := range [][]Page{m.ram, m.swap} {
		for i := range tier {
			if tier[i].Owned && tier[i].Owner == pid {
				m.releasePage(&tier[i])
				released++
			}
		}
	}

	m.invokeHook(HookPosProcessFreed, PageEvent{
		PID:       pid,
		RAMIndex:  NoSlot,
		SwapIndex: NoSlot,
		Timestamp: m.clock,
	}, released)
}

// PagesOwnedBy counts the pages owned by the process in each tier by scanning
// both tiers.
func (m *Manager) PagesOwnedBy(pid PID) (ram, swap int) {
	m.Lock()
	defer m.Unlock()

	return countOwned(m.ram, pid), countOwned(m.swap, pid)
}

// PageCount returns the total number of pages owned by the process. It uses
// the ownership index if there is one and scans otherwise.
func (m *Manager) PageCount(pid PID) int {
	m.Lock()
	defer m.Unlock()

	if m.ownership != nil {
		return m.ownership[pid]
	}

	return countOwned(m.ram, pid) + countOwned(m.swap, pid)
}

func countOwned(pages []Page, pid PID) int {
	count := 0

	for i := range pages {
		if pages[i].Owned && pages[i].Owner == pid {
			count++
		}
	}

	return count
}

// Processes lists the processes that own at least one page, in ascending
// order.
func (m *Manager) Processes() []PID {
	m.Lock()
	defer m.Unlock()

	seen := make(map[PID]bool)
	pids := []PID{}

	for _, tier := range [][]Page{m.ram, m.swap} {
		for i := range tier {
			if tier[i].Owned && !seen[tier[i].Owner] {
				seen[tier[i].Owner] = true
				pids = append(pids, tier[i].Owner)
			}
		}
	}

	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })

	return pids
}

// EvictionOrder returns the RAM indices in the order they would be evicted.
func (m *Manager) EvictionOrder() []int {
	m.Lock()
	defer m.Unlock()

	return m.fifo.order()
}

func (m *Manager) invokeHook(pos *hooking.HookPos, evt PageEvent, detail any) {
	if m.NumHooks() == 0 {
		return
	}

	m.InvokeHook(hooking.HookCtx{
		Domain: m,
		Pos:    pos,
		Item:   evt,
		Detail: detail,
	})
}
