package vm

import "github.com/sarchlab/pagesim/sim/hooking"

// HookPosPagePlaced marks a free RAM slot being handed to a process.
var HookPosPagePlaced = &hooking.HookPos{Name: "Page Placed"}

// HookPosPageEvicted marks a RAM page being moved to swap to make room.
var HookPosPageEvicted = &hooking.HookPos{Name: "Page Evicted"}

// HookPosEvictionFailed marks an eviction that could not find a victim or a
// free swap slot.
var HookPosEvictionFailed = &hooking.HookPos{Name: "Eviction Failed"}

// HookPosProcessFreed marks the release of all pages of a process. The detail
// is the number of entries released.
var HookPosProcessFreed = &hooking.HookPos{Name: "Process Freed"}

// HookPosAllocationFailed marks an allocation that returned false. The detail
// is the number of units placed before the failure.
var HookPosAllocationFailed = &hooking.HookPos{Name: "Allocation Failed"}

// NoSlot is used in a PageEvent for an index that does not apply.
const NoSlot = -1

// PageEvent is the item passed to hooks invoked by a Manager.
type PageEvent struct {
	PID       PID
	RAMIndex  int
	SwapIndex int

	// EvictedPID is the owner of the page moved to swap. Only meaningful at
	// HookPosPageEvicted.
	EvictedPID PID

	// Timestamp is the logical clock value stamped on the page that was
	// assigned, or the clock value at the time of the event otherwise.
	Timestamp uint64
}
