// Package tracing records what happens inside a page table manager.
package tracing

import (
	"github.com/sarchlab/pagesim/datarecording"
	"github.com/sarchlab/pagesim/mem/vm"
	"github.com/sarchlab/pagesim/sim/hooking"
	"github.com/sarchlab/pagesim/sim/id"
)

// PageEventTable is the table that holds page events.
const PageEventTable = "page_events"

// PageEventEntry is one row of the page event table. Slot indices and the
// evicted PID are -1 when they do not apply to the event.
type PageEventEntry struct {
	ID         string
	Step       int
	Kind       string
	PID        uint32
	EvictedPID int64
	RAMIndex   int
	SwapIndex  int
	Timestamp  uint64
	Detail     int
}

// PageTracer is a hook that stores every page event into a DataRecorder.
type PageTracer struct {
	recorder datarecording.DataRecorder
	idGen    id.IDGenerator
	step     int
}

// NewPageTracer creates the page event table and returns a tracer that
// writes into it.
func NewPageTracer(recorder datarecording.DataRecorder) *PageTracer {
	recorder.CreateTable(PageEventTable, PageEventEntry{})

	return &PageTracer{
		recorder: recorder,
		idGen:    id.NewSequentialIDGenerator("evt-"),
	}
}

// SetStep sets the simulation step stamped on the following events.
func (t *PageTracer) SetStep(step int) {
	t.step = step
}

// Func records the event carried by the hook context.
func (t *PageTracer) Func(ctx hooking.HookCtx) {
	evt, ok := ctx.Item.(vm.PageEvent)
	if !ok {
		return
	}

	entry := PageEventEntry{
		ID:         t.idGen.Generate(),
		Step:       t.step,
		Kind:       ctx.Pos.Name,
		PID:        uint32(evt.PID),
		EvictedPID: -1,
		RAMIndex:   evt.RAMIndex,
		SwapIndex:  evt.SwapIndex,
		Timestamp:  evt.Timestamp,
	}

	if ctx.Pos == vm.HookPosPageEvicted {
		entry.EvictedPID = int64(evt.EvictedPID)
	}

	if detail, ok := ctx.Detail.(int); ok {
		entry.Detail = detail
	}

	t.recorder.InsertData(PageEventTable, entry)
}
