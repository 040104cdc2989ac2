package tracing

import (
	"github.com/sarchlab/pagesim/datarecording"
	"github.com/sarchlab/pagesim/mem/vm"
)

// SnapshotTable is the table that holds page table snapshots.
const SnapshotTable = "page_snapshots"

// SnapshotEntry is the state of one slot at one simulation step.
type SnapshotEntry struct {
	Step      int
	Tier      string
	Slot      int
	Owned     bool
	PID       uint32
	Timestamp uint64
}

// SnapshotTracer stores whole snapshots, one row per slot.
type SnapshotTracer struct {
	recorder datarecording.DataRecorder
}

// NewSnapshotTracer creates the snapshot table.
func NewSnapshotTracer(recorder datarecording.DataRecorder) *SnapshotTracer {
	recorder.CreateTable(SnapshotTable, SnapshotEntry{})

	return &SnapshotTracer{recorder: recorder}
}

// Record stores the snapshot taken at the given step.
func (t *SnapshotTracer) Record(step int, s vm.Snapshot) {
	for _, v := range s.Entries() {
		t.recorder.InsertData(SnapshotTable, SnapshotEntry{
			Step:      step,
			Tier:      v.Tier.String(),
			Slot:      v.Index,
			Owned:     v.Owned,
			PID:       uint32(v.Owner),
			Timestamp: v.Timestamp,
		})
	}
}
