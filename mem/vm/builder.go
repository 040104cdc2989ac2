package vm

import (
	"github.com/pkg/errors"
)

// Builder can build page table managers.
type Builder struct {
	ramSize  uint64
	swapSize uint64
	pageSize uint64

	rollbackOnFailure       bool
	requeueOnFailedEviction bool
	ownershipIndex          bool
	uniqueQueueEntries      bool
}

// MakeBuilder creates a builder with 4 KiB pages and no memory.
func MakeBuilder() Builder {
	return Builder{
		pageSize: 4096,
	}
}

// WithRAMSize sets the size of RAM in bytes.
func (b Builder) WithRAMSize(bytes uint64) Builder {
	b.ramSize = bytes
	return b
}

// WithSwapSize sets the size of swap in bytes.
func (b Builder) WithSwapSize(bytes uint64) Builder {
	b.swapSize = bytes
	return b
}

// WithPageSize sets the size of a page in bytes.
func (b Builder) WithPageSize(bytes uint64) Builder {
	b.pageSize = bytes
	return b
}

// WithRollbackOnFailure makes a failed Allocate release the pages it placed
// before failing. Without it, those pages stay owned by the process.
func (b Builder) WithRollbackOnFailure() Builder {
	b.rollbackOnFailure = true
	return b
}

// WithRequeueOnFailedEviction puts the victim back at the head of the
// eviction queue when swap is full. Without it, the victim index is dropped
// from the queue.
func (b Builder) WithRequeueOnFailedEviction() Builder {
	b.requeueOnFailedEviction = true
	return b
}

// WithOwnershipIndex keeps a per-process page count so that PageCount does
// not scan the tables. Results are identical either way.
func (b Builder) WithOwnershipIndex() Builder {
	b.ownershipIndex = true
	return b
}

// WithUniqueQueueEntries keeps each RAM index in the eviction queue at most
// once. A freed slot that is reused then keeps its old queue position instead
// of being queued again, which changes which pages are evicted.
func (b Builder) WithUniqueQueueEntries() Builder {
	b.uniqueQueueEntries = true
	return b
}

func (b Builder) validate() error {
	if b.pageSize == 0 {
		return errors.New("page size must be positive")
	}

	return nil
}

func (b Builder) parametersMustBeValid() {
	if err := b.validate(); err != nil {
		panic(err)
	}
}

// Build creates a manager. All pages start free.
func (b Builder) Build(name string) *Manager {
	b.parametersMustBeValid()

	numRAMPages := b.ramSize / b.pageSize

	m := &Manager{
		name:                    name,
		pageSize:                b.pageSize,
		ram:                     newTier(TierRAM, numRAMPages),
		swap:                    newTier(TierSwap, b.swapSize/b.pageSize),
		fifo:                    newFIFOQueue(int(numRAMPages), b.uniqueQueueEntries),
		rollbackOnFailure:       b.rollbackOnFailure,
		requeueOnFailedEviction: b.requeueOnFailedEviction,
	}

	if b.ownershipIndex {
		m.ownership = make(map[PID]int)
	}

	return m
}

// NewManager creates a manager with the default replacement behavior. It
// returns an error rather than panicking on invalid sizes.
func NewManager(ramBytes, swapBytes, pageBytes uint64) (*Manager, error) {
	b := MakeBuilder().
		WithRAMSize(ramBytes).
		WithSwapSize(swapBytes).
		WithPageSize(pageBytes)

	if err := b.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid page table configuration")
	}

	return b.Build("PageTable"), nil
}
