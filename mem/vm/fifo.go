package vm

// fifoQueue orders RAM slot indices by assignment, oldest first. Every
// assignment appends its index, so a freed slot that is reused before its old
// entry is popped is queued twice and will be evicted twice.
//
// A unique queue holds each index at most once instead. Pushing an index that
// is already queued then keeps its earlier position.
type fifoQueue struct {
	indices []int
	unique  bool
	queued  []bool
}

func newFIFOQueue(numSlots int, unique bool) *fifoQueue {
	q := &fifoQueue{
		indices: make([]int, 0, numSlots),
		unique:  unique,
	}

	if unique {
		q.queued = make([]bool, numSlots)
	}

	return q
}

func (q *fifoQueue) push(index int) {
	if !q.admit(index) {
		return
	}

	q.indices = append(q.indices, index)
}

// pushFront returns an index to the head of the queue.
func (q *fifoQueue) pushFront(index int) {
	if !q.admit(index) {
		return
	}

	q.indices = append([]int{index}, q.indices...)
}

func (q *fifoQueue) admit(index int) bool {
	if !q.unique {
		return true
	}

	if q.queued[index] {
		return false
	}

	q.queued[index] = true

	return true
}

func (q *fifoQueue) pop() (int, bool) {
	if len(q.indices) == 0 {
		return 0, false
	}

	index := q.indices[0]
	q.indices = q.indices[1:]

	if q.unique {
		q.queued[index] = false
	}

	return index, true
}

func (q *fifoQueue) size() int {
	return len(q.indices)
}

func (q *fifoQueue) order() []int {
	order := make([]int, len(q.indices))
	copy(order, q.indices)

	return order
}
