package tracing

import (
	"sync"

	"github.com/sarchlab/pagesim/mem/vm"
	"github.com/sarchlab/pagesim/sim/hooking"
)

// EventCountTracer counts page events by kind and remembers how many distinct
// processes took part in each kind.
type EventCountTracer struct {
	lock        sync.Mutex
	eventNames  []string
	eventCount  map[string]uint64
	pidsByEvent map[string]map[vm.PID]struct{}
}

// NewEventCountTracer creates a new EventCountTracer.
func NewEventCountTracer() *EventCountTracer {
	return &EventCountTracer{
		eventCount:  make(map[string]uint64),
		pidsByEvent: make(map[string]map[vm.PID]struct{}),
	}
}

// GetEventNames returns the kinds of events seen, in the order they first
// happened.
func (t *EventCountTracer) GetEventNames() []string {
	t.lock.Lock()
	defer t.lock.Unlock()

	return append([]string(nil), t.eventNames...)
}

// GetEventCount returns how many events of a kind happened.
func (t *EventCountTracer) GetEventCount(eventName string) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.eventCount[eventName]
}

// GetProcessCount returns how many processes caused at least one event of a
// kind.
func (t *EventCountTracer) GetProcessCount(eventName string) int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return len(t.pidsByEvent[eventName])
}

// Func counts the event carried by the hook context.
func (t *EventCountTracer) Func(ctx hooking.HookCtx) {
	evt, ok := ctx.Item.(vm.PageEvent)
	if !ok {
		return
	}

	name := ctx.Pos.Name

	t.lock.Lock()
	defer t.lock.Unlock()

	if _, seen := t.eventCount[name]; !seen {
		t.eventNames = append(t.eventNames, name)
		t.pidsByEvent[name] = make(map[vm.PID]struct{})
	}

	t.eventCount[name]++
	t.pidsByEvent[name][evt.PID] = struct{}{}
}
