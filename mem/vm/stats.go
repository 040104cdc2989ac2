package vm

// Stats summarizes the occupancy and the activity of a Manager.
type Stats struct {
	RAMPages      int    `json:"ram_pages"`
	SwapPages     int    `json:"swap_pages"`
	FreeRAMPages  int    `json:"free_ram_pages"`
	FreeSwapPages int    `json:"free_swap_pages"`
	QueueLength   int    `json:"queue_length"`
	Clock         uint64 `json:"clock"`

	Placements        uint64 `json:"placements"`
	Evictions         uint64 `json:"evictions"`
	FailedEvictions   uint64 `json:"failed_evictions"`
	FailedAllocations uint64 `json:"failed_allocations"`
}

// Stats returns the current statistics.
func (m *Manager) Stats() Stats {
	m.Lock()
	defer m.Unlock()

	return Stats{
		RAMPages:          len(m.ram),
		SwapPages:         len(m.swap),
		FreeRAMPages:      countFree(m.ram),
		FreeSwapPages:     countFree(m.swap),
		QueueLength:       m.fifo.size(),
		Clock:             m.clock,
		Placements:        m.placements,
		Evictions:         m.evictions,
		FailedEvictions:   m.failedEvictions,
		FailedAllocations: m.failedAllocations,
	}
}

func countFree(pages []Page) int {
	free := 0

	for i := range pages {
		if pages[i].IsFree() {
			free++
		}
	}

	return free
}
