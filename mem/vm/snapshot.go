package vm

import (
	"bufio"
	"fmt"
	"io"
)

// PageView is a read-only copy of one page table entry.
type PageView struct {
	Index     int    `json:"index"`
	Tier      Tier   `json:"tier"`
	Owner     PID    `json:"owner"`
	Owned     bool   `json:"owned"`
	Timestamp uint64 `json:"timestamp"`
}

// Snapshot is a copy of both page tables at one moment.
type Snapshot struct {
	RAM  []PageView `json:"ram"`
	Swap []PageView `json:"swap"`
}

// Snapshot copies the state of both tiers. The result does not share memory
// with the manager.
func (m *Manager) Snapshot() Snapshot {
	m.Lock()
	defer m.Unlock()

	return Snapshot{
		RAM:  viewTier(m.ram),
		Swap: viewTier(m.swap),
	}
}

func viewTier(pages []Page) []PageView {
	views := make([]PageView, len(pages))
	for i, p := range pages {
		views[i] = PageView{
			Index:     i,
			Tier:      p.Tier,
			Owner:     p.Owner,
			Owned:     p.Owned,
			Timestamp: p.Timestamp,
		}
	}

	return views
}

// Entries lists the RAM entries followed by the swap entries.
func (s Snapshot) Entries() []PageView {
	entries := make([]PageView, 0, len(s.RAM)+len(s.Swap))
	entries = append(entries, s.RAM...)
	entries = append(entries, s.Swap...)

	return entries
}

// Owners returns, for each slot of the given tier, a pointer to the owner or
// nil for a free slot.
func (s Snapshot) Owners(tier Tier) []*PID {
	views := s.RAM
	if tier == TierSwap {
		views = s.Swap
	}

	owners := make([]*PID, len(views))
	for i, v := range views {
		if v.Owned {
			owner := v.Owner
			owners[i] = &owner
		}
	}

	return owners
}

// WriteTo prints the snapshot as a listing of every RAM page followed by every
// swap page.
func (s Snapshot) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	cw := &countingWriter{w: bw}

	fmt.Fprintln(cw, "RAM:")
	writeViews(cw, s.RAM)
	fmt.Fprintln(cw)
	fmt.Fprintln(cw, "Swap:")
	writeViews(cw, s.Swap)

	if cw.err != nil {
		return cw.n, cw.err
	}

	return cw.n, bw.Flush()
}

func writeViews(w io.Writer, views []PageView) {
	for _, v := range views {
		if v.Owned {
			fmt.Fprintf(w, "Page %d: Process %d\n", v.Index, v.Owner)
		} else {
			fmt.Fprintf(w, "Page %d: Free\n", v.Index)
		}
	}
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}

	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err

	return n, err
}
