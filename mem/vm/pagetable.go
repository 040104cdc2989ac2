// Package vm models a two-tier page table: a fixed RAM pool backed by a fixed
// swap pool, with FIFO replacement of RAM pages.
package vm

import (
	"fmt"
	"strings"
)

// PID stands for Process ID.
type PID uint32

// Tier tells which pool a page slot belongs to.
type Tier int

// The two tiers of the page table.
const (
	TierRAM Tier = iota
	TierSwap
)

func (t Tier) String() string {
	switch t {
	case TierRAM:
		return "RAM"
	case TierSwap:
		return "Swap"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// MarshalText makes tiers readable in JSON output.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(t.String())), nil
}

// UnmarshalText parses the names produced by MarshalText.
func (t *Tier) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "ram":
		*t = TierRAM
	case "swap":
		*t = TierSwap
	default:
		return fmt.Errorf("unknown tier %q", text)
	}

	return nil
}

// A Page is an entry in the page table. It describes one physical slot in
// either RAM or swap and the process that currently owns it.
type Page struct {
	Tier  Tier
	Owner PID
	Owned bool

	// Timestamp is the logical clock value at the last (re)assignment. It has
	// no meaning while the page is free.
	Timestamp uint64
}

// IsFree tells if the page can be handed to any process.
func (p Page) IsFree() bool {
	return !p.Owned
}

func (p *Page) release() {
	p.Owner = 0
	p.Owned = false
}

func newTier(tier Tier, numPages uint64) []Page {
	pages := make([]Page, numPages)
	for i := range pages {
		pages[i].Tier = tier
	}

	return pages
}

func firstFree(pages []Page) (int, bool) {
	for i := range pages {
		if pages[i].IsFree() {
			return i, true
		}
	}

	return 0, false
}
