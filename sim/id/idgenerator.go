// Package id generates identifiers for simulation runs and recorded events.
package id

import (
	"strconv"
	"sync/atomic"

	"github.com/rs/xid"
)

// IDGenerator can generate IDs.
type IDGenerator interface {
	Generate() string
}

// NewSequentialIDGenerator returns a generator that produces 1, 2, 3, ...
// prefixed by prefix. Sequential IDs keep recorded runs deterministic.
func NewSequentialIDGenerator(prefix string) IDGenerator {
	return &sequentialIDGenerator{prefix: prefix}
}

// NewUniqueIDGenerator returns a generator backed by xid. The IDs are globally
// unique but not deterministic.
func NewUniqueIDGenerator() IDGenerator {
	return uniqueIDGenerator{}
}

var runIDs = NewUniqueIDGenerator()

// RunID returns a fresh globally unique ID for naming a simulation run.
func RunID() string {
	return runIDs.Generate()
}

type sequentialIDGenerator struct {
	prefix string
	nextID uint64
}

func (g *sequentialIDGenerator) Generate() string {
	idNumber := atomic.AddUint64(&g.nextID, 1)

	return g.prefix + strconv.FormatUint(idNumber, 10)
}

type uniqueIDGenerator struct{}

func (uniqueIDGenerator) Generate() string {
	return xid.New().String()
}
