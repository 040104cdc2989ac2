// Package simulation drives a page table with a stream of randomly sized
// processes, terminating some of them along the way, until memory runs out.
package simulation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strconv"
	"time"

	"github.com/sarchlab/pagesim/config"
	"github.com/sarchlab/pagesim/datarecording"
	"github.com/sarchlab/pagesim/mem/vm"
	"github.com/sarchlab/pagesim/monitoring"
	"github.com/sarchlab/pagesim/tracing"
)

// StopReason tells why a run ended.
type StopReason int

// The reasons a run can end.
const (
	StopInsufficientMemory StopReason = iota
	StopMaxSteps
	StopCancelled
)

func (r StopReason) String() string {
	switch r {
	case StopInsufficientMemory:
		return "insufficient memory"
	case StopMaxSteps:
		return "max steps reached"
	case StopCancelled:
		return "cancelled"
	default:
		return "StopReason(" + strconv.Itoa(int(r)) + ")"
	}
}

// Result summarizes a finished run.
type Result struct {
	// Steps is the number of steps that completed, not counting the step in
	// which allocation failed.
	Steps      int
	Created    int
	Freed      int
	Time       int
	StopReason StopReason
}

// A Simulation owns a page table and the services that observe it.
type Simulation struct {
	id      string
	cfg     config.Config
	seed    int64
	rng     *rand.Rand
	out     io.Writer
	logger  *slog.Logger
	manager *vm.Manager

	recorder       datarecording.DataRecorder
	ownsRecorder   bool
	execRecorder   *datarecording.ExecRecorder
	pageTracer     *tracing.PageTracer
	snapshotTracer *tracing.SnapshotTracer
	eventCounter   *tracing.EventCountTracer
	monitor        *monitoring.Monitor

	nextPID vm.PID
	live    []vm.PID
}

// ID returns the unique ID of the run.
func (s *Simulation) ID() string {
	return s.id
}

// Seed returns the seed of the random number generator.
func (s *Simulation) Seed() int64 {
	return s.seed
}

// Manager returns the page table being simulated.
func (s *Simulation) Manager() *vm.Manager {
	return s.manager
}

// Monitor returns the monitor, or nil if monitoring is off.
func (s *Simulation) Monitor() *monitoring.Monitor {
	return s.monitor
}

// DataRecorder returns the recorder, or nil if recording is off.
func (s *Simulation) DataRecorder() datarecording.DataRecorder {
	return s.recorder
}

// EventCounts returns the number of page events of each kind seen so far.
func (s *Simulation) EventCounts() map[string]uint64 {
	counts := make(map[string]uint64)
	for _, name := range s.eventCounter.GetEventNames() {
		counts[name] = s.eventCounter.GetEventCount(name)
	}

	return counts
}

// LiveProcesses returns the processes created and not yet terminated.
func (s *Simulation) LiveProcesses() []vm.PID {
	return append([]vm.PID(nil), s.live...)
}

// Run executes steps until a process cannot be allocated, the step limit is
// reached, or ctx is cancelled. Cancellation is not an error.
func (s *Simulation) Run(ctx context.Context) (Result, error) {
	res := Result{}

	var bar *monitoring.ProgressBar
	if s.monitor != nil {
		bar = s.monitor.CreateProgressBar("Steps", uint64(s.cfg.MaxSteps))
		defer s.monitor.CompleteProgressBar(bar)
	}

	s.logger.Info("simulation started",
		"id", s.id,
		"seed", s.seed,
		"ram_pages", s.manager.NumRAMPages(),
		"swap_pages", s.manager.NumSwapPages(),
		"page_bytes", s.manager.PageSize())

	for step := 0; ; step++ {
		if s.cfg.MaxSteps > 0 && step >= s.cfg.MaxSteps {
			res.StopReason = StopMaxSteps
			break
		}

		if ctx.Err() != nil {
			res.StopReason = StopCancelled
			break
		}

		now := step * s.cfg.TimeStep
		res.Time = now

		if bar != nil {
			bar.IncrementInProgress(1)
		}

		if !s.step(step, now, &res) {
			res.StopReason = StopInsufficientMemory
			break
		}

		res.Steps++

		if bar != nil {
			bar.MoveInProgressToFinished(1)
		}

		if !sleep(ctx, s.cfg.Delay) {
			res.StopReason = StopCancelled
			break
		}
	}

	s.logger.Info("simulation ended",
		"reason", res.StopReason.String(),
		"steps", res.Steps,
		"created", res.Created,
		"freed", res.Freed)

	for _, name := range s.eventCounter.GetEventNames() {
		s.logger.Info("page events",
			"kind", name,
			"count", s.eventCounter.GetEventCount(name),
			"processes", s.eventCounter.GetProcessCount(name))
	}

	if s.execRecorder != nil {
		s.execRecorder.Set("Steps", strconv.Itoa(res.Steps))
		s.execRecorder.Set("Stop Reason", res.StopReason.String())
	}

	return res, nil
}

// step creates one process and, on schedule, terminates a random live one.
// It returns false if the new process did not fit.
func (s *Simulation) step(step, now int, res *Result) bool {
	if s.pageTracer != nil {
		s.pageTracer.SetStep(step)
	}

	pid := s.nextPID
	s.nextPID++
	numPages := s.rng.Intn(s.cfg.MaxPagesPerProcess) + 1

	if !s.manager.Allocate(pid, numPages) {
		fmt.Fprintln(s.out, "Insufficient memory. Ending simulation.")
		s.logger.Warn("allocation failed",
			"pid", pid, "pages", numPages, "time", now)

		return false
	}

	s.live = append(s.live, pid)
	res.Created++
	fmt.Fprintf(s.out, "Created process %d with %d pages.\n", pid, numPages)

	if s.freeDue(now) && len(s.live) > 0 {
		i := s.rng.Intn(len(s.live))
		victim := s.live[i]
		s.live = append(s.live[:i], s.live[i+1:]...)

		s.manager.Free(victim)
		res.Freed++
		fmt.Fprintf(s.out, "Freed process %d.\n", victim)
	}

	snap := s.manager.Snapshot()

	if !s.cfg.Quiet {
		if _, err := snap.WriteTo(s.out); err != nil {
			s.logger.Error("cannot print memory state", "error", err)
		}
	}

	if s.snapshotTracer != nil {
		s.snapshotTracer.Record(step, snap)
	}

	return true
}

func (s *Simulation) freeDue(now int) bool {
	return now >= s.cfg.FreeStart && now%s.cfg.FreeEvery == 0
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Terminate writes the run information, closes the recorder if the
// simulation opened it, and stops the monitor.
func (s *Simulation) Terminate() error {
	if s.execRecorder != nil {
		s.execRecorder.End()
	}

	if s.monitor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.monitor.StopServer(ctx); err != nil {
			s.logger.Warn("cannot stop monitor", "error", err)
		}
	}

	return s.closeRecorder()
}

func (s *Simulation) closeRecorder() error {
	if s.recorder == nil || !s.ownsRecorder {
		return nil
	}

	return s.recorder.Close()
}
