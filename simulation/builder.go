package simulation

import (
	"io"
	"log/slog"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sarchlab/pagesim/config"
	"github.com/sarchlab/pagesim/datarecording"
	"github.com/sarchlab/pagesim/mem/vm"
	"github.com/sarchlab/pagesim/monitoring"
	"github.com/sarchlab/pagesim/sim/hooking"
	"github.com/sarchlab/pagesim/sim/id"
	"github.com/sarchlab/pagesim/tracing"
)

// Builder can be used to build a simulation.
type Builder struct {
	cfg      config.Config
	out      io.Writer
	logger   *slog.Logger
	recorder datarecording.DataRecorder
}

// MakeBuilder creates a builder with the default settings. Sizes must be set
// with WithConfig before building.
func MakeBuilder() Builder {
	return Builder{
		cfg: config.Default(),
		out: os.Stdout,
	}
}

// WithConfig sets every setting of the simulation.
func (b Builder) WithConfig(cfg config.Config) Builder {
	b.cfg = cfg
	return b
}

// WithOutput sets where the step messages and the memory listings are
// printed.
func (b Builder) WithOutput(w io.Writer) Builder {
	b.out = w
	return b
}

// WithLogger sets the logger. Without one, log records are dropped.
func (b Builder) WithLogger(logger *slog.Logger) Builder {
	b.logger = logger
	return b
}

// WithDataRecorder makes the simulation record into an existing recorder
// instead of opening a file. The simulation does not close it.
func (b Builder) WithDataRecorder(r datarecording.DataRecorder) Builder {
	b.recorder = r
	return b
}

func (b Builder) parametersMustBeValid() {
	if err := b.cfg.Validate(); err != nil {
		panic(err)
	}
}

// Build creates the simulation. It panics on invalid settings and returns an
// error if the recorder or the monitor cannot be started.
func (b Builder) Build() (*Simulation, error) {
	b.parametersMustBeValid()

	s := &Simulation{
		id:     id.RunID(),
		cfg:    b.cfg,
		out:    b.out,
		logger: b.logger,
	}

	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s.seed = b.cfg.Seed
	if s.seed == 0 {
		s.seed = time.Now().UnixNano()
	}
	s.rng = rand.New(rand.NewSource(s.seed))

	s.manager = b.buildManager()
	s.eventCounter = tracing.NewEventCountTracer()
	s.manager.AcceptHook(s.eventCounter)
	b.attachLogTracers(s)

	if err := b.setupRecording(s); err != nil {
		return nil, err
	}

	if b.cfg.Monitor {
		if err := b.setupMonitor(s); err != nil {
			if closeErr := s.closeRecorder(); closeErr != nil {
				s.logger.Error("cannot close recorder", "error", closeErr)
			}

			return nil, err
		}
	}

	return s, nil
}

// attachLogTracers logs routine page events at debug level and failures as
// warnings.
func (b Builder) attachLogTracers(s *Simulation) {
	s.manager.AcceptHook(hooking.PosFilter(
		tracing.NewLogTracer(s.logger),
		vm.HookPosPagePlaced,
		vm.HookPosPageEvicted,
		vm.HookPosProcessFreed))

	s.manager.AcceptHook(hooking.PosFilter(
		tracing.NewLogTracer(s.logger).WithLevel(slog.LevelWarn),
		vm.HookPosEvictionFailed,
		vm.HookPosAllocationFailed))
}

func (b Builder) buildManager() *vm.Manager {
	mb := vm.MakeBuilder().
		WithRAMSize(b.cfg.RAMBytes()).
		WithSwapSize(b.cfg.SwapBytes()).
		WithPageSize(b.cfg.PageBytes())

	if b.cfg.RollbackOnFailure {
		mb = mb.WithRollbackOnFailure()
	}

	if b.cfg.RequeueOnFailedEviction {
		mb = mb.WithRequeueOnFailedEviction()
	}

	if b.cfg.OwnershipIndex {
		mb = mb.WithOwnershipIndex()
	}

	if b.cfg.UniqueQueueEntries {
		mb = mb.WithUniqueQueueEntries()
	}

	return mb.Build("PageTable")
}

func (b Builder) setupRecording(s *Simulation) error {
	switch {
	case b.recorder != nil:
		s.recorder = b.recorder
	case b.cfg.Record:
		r, err := datarecording.New(b.cfg.RecordPath)
		if err != nil {
			return errors.Wrap(err, "cannot start recording")
		}

		s.recorder = r
		s.ownsRecorder = true
	default:
		return nil
	}

	s.execRecorder = datarecording.NewExecRecorder(s.recorder)
	s.execRecorder.Start()
	s.execRecorder.Set("Run ID", s.id)
	s.execRecorder.Set("Seed", strconv.FormatInt(s.seed, 10))
	s.execRecorder.Set("RAM Bytes", strconv.FormatUint(b.cfg.RAMBytes(), 10))
	s.execRecorder.Set("Swap Bytes", strconv.FormatUint(b.cfg.SwapBytes(), 10))
	s.execRecorder.Set("Page Bytes", strconv.FormatUint(b.cfg.PageBytes(), 10))

	s.pageTracer = tracing.NewPageTracer(s.recorder)
	s.manager.AcceptHook(s.pageTracer)

	if b.cfg.RecordSnapshots {
		s.snapshotTracer = tracing.NewSnapshotTracer(s.recorder)
	}

	return nil
}

func (b Builder) setupMonitor(s *Simulation) error {
	s.monitor = monitoring.NewMonitor().
		WithPortNumber(b.cfg.MonitorPort).
		WithBrowser(b.cfg.OpenBrowser)
	s.monitor.RegisterPageTable(s.manager)

	url, err := s.monitor.StartServer()
	if err != nil {
		return err
	}

	s.logger.Info("monitor started", "url", url)

	return nil
}
