package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sarchlab/pagesim/config"
	"github.com/sarchlab/pagesim/logging"
	"github.com/sarchlab/pagesim/simulation"
)

func newRunCommand() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulation.",
		Long: `Run the simulation until a process does not fit in memory. ` +
			`Settings come from the flags, the PAGESIM_* environment ` +
			`variables and the .env file, in this order of precedence. ` +
			`Sizes that are not given are asked for on the console.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			return runSimulation(cmd, cfg)
		},
	}

	d := config.Default()
	f := runCmd.Flags()

	f.Uint64("ram-mb", 0, "RAM size in MB.")
	f.Uint64("swap-mb", 0, "Swap size in MB.")
	f.Uint64("page-kb", d.PageKB, "Page size in KB.")
	f.Int("max-pages", d.MaxPagesPerProcess,
		"Largest number of pages a new process asks for.")
	f.Int("time-step", d.TimeStep, "Time units between two processes.")
	f.Int("free-start", d.FreeStart,
		"Time from which processes start to be terminated.")
	f.Int("free-every", d.FreeEvery,
		"Terminate a process at times that are multiples of this value.")
	f.Duration("delay", d.Delay, "Wall-clock pause between steps.")
	f.Int64("seed", 0, "Random seed. 0 picks one from the clock.")
	f.Int("max-steps", 0, "Stop after this many steps. 0 means no limit.")
	f.Bool("quiet", false, "Do not print the memory state after each step.")
	f.Bool("record", false, "Record page events into a SQLite database.")
	f.String("record-path", "",
		"Database path without the .sqlite3 suffix. Empty picks a unique name.")
	f.Bool("record-snapshots", false,
		"Also record the full page tables after each step.")
	f.Bool("monitor", false, "Serve the page tables over HTTP.")
	f.Int("monitor-port", 0, "Port of the monitor. 0 picks a random port.")
	f.Bool("open-browser", false, "Open the monitor in the default browser.")
	f.Bool("rollback", false,
		"Release the pages of a process whose allocation failed.")
	f.Bool("requeue", false,
		"Keep the victim in the eviction queue when swap is full.")
	f.Bool("ownership-index", false,
		"Keep a per-process page count instead of scanning the tables.")
	f.Bool("unique-queue", false,
		"Queue each RAM page at most once for eviction.")
	f.Bool("no-prompt", false,
		"Fail instead of asking for sizes that are not given.")

	return runCmd
}

func init() {
	rootCmd.AddCommand(newRunCommand())
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	envFiles, _ := cmd.Flags().GetStringSlice("env-file")

	cfg, err := config.Load(envFiles...)
	if err != nil {
		return cfg, err
	}

	applyFlags(cmd, &cfg)

	noPrompt, _ := cmd.Flags().GetBool("no-prompt")
	if !cfg.HasSizes() && !noPrompt {
		err = promptSizes(cmd.InOrStdin(), cmd.OutOrStdout(), &cfg)
		if err != nil {
			return cfg, err
		}
	}

	return cfg, cfg.Validate()
}

// applyFlags copies the flags set on the command line into cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()

	uints := map[string]*uint64{
		"ram-mb":  &cfg.RAMMB,
		"swap-mb": &cfg.SwapMB,
		"page-kb": &cfg.PageKB,
	}
	for name, dst := range uints {
		if f.Changed(name) {
			*dst, _ = f.GetUint64(name)
		}
	}

	ints := map[string]*int{
		"max-pages":    &cfg.MaxPagesPerProcess,
		"time-step":    &cfg.TimeStep,
		"free-start":   &cfg.FreeStart,
		"free-every":   &cfg.FreeEvery,
		"max-steps":    &cfg.MaxSteps,
		"monitor-port": &cfg.MonitorPort,
	}
	for name, dst := range ints {
		if f.Changed(name) {
			*dst, _ = f.GetInt(name)
		}
	}

	bools := map[string]*bool{
		"quiet":            &cfg.Quiet,
		"record":           &cfg.Record,
		"record-snapshots": &cfg.RecordSnapshots,
		"monitor":          &cfg.Monitor,
		"open-browser":     &cfg.OpenBrowser,
		"rollback":         &cfg.RollbackOnFailure,
		"requeue":          &cfg.RequeueOnFailedEviction,
		"ownership-index":  &cfg.OwnershipIndex,
		"unique-queue":     &cfg.UniqueQueueEntries,
	}
	for name, dst := range bools {
		if f.Changed(name) {
			*dst, _ = f.GetBool(name)
		}
	}

	if f.Changed("delay") {
		cfg.Delay, _ = f.GetDuration("delay")
	}

	if f.Changed("seed") {
		cfg.Seed, _ = f.GetInt64("seed")
	}

	if f.Changed("record-path") {
		cfg.RecordPath, _ = f.GetString("record-path")
	}

	if f.Changed("log-level") {
		cfg.LogLevel, _ = f.GetString("log-level")
	}

	if f.Changed("log-file") {
		cfg.LogFile, _ = f.GetString("log-file")
	}
}

func runSimulation(cmd *cobra.Command, cfg config.Config) error {
	logger, logCloser, err := logging.Init(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	s, err := simulation.MakeBuilder().
		WithConfig(cfg).
		WithOutput(cmd.OutOrStdout()).
		WithLogger(logger).
		Build()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(
		backgroundIfNil(cmd.Context()), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, runErr := s.Run(ctx)

	if err := s.Terminate(); err != nil {
		logger.Error("cannot finish recording", "error", err)
	}

	if runErr != nil {
		return runErr
	}

	if res.StopReason == simulation.StopCancelled {
		fmt.Fprintln(cmd.ErrOrStderr(), "Simulation interrupted.")
	}

	return nil
}

func backgroundIfNil(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}

	return ctx
}
