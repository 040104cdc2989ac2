// Package config collects the settings of a simulation run from defaults, a
// .env file, and the environment.
package config

import (
	"io/fs"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/sarchlab/pagesim/logging"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "PAGESIM_"

// The largest sizes whose byte counts fit in a uint64.
const (
	MaxMB uint64 = math.MaxUint64 / (1024 * 1024)
	MaxKB uint64 = math.MaxUint64 / 1024
)

// Config holds the settings of a simulation run.
type Config struct {
	RAMMB  uint64
	SwapMB uint64
	PageKB uint64

	MaxPagesPerProcess int
	TimeStep           int
	FreeStart          int
	FreeEvery          int
	Delay              time.Duration
	Seed               int64
	MaxSteps           int
	Quiet              bool

	LogFile  string
	LogLevel string

	// Record turns on the SQLite recorder. An empty RecordPath lets the
	// recorder pick a unique file name.
	Record          bool
	RecordPath      string
	RecordSnapshots bool

	Monitor     bool
	MonitorPort int
	OpenBrowser bool

	RollbackOnFailure       bool
	RequeueOnFailedEviction bool
	OwnershipIndex          bool
	UniqueQueueEntries      bool
}

// Default returns the settings of the classic simulation: processes of 1 to
// 500 pages, one every 2 time units, with a random process terminated on
// every fifth time unit from 30 on.
func Default() Config {
	return Config{
		PageKB:             4,
		MaxPagesPerProcess: 500,
		TimeStep:           2,
		FreeStart:          30,
		FreeEvery:          5,
		Delay:              2 * time.Second,
		LogLevel:           "INFO",
	}
}

// RAMBytes returns the RAM size in bytes.
func (c Config) RAMBytes() uint64 {
	return c.RAMMB * 1024 * 1024
}

// SwapBytes returns the swap size in bytes.
func (c Config) SwapBytes() uint64 {
	return c.SwapMB * 1024 * 1024
}

// PageBytes returns the page size in bytes.
func (c Config) PageBytes() uint64 {
	return c.PageKB * 1024
}

// HasSizes tells if the memory sizes have been provided.
func (c Config) HasSizes() bool {
	return c.RAMMB > 0 && c.PageKB > 0
}

// Load starts from the defaults, loads the given .env files (".env" if none
// is given; missing files are ignored), and applies PAGESIM_* variables.
// Variables already set in the environment win over the .env files.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}

	for _, f := range envFiles {
		err := godotenv.Load(f)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, errors.Wrapf(err, "cannot load %s", f)
		}
	}

	c := Default()
	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	return c, nil
}

// ApplyEnv overrides fields with the PAGESIM_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	p := envParser{lookup: lookup}

	p.parseUint("RAM_MB", &c.RAMMB)
	p.parseUint("SWAP_MB", &c.SwapMB)
	p.parseUint("PAGE_KB", &c.PageKB)
	p.parseInt("MAX_PAGES", &c.MaxPagesPerProcess)
	p.parseInt("TIME_STEP", &c.TimeStep)
	p.parseInt("FREE_START", &c.FreeStart)
	p.parseInt("FREE_EVERY", &c.FreeEvery)
	p.parseDuration("DELAY", &c.Delay)
	p.parseInt64("SEED", &c.Seed)
	p.parseInt("MAX_STEPS", &c.MaxSteps)
	p.parseBool("QUIET", &c.Quiet)
	p.parseString("LOG_FILE", &c.LogFile)
	p.parseString("LOG_LEVEL", &c.LogLevel)
	p.parseBool("RECORD", &c.Record)
	p.parseString("RECORD_PATH", &c.RecordPath)
	p.parseBool("RECORD_SNAPSHOTS", &c.RecordSnapshots)
	p.parseBool("MONITOR", &c.Monitor)
	p.parseInt("MONITOR_PORT", &c.MonitorPort)
	p.parseBool("OPEN_BROWSER", &c.OpenBrowser)
	p.parseBool("ROLLBACK", &c.RollbackOnFailure)
	p.parseBool("REQUEUE", &c.RequeueOnFailedEviction)
	p.parseBool("OWNERSHIP_INDEX", &c.OwnershipIndex)
	p.parseBool("UNIQUE_QUEUE", &c.UniqueQueueEntries)

	return p.err
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	switch {
	case c.RAMMB == 0:
		return errors.New("RAM size must be positive")
	case c.RAMMB > MaxMB:
		return errors.Errorf("RAM size cannot exceed %d MB", MaxMB)
	case c.SwapMB > MaxMB:
		return errors.Errorf("swap size cannot exceed %d MB", MaxMB)
	case c.PageKB == 0:
		return errors.New("page size must be positive")
	case c.PageKB > MaxKB:
		return errors.Errorf("page size cannot exceed %d KB", MaxKB)
	case c.MaxPagesPerProcess <= 0:
		return errors.New("max pages per process must be positive")
	case c.TimeStep <= 0:
		return errors.New("time step must be positive")
	case c.FreeEvery <= 0:
		return errors.New("free interval must be positive")
	case c.Delay < 0:
		return errors.New("delay cannot be negative")
	case c.MaxSteps < 0:
		return errors.New("max steps cannot be negative")
	case c.MonitorPort < 0 || c.MonitorPort > 65535:
		return errors.Errorf("invalid monitor port %d", c.MonitorPort)
	case c.MonitorPort != 0 && !c.Monitor:
		return errors.New("monitor port cannot be set when monitoring is disabled")
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

type envParser struct {
	lookup func(string) (string, bool)
	err    error
}

func (p *envParser) get(name string) (string, bool) {
	if p.err != nil {
		return "", false
	}

	return p.lookup(EnvPrefix + name)
}

func (p *envParser) fail(name string, err error) {
	p.err = errors.Wrapf(err, "invalid %s%s", EnvPrefix, name)
}

func (p *envParser) parseString(name string, dst *string) {
	if v, ok := p.get(name); ok {
		*dst = v
	}
}

func (p *envParser) parseUint(name string, dst *uint64) {
	if v, ok := p.get(name); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			p.fail(name, err)
			return
		}

		*dst = n
	}
}

func (p *envParser) parseInt64(name string, dst *int64) {
	if v, ok := p.get(name); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			p.fail(name, err)
			return
		}

		*dst = n
	}
}

func (p *envParser) parseInt(name string, dst *int) {
	n := int64(*dst)
	p.parseInt64(name, &n)
	*dst = int(n)
}

func (p *envParser) parseBool(name string, dst *bool) {
	if v, ok := p.get(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			p.fail(name, err)
			return
		}

		*dst = b
	}
}

func (p *envParser) parseDuration(name string, dst *time.Duration) {
	if v, ok := p.get(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			p.fail(name, err)
			return
		}

		*dst = d
	}
}
