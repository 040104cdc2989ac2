package tracing

import (
	"context"
	"log/slog"

	"github.com/sarchlab/pagesim/mem/vm"
	"github.com/sarchlab/pagesim/sim/hooking"
)

// LogTracer is a hook that logs page events.
type LogTracer struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogTracer creates a LogTracer that logs at debug level.
func NewLogTracer(logger *slog.Logger) *LogTracer {
	return &LogTracer{logger: logger, level: slog.LevelDebug}
}

// WithLevel changes the level events are logged at.
func (t *LogTracer) WithLevel(level slog.Level) *LogTracer {
	t.level = level
	return t
}

// Func logs the event.
func (t *LogTracer) Func(ctx hooking.HookCtx) {
	evt, ok := ctx.Item.(vm.PageEvent)
	if !ok {
		return
	}

	attrs := []any{"pid", evt.PID, "clock", evt.Timestamp}

	switch ctx.Pos {
	case vm.HookPosPagePlaced:
		attrs = append(attrs, "ram", evt.RAMIndex)
	case vm.HookPosPageEvicted:
		attrs = append(attrs,
			"ram", evt.RAMIndex,
			"swap", evt.SwapIndex,
			"evicted_pid", evt.EvictedPID)
	case vm.HookPosEvictionFailed:
		attrs = append(attrs, "victim", evt.RAMIndex)
	case vm.HookPosProcessFreed:
		attrs = append(attrs, "released", ctx.Detail)
	case vm.HookPosAllocationFailed:
		attrs = append(attrs, "placed", ctx.Detail)
	}

	t.logger.Log(context.Background(), t.level, ctx.Pos.Name, attrs...)
}
