// Package logging provides the structured logging adapter shared across the kernel.
//
// It implements the two ad-hoc logger interfaces already defined in the codebase
// (commbus.Logger and commbus.BusLogger) on top of zerolog, so every package that
// already depends on those interfaces gets structured, leveled, field-chaining
// logging without changing a single call site.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeeves-cluster-organization/llmspellkernel/commbus"
)

// Adapter wraps a zerolog.Logger and satisfies both commbus.Logger and
// commbus.BusLogger. Field chaining (Bind) returns a new Adapter backed by
// a derived zerolog context, matching the immutable-logger idiom zerolog itself
// encourages.
type Adapter struct {
	zl zerolog.Logger
}

// New builds an Adapter writing to w at the given minimum level. Pass nil for
// w to default to os.Stderr.
func New(serviceName string, w io.Writer, level zerolog.Level) *Adapter {
	if w == nil {
		w = os.Stderr
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zl := zerolog.New(w).Level(level).With().
		Timestamp().
		Str("service", serviceName).
		Logger()
	return &Adapter{zl: zl}
}

// NewConsole builds an Adapter using zerolog's human-friendly console writer,
// useful for local development (slower, not for production throughput).
func NewConsole(serviceName string, level zerolog.Level) *Adapter {
	cw := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return New(serviceName, cw, level)
}

func fieldsFromPairs(args []any) map[string]any {
	fields := make(map[string]any, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		fields[key] = args[i+1]
	}
	return fields
}

// --- commbus.Logger -----------------------------------------------------

func (a *Adapter) Debug(msg string, args ...any) {
	a.zl.Debug().Fields(fieldsFromPairs(args)).Msg(msg)
}

func (a *Adapter) Info(msg string, args ...any) {
	a.zl.Info().Fields(fieldsFromPairs(args)).Msg(msg)
}

// Warning satisfies commbus.Logger. Note the name mismatch with BusLogger's
// Warn below is inherited from the two pre-existing interfaces, not introduced
// here.
func (a *Adapter) Warning(msg string, args ...any) {
	a.zl.Warn().Fields(fieldsFromPairs(args)).Msg(msg)
}

func (a *Adapter) Error(msg string, args ...any) {
	a.zl.Error().Fields(fieldsFromPairs(args)).Msg(msg)
}

// Bind returns a derived Logger with args attached to every subsequent entry.
func (a *Adapter) Bind(args ...any) commbus.Logger {
	ctx := a.zl.With()
	for k, v := range fieldsFromPairs(args) {
		ctx = ctx.Interface(k, v)
	}
	return &Adapter{zl: ctx.Logger()}
}

// --- commbus.BusLogger ----------------------------------------------------

func (a *Adapter) Warn(msg string, keysAndValues ...any) {
	a.Warning(msg, keysAndValues...)
}

var (
	_ commbus.Logger    = (*Adapter)(nil)
	_ commbus.BusLogger = (*Adapter)(nil)
)
