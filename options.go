package uthread

import (
	"errors"
	"io"
	"os"

	"github.com/joeycumines/logiface"
)

// Default sizing constants.
const (
	// DefaultMaxThreads is the default thread table size, including the
	// first thread and the reaper.
	DefaultMaxThreads = 64

	// DefaultMaxPrio is the default highest priority, inclusive. Priorities
	// range over [0, DefaultMaxPrio]; numerically higher is preferred.
	DefaultMaxPrio = 7

	// DefaultStackSize is the default per-thread stack region size in bytes.
	DefaultStackSize = 64 << 10
)

// runtimeOptions holds configuration options for Runtime creation.
type runtimeOptions struct {
	log        *logiface.Logger[logiface.Event]
	farewell   io.Writer
	exitFunc   func(int)
	maxThreads int
	maxPrio    int
	stackSize  int
}

// Option configures a Runtime instance.
type Option interface {
	applyRuntime(*runtimeOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyRuntimeFunc func(*runtimeOptions) error
}

func (o *optionImpl) applyRuntime(opts *runtimeOptions) error {
	return o.applyRuntimeFunc(opts)
}

// WithLogger configures structured logging for the runtime. Scheduling
// events are logged at trace and debug levels. A nil logger disables
// logging, which is also the default.
func WithLogger(log *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		opts.log = log
		return nil
	}}
}

// WithMaxThreads sets the thread table size. The minimum is 2: slot 0 is the
// first thread, and the reaper occupies another slot.
func WithMaxThreads(n int) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		if n < 2 {
			return errors.New("uthread: max threads must be at least 2")
		}
		opts.maxThreads = n
		return nil
	}}
}

// WithMaxPrio sets the highest priority, inclusive.
func WithMaxPrio(n int) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		if n < 0 {
			return errors.New("uthread: max priority must be non-negative")
		}
		opts.maxPrio = n
		return nil
	}}
}

// WithStackSize sets the per-thread stack region size, in bytes.
func WithStackSize(n int) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		if n <= 0 {
			return errors.New("uthread: stack size must be positive")
		}
		opts.stackSize = n
		return nil
	}}
}

// WithFarewell sets the writer receiving the reaper's farewell lines when no
// threads remain. Defaults to os.Stderr.
func WithFarewell(w io.Writer) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		if w == nil {
			return errors.New("uthread: nil farewell writer")
		}
		opts.farewell = w
		return nil
	}}
}

// WithExitFunc sets the function invoked by the reaper to terminate the
// process after the farewell. Defaults to os.Exit. An exit func that returns
// is permitted (e.g. in tests): the runtime then terminates the reaper's
// carrier instead of exiting the process.
func WithExitFunc(fn func(int)) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		if fn == nil {
			return errors.New("uthread: nil exit func")
		}
		opts.exitFunc = fn
		return nil
	}}
}

// resolveOptions applies Option instances to runtimeOptions.
func resolveOptions(opts []Option) (*runtimeOptions, error) {
	cfg := &runtimeOptions{
		farewell:   os.Stderr,
		exitFunc:   os.Exit,
		maxThreads: DefaultMaxThreads,
		maxPrio:    DefaultMaxPrio,
		stackSize:  DefaultStackSize,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyRuntime(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
