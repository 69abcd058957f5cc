package config

import "sync/atomic"

// RuntimeFlags is the small atomic record of mutable runtime state that
// signal handlers post into and the Supervisor polls at the top of every
// tick. Each flag is an independent atomic boolean so pause/resume/
// terminate can be set from a signal-handling goroutine without a lock.
type RuntimeFlags struct {
	paused    atomic.Bool
	terminate atomic.Bool
	verbose   atomic.Bool
}

// NewRuntimeFlags returns a RuntimeFlags with the given initial verbosity.
func NewRuntimeFlags(verbose bool) *RuntimeFlags {
	f := &RuntimeFlags{}
	f.verbose.Store(verbose)
	return f
}

// Pause sets the paused flag (SIGUSR1).
func (f *RuntimeFlags) Pause() { f.paused.Store(true) }

// Resume clears the paused flag (SIGUSR2).
func (f *RuntimeFlags) Resume() { f.paused.Store(false) }

// Paused reports whether the scheduler is currently paused.
func (f *RuntimeFlags) Paused() bool { return f.paused.Load() }

// Terminate requests a clean shutdown (SIGTERM).
func (f *RuntimeFlags) Terminate() { f.terminate.Store(true) }

// Terminating reports whether a clean shutdown has been requested.
func (f *RuntimeFlags) Terminating() bool { return f.terminate.Load() }

// SetVerbose updates the verbosity flag.
func (f *RuntimeFlags) SetVerbose(v bool) { f.verbose.Store(v) }

// Verbose reports the current verbosity flag.
func (f *RuntimeFlags) Verbose() bool { return f.verbose.Load() }
