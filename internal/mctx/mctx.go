// Package mctx implements the machine-context primitive used by the
// threading runtime: creation of a suspended execution context that enters a
// function when first switched to, capture of the calling context, and an
// atomic transfer of control between two contexts.
//
// Each context is carried by a dedicated goroutine, parked on an unbuffered
// channel. Swap hands a run token to the target's carrier and parks the
// caller, so at most one carrier executes at any moment. The caller of Swap
// resumes when some other party swaps back into its context, which is the
// exact contract the cooperative scheduler layers on top of.
package mctx

import (
	"runtime"
)

// Context is the saved execution state of one logical thread. The zero value
// is inert; it must be initialized by [Make] or [Get] before use. A Context
// must not be copied after initialization.
type Context struct {
	// resume delivers the run token. Unbuffered: a send completes only when
	// the carrier is parked and ready, which is what makes the transfer
	// atomic with respect to the cooperative schedule.
	resume chan struct{}

	// kill is closed by Release; a parked carrier observing it terminates
	// via runtime.Goexit instead of resuming.
	kill chan struct{}

	// entry is the function the carrier runs on first dispatch, nil for
	// contexts captured with Get.
	entry func()

	// stack is the region nominally backing this context. The carrier
	// goroutine supplies the actual machine stack; the reference is retained
	// so the region's lifetime covers the context's, per the contract with
	// the caller.
	stack []byte

	started bool
}

// Make initializes ctx so that the first Swap into it begins executing entry
// on a fresh carrier. The stack region must remain valid until Release.
// The entry function must never return; terminate the context by swapping
// away permanently and then calling Release.
func Make(ctx *Context, stack []byte, entry func()) {
	ctx.resume = make(chan struct{})
	ctx.kill = make(chan struct{})
	ctx.entry = entry
	ctx.stack = stack
	ctx.started = false
}

// Get captures the calling goroutine's execution context into ctx. The
// calling goroutine becomes the context's carrier: a later Swap away from
// ctx parks it, and a Swap back into ctx resumes it.
func Get(ctx *Context) {
	ctx.resume = make(chan struct{})
	ctx.kill = make(chan struct{})
	ctx.entry = nil
	ctx.stack = nil
	ctx.started = true
}

// Swap saves the caller into old and resumes next, returning when some other
// party swaps back into old. Swapping a context into itself is a no-op.
//
// If old is released while parked, the carrier terminates via
// runtime.Goexit and Swap never returns.
func Swap(old, next *Context) {
	if old == next {
		return
	}
	if !next.started {
		next.started = true
		go func() {
			<-next.resume
			next.entry()
			panic(`mctx: context entry returned`)
		}()
	}
	next.resume <- struct{}{}
	select {
	case <-old.resume:
	case <-old.kill:
		runtime.Goexit()
	}
}

// Release permanently tears down ctx. If its carrier is parked in Swap it
// terminates without resuming; a never-dispatched carrier is never started.
// Release must be called at most once, and never on the running context.
func Release(ctx *Context) {
	if ctx.kill != nil {
		close(ctx.kill)
	}
}
