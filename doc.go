// Package uthread provides a cooperative user-space threading runtime: many
// logical threads multiplexed onto the single goroutine that created the
// [Runtime], each with its own execution context, coordinated through a
// fixed-priority scheduler and classical synchronization primitives.
//
// # Architecture
//
// A [Runtime] owns a fixed-size thread table, an array of FIFO run queues
// indexed by priority, and a reap queue serviced by a dedicated reaper
// thread. [New] promotes the calling goroutine into thread 0 and starts the
// reaper at the maximum priority. Threads are started with [Runtime.Create],
// run until they voluntarily give up the CPU, and are reclaimed either by
// the reaper (detachable threads) or through [Runtime.Join] (joinable
// threads, see [Runtime.SetJoinable]).
//
// # Scheduling Model
//
// Scheduling is strictly cooperative: a thread runs until it calls
// [Runtime.Yield], [Runtime.Exit], [Runtime.Join], a blocking [Mutex.Lock],
// or [Cond.Wait], or gives another thread a priority above its own through
// [Runtime.SetPrio] or [Runtime.Create], which then yields. Dispatch is by priority, numerically higher first, FIFO
// within a level. There is no preemption and no time-slicing;
// [Runtime.DisablePreemption] and [Runtime.EnablePreemption] maintain the
// counter a preemptive layer would use to fence critical sections.
//
// Because the model is cooperative, no two threads ever execute
// concurrently, and the runtime's structures need no internal locking. The
// flip side is that every method must be invoked from the currently running
// thread; calls from foreign goroutines panic.
//
// # Synchronization
//
// [Mutex] and [Cond] follow the classical semantics: mutex ownership is
// handed directly to the longest-waiting thread on unlock, condition
// variables have no spurious wakeups, and signals with no waiter are lost.
// Both primitives park threads in a single flat wait state; the only
// observable action on a waiting thread is being woken.
//
// # Process Lifetime
//
// When the reaper observes that no thread other than itself remains, it
// writes a two-line farewell and terminates the process with status 0. Use
// [WithFarewell] and [WithExitFunc] to observe this in tests.
//
// # Usage
//
//	r, err := uthread.New()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	id, err := r.Create(func(arg1 int64, arg2 any) {
//		r.Exit(int(arg1) * 2)
//	}, 21, nil, uthread.DefaultMaxPrio-1)
//	if err != nil {
//		log.Fatal(err)
//	}
//	r.SetJoinable(id)
//
//	v, err := r.Join(id)
//	// v == 42
package uthread
