package uthread

import (
	"fmt"
	"io"
	"runtime"
	"sync/atomic"

	"github.com/joeycumines/logiface"
	"golang.org/x/sys/unix"

	"github.com/joeycumines/go-uthread/internal/mctx"
)

// Runtime multiplexes logical threads onto the goroutine that created it.
// Instances must be initialized using the New factory, which promotes the
// calling goroutine into thread 0 and starts the reaper.
//
// Every method must be invoked from the currently running thread; the
// runtime is cooperative and maintains no internal locking.
type Runtime struct {
	// Prevent copying
	_ [0]func()

	// threads is the fixed thread table; slot index equals thread id.
	threads []thread

	// runq is indexed by priority; each entry is a FIFO of runnable
	// threads.
	runq []threadQueue

	// cur is the single thread in StateOnCPU.
	cur *thread

	// curGID is the goroutine id of the current thread's carrier, used to
	// diagnose calls from foreign goroutines.
	curGID atomic.Uint64

	// reap holds zombies awaiting destruction, protected by reapMtx and
	// signalled via reapCond.
	reap     threadQueue
	reapMtx  *Mutex
	reapCond *Cond
	reaperID ID

	log      *logiface.Logger[logiface.Event]
	farewell io.Writer
	exitFunc func(int)

	maxPrio   int
	stackSize int

	testHooks *runtimeTestHooks
}

// New initializes a runtime: the thread table, the per-priority run queues,
// and the reap queue with its mutex/condvar pair. The calling goroutine is
// promoted into slot 0 as the first thread, on CPU at the maximum priority
// and detachable, and the reaper thread is created at the maximum priority.
//
// All further runtime calls must be made from the first thread or from
// threads it creates.
func New(opts ...Option) (*Runtime, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	r := &Runtime{
		threads:   make([]thread, cfg.maxThreads),
		runq:      make([]threadQueue, cfg.maxPrio+1),
		log:       cfg.log,
		farewell:  cfg.farewell,
		exitFunc:  cfg.exitFunc,
		maxPrio:   cfg.maxPrio,
		stackSize: cfg.stackSize,
	}
	for i := range r.threads {
		r.threads[i].id = ID(i)
	}
	r.reap.init()
	r.reapMtx = r.NewMutex()
	r.reapCond = r.NewCond()

	// Promote the running goroutine into slot 0 as the first thread.
	first := &r.threads[0]
	mctx.Get(&first.ctx)
	first.prio = r.maxPrio
	first.detachState = Detachable
	first.state = StateOnCPU
	r.cur = first
	r.curGID.Store(getGoroutineID())

	reaperID, err := r.Create(func(int64, any) { r.reapLoop() }, 0, nil, r.maxPrio)
	if err != nil {
		return nil, fmt.Errorf("uthread: creating reaper: %w", err)
	}
	r.reaperID = reaperID

	r.log.Debug().
		Int(`threads`, cfg.maxThreads).
		Int(`maxprio`, cfg.maxPrio).
		Int(`reaper`, int(reaperID)).
		Log(`runtime initialized`)

	return r, nil
}

// Create starts a new thread executing fn(arg1, arg2) at the given priority.
// The new thread is detachable; use SetJoinable before it exits to await it.
// Returns InvalidID with ErrTableFull when no slot is free, with
// ErrStackAllocation when a stack cannot be allocated, or with EINVAL for an
// out-of-range priority. If the new priority exceeds the caller's, the
// caller yields before Create returns.
func (r *Runtime) Create(fn Func, arg1 int64, arg2 any, prio int) (ID, error) {
	r.checkCurrent(`Create`)
	if prio < 0 || prio > r.maxPrio {
		r.cur.errno = unix.EINVAL
		return InvalidID, unix.EINVAL
	}
	id := r.alloc()
	if id == InvalidID {
		return InvalidID, ErrTableFull
	}
	stack := r.allocStack()
	if stack == nil {
		return InvalidID, ErrStackAllocation
	}

	t := &r.threads[id]
	t.stack = stack
	mctx.Make(&t.ctx, stack, func() {
		r.curGID.Store(getGoroutineID())
		fn(arg1, arg2)
		r.Exit(nil)
	})
	t.link = queueLink{}
	t.state = StateTransition
	t.detachState = Detachable
	t.hasExited = false
	t.exitValue = nil
	t.waiter = nil
	t.errno = nil
	t.noPreemptCount = 0

	r.log.Debug().
		Int(`thread`, int(id)).
		Int(`prio`, prio).
		Log(`thread created`)

	r.SetPrio(id, prio)
	return id, nil
}

// Exit terminates the calling thread with the given status and never
// returns. The thread becomes a zombie before the switch, so the scheduler
// can never select a dead thread. A detachable thread is handed to the
// reaper immediately; a joinable thread stays off the reap queue until its
// joiner has retrieved the exit value, and its waiter (if any) is woken.
func (r *Runtime) Exit(status any) {
	r.checkCurrent(`Exit`)
	cur := r.cur
	if cur.state != StateOnCPU {
		panic(`uthread: Exit of a thread in state ` + cur.state.String())
	}
	cur.hasExited = true
	cur.exitValue = status

	r.log.Debug().
		Int(`thread`, int(cur.id)).
		Str(`detach`, cur.detachState.String()).
		Log(`thread exiting`)

	if cur.detachState == Detachable {
		r.makeReapable(cur)
	} else {
		cur.state = StateZombie
		if cur.waiter != nil {
			r.wake(cur.waiter)
		}
	}
	r.switchThreads()
	panic(`uthread: returned to a dead thread`)
}

// Join blocks until the thread identified by id terminates and returns its
// exit value, handing the terminated thread to the reaper. Errors: ESRCH if
// id does not refer to an allocated thread, EDEADLK if a thread joins
// itself, EINVAL if the target is not joinable or already has a different
// waiter. A target that has already exited is collected without blocking.
func (r *Runtime) Join(id ID) (any, error) {
	r.checkCurrent(`Join`)
	cur := r.cur
	if cur.state != StateOnCPU {
		panic(`uthread: Join of a thread in state ` + cur.state.String())
	}
	if id < 0 || int(id) >= len(r.threads) || r.threads[id].state == StateNone {
		cur.errno = unix.ESRCH
		return nil, unix.ESRCH
	}
	t := &r.threads[id]
	if t == cur {
		cur.errno = unix.EDEADLK
		return nil, unix.EDEADLK
	}
	if t.waiter != nil && t.waiter != cur {
		cur.errno = unix.EINVAL
		return nil, unix.EINVAL
	}
	if t.detachState != Joinable {
		cur.errno = unix.EINVAL
		return nil, unix.EINVAL
	}
	if !t.hasExited {
		t.waiter = cur
		r.block()
	}
	status := t.exitValue
	r.makeReapable(t)
	return status, nil
}

// Self returns the id of the calling thread.
func (r *Runtime) Self() ID {
	r.checkCurrent(`Self`)
	return r.cur.id
}

// SetJoinable marks the thread identified by id joinable, so that exactly
// one thread may Join it. Fails with ESRCH for an id that does not refer to
// an allocated thread, and with EINVAL for a thread that has already exited.
func (r *Runtime) SetJoinable(id ID) bool {
	return r.setDetachState(id, Joinable)
}

// SetDetachable marks the thread identified by id detachable, reclaimed by
// the reaper on exit. Fails with ESRCH for an id that does not refer to an
// allocated thread, and with EINVAL if the thread has already exited or has
// a waiter.
func (r *Runtime) SetDetachable(id ID) bool {
	return r.setDetachState(id, Detachable)
}

func (r *Runtime) setDetachState(id ID, state DetachState) bool {
	r.checkCurrent(`SetJoinable/SetDetachable`)
	if id < 0 || int(id) >= len(r.threads) || r.threads[id].state == StateNone {
		r.cur.errno = unix.ESRCH
		return false
	}
	t := &r.threads[id]
	if t.hasExited || (state == Detachable && t.waiter != nil) {
		r.cur.errno = unix.EINVAL
		return false
	}
	t.detachState = state
	return true
}

// DisablePreemption increments the calling thread's no-preempt count. The
// core never preempts on its own; the counter is the hook a preemptive layer
// uses to fence its critical sections.
func (r *Runtime) DisablePreemption() {
	r.checkCurrent(`DisablePreemption`)
	r.cur.noPreemptCount++
}

// EnablePreemption decrements the calling thread's no-preempt count.
func (r *Runtime) EnablePreemption() {
	r.checkCurrent(`EnablePreemption`)
	if r.cur.noPreemptCount <= 0 {
		panic(`uthread: EnablePreemption without matching DisablePreemption`)
	}
	r.cur.noPreemptCount--
}

// makeReapable transitions t to zombie and places it on the reap queue,
// signalling the reaper, all under the reap mutex.
func (r *Runtime) makeReapable(t *thread) {
	r.reapMtx.Lock()
	t.state = StateZombie
	r.reap.enqueue(t)
	r.reapCond.Signal()
	r.reapMtx.Unlock()
}

// reapLoop is the body of the reaper thread: it drains the reap queue,
// destroying each zombie, and terminates the process once no thread other
// than the reaper itself remains.
func (r *Runtime) reapLoop() {
	r.reapMtx.Lock()
	for {
		for r.reap.empty() {
			r.reapCond.Wait(r.reapMtx)
		}
		for t := r.reap.dequeue(); t != nil; t = r.reap.dequeue() {
			r.destroy(t)
		}

		if !r.anyOtherThreads() {
			// The reaper's own stack is deliberately never reclaimed.
			fmt.Fprint(r.farewell, "uthreads: no more threads.\n")
			fmt.Fprint(r.farewell, "uthreads: bye!\n")
			r.log.Debug().Log(`no threads remain, terminating`)
			r.exitFunc(0)
			// Only reachable with an exit func that returns (tests): end
			// the reaper's carrier instead of the process.
			runtime.Goexit()
		}
	}
}

// anyOtherThreads reports whether any slot other than the reaper's is
// occupied.
func (r *Runtime) anyOtherThreads() bool {
	for i := range r.threads {
		if r.threads[i].id != r.reaperID && r.threads[i].state != StateNone {
			return true
		}
	}
	return false
}
