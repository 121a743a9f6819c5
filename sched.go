package uthread

import (
	"golang.org/x/sys/unix"

	"github.com/joeycumines/go-uthread/internal/mctx"
)

// Yield returns the calling thread to the run queue at its priority and
// hands the CPU to the highest-priority runnable thread. If the caller
// remains the best candidate it is immediately redispatched, and the call is
// a no-op from the caller's viewpoint.
func (r *Runtime) Yield() {
	r.checkCurrent(`Yield`)
	cur := r.cur
	cur.state = StateRunnable
	r.runq[cur.prio].enqueue(cur)
	r.switchThreads()
}

// wake makes a waiting thread runnable, enqueueing it at its priority. Any
// state other than StateWait is left untouched, making wake idempotent over
// non-waiting threads. The caller is not preempted.
func (r *Runtime) wake(t *thread) {
	if t == nil || t.state == StateNone {
		panic(`uthread: wake of a free thread slot`)
	}
	if t.state != StateWait {
		return
	}
	t.state = StateRunnable
	r.runq[t.prio].enqueue(t)
}

// SetPrio changes the priority of the thread identified by id, returning
// true on success. An invalid priority sets the caller's errno to EINVAL; an
// id that does not refer to an allocated, non-zombie thread sets ESRCH. A
// runnable target is relocated between run queues; a target still in
// transition becomes runnable, which is how newly created threads first
// become schedulable. In both cases, if the new priority exceeds the
// caller's, the caller yields. Targets in any other state fail without an
// errno.
func (r *Runtime) SetPrio(id ID, prio int) bool {
	r.checkCurrent(`SetPrio`)
	if prio < 0 || prio > r.maxPrio {
		r.cur.errno = unix.EINVAL
		return false
	}
	if id < 0 || int(id) >= len(r.threads) ||
		r.threads[id].state == StateNone || r.threads[id].state == StateZombie {
		r.cur.errno = unix.ESRCH
		return false
	}
	t := &r.threads[id]
	switch t.state {
	case StateRunnable:
		r.runq[t.prio].remove(t)
	case StateTransition:
		t.state = StateRunnable
	default:
		return false
	}
	r.log.Trace().
		Int(`thread`, int(t.id)).
		Int(`from`, t.prio).
		Int(`to`, prio).
		Log(`priority changed`)
	t.prio = prio
	r.runq[prio].enqueue(t)
	if prio > r.cur.prio {
		r.Yield()
	}
	return true
}

// block suspends the calling thread: it transitions to StateWait, leaves any
// run queue it sits on, and switches away. The caller resumes when some
// other thread wakes it.
func (r *Runtime) block() {
	cur := r.cur
	switch cur.state {
	case StateWait:
	case StateOnCPU:
		cur.state = StateWait
	case StateRunnable:
		cur.state = StateWait
		r.runq[cur.prio].remove(cur)
	default:
		panic(`uthread: block of a thread in state ` + cur.state.String())
	}
	r.switchThreads()
}

// switchThreads selects the head of the highest-priority non-empty run
// queue, makes it the current thread, and swaps contexts. The previously
// running thread resumes from its own earlier call when dispatched again.
// If no thread is runnable the scheduler panics: the reaper always exists as
// a fallback, so an empty run-queue table is a programming error.
func (r *Runtime) switchThreads() {
	var victor *thread
	for prio := r.maxPrio; prio >= 0; prio-- {
		if t := r.runq[prio].dequeue(); t != nil {
			victor = t
			break
		}
	}
	if victor == nil {
		panic(`uthread: no runnable threads`)
	}
	if victor.state != StateRunnable {
		panic(`uthread: run queue victor in state ` + victor.state.String())
	}
	if victor.link.queued {
		panic(`uthread: run queue victor still linked`)
	}
	prev := r.cur
	r.log.Trace().
		Int(`from`, int(prev.id)).
		Int(`to`, int(victor.id)).
		Log(`context switch`)
	r.cur = victor
	victor.state = StateOnCPU
	if r.testHooks != nil && r.testHooks.PreSwitch != nil {
		r.testHooks.PreSwitch(prev.id, victor.id)
	}
	mctx.Swap(&prev.ctx, &victor.ctx)
	r.curGID.Store(getGoroutineID())
}
