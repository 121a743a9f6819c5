package uthread

// Cond is a condition variable for threads of one Runtime. Instances must be
// created with Runtime.NewCond. There are no spurious wakeups; callers
// should nonetheless re-check their predicate in a loop. A signal with no
// waiter is lost, not counted.
type Cond struct {
	r       *Runtime
	waiters threadQueue
}

// NewCond returns a new Cond with no waiters.
func (r *Runtime) NewCond() *Cond {
	return &Cond{r: r}
}

// Wait atomically releases m and suspends the calling thread until it is
// woken by Signal or Broadcast, then re-acquires m before returning. The
// caller must hold m; the release/enqueue/block sequence cannot be
// interleaved with a Signal because the runtime is cooperative.
func (c *Cond) Wait(m *Mutex) {
	c.r.checkCurrent(`Wait`)
	cur := c.r.cur
	if m.owner != cur {
		panic(`uthread: Cond.Wait without holding the mutex`)
	}
	m.Unlock()
	c.waiters.enqueue(cur)
	c.r.block()
	m.Lock()
}

// Signal wakes the longest-waiting thread, if any. The woken thread
// re-acquires the mutex inside Wait, blocking again if the mutex is held.
func (c *Cond) Signal() {
	c.r.checkCurrent(`Signal`)
	if t := c.waiters.dequeue(); t != nil {
		c.r.wake(t)
	}
}

// Broadcast wakes every waiting thread; they serialise on mutex
// re-acquisition.
func (c *Cond) Broadcast() {
	c.r.checkCurrent(`Broadcast`)
	for t := c.waiters.dequeue(); t != nil; t = c.waiters.dequeue() {
		c.r.wake(t)
	}
}
