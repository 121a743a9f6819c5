package uthread

// Mutex is a mutual-exclusion lock for threads of one Runtime. Instances
// must be created with Runtime.NewMutex. Ownership transfers to waiters by
// direct handoff: the thread woken by Unlock is the new owner before it
// resumes, so a lock released under contention is never re-contended.
type Mutex struct {
	r       *Runtime
	owner   *thread
	waiters threadQueue
}

// NewMutex returns a new, unlocked Mutex.
func (r *Runtime) NewMutex() *Mutex {
	return &Mutex{r: r}
}

// Lock acquires m, blocking the calling thread while another thread owns it.
// On return the caller is the owner.
func (m *Mutex) Lock() {
	m.r.checkCurrent(`Lock`)
	cur := m.r.cur
	if m.owner == nil {
		m.owner = cur
		return
	}
	m.waiters.enqueue(cur)
	m.r.block()
	// Ownership was handed off by Unlock before the wake.
	if m.owner != cur {
		panic(`uthread: resumed from Lock without ownership`)
	}
}

// TryLock acquires m if it is free, reporting whether the lock was taken.
// It never blocks.
func (m *Mutex) TryLock() bool {
	m.r.checkCurrent(`TryLock`)
	if m.owner != nil {
		return false
	}
	m.owner = m.r.cur
	return true
}

// Unlock releases m. If any threads are blocked in Lock, ownership passes to
// the longest-waiting one, which is woken; the caller is not preempted.
// Unlock by a thread other than the owner is a fatal programmer error.
func (m *Mutex) Unlock() {
	m.r.checkCurrent(`Unlock`)
	if m.owner != m.r.cur {
		panic(`uthread: Unlock of a mutex not owned by the calling thread`)
	}
	m.owner = nil
	if t := m.waiters.dequeue(); t != nil {
		m.owner = t
		m.r.wake(t)
	}
}
