package uthread

// ThreadState represents the scheduling state of a thread slot.
//
// State Machine:
//
//	StateNone (0) → StateTransition          [Create]
//	StateTransition → StateRunnable          [SetPrio]
//	StateRunnable → StateOnCPU               [dispatch]
//	StateOnCPU → StateRunnable               [Yield]
//	StateOnCPU → StateWait                   [block: Join, Mutex.Lock, Cond.Wait]
//	StateWait → StateRunnable                [wake]
//	StateOnCPU → StateZombie                 [Exit]
//	StateZombie → StateNone                  [destroy]
//
// Exactly one thread is StateOnCPU at any moment, and it is the thread the
// runtime's current pointer designates.
type ThreadState uint8

const (
	// StateNone marks a free slot: unlinked from every queue, nil stack.
	StateNone ThreadState = iota
	// StateTransition marks a created thread not yet placed on a run queue.
	StateTransition
	// StateRunnable marks a thread on the run queue of its priority.
	StateRunnable
	// StateOnCPU marks the single currently executing thread.
	StateOnCPU
	// StateWait marks a thread blocked on some primitive. The runtime makes
	// no distinction between wait reasons; the only observable action on a
	// waiting thread is wake.
	StateWait
	// StateZombie marks a terminated thread awaiting reclamation.
	StateZombie
)

// String returns a human-readable representation of the state.
func (s ThreadState) String() string {
	switch s {
	case StateNone:
		return "None"
	case StateTransition:
		return "Transition"
	case StateRunnable:
		return "Runnable"
	case StateOnCPU:
		return "OnCPU"
	case StateWait:
		return "Wait"
	case StateZombie:
		return "Zombie"
	default:
		return "Unknown"
	}
}

// DetachState determines how a thread's termination is observed.
type DetachState uint8

const (
	// Detachable threads are reclaimed automatically by the reaper on exit;
	// no join is available. Newly created threads are detachable.
	Detachable DetachState = iota
	// Joinable threads are awaited by at most one other thread, which
	// retrieves the exit value and hands the terminated thread to the
	// reaper.
	Joinable
)

// String returns a human-readable representation of the detach state.
func (s DetachState) String() string {
	switch s {
	case Detachable:
		return "Detachable"
	case Joinable:
		return "Joinable"
	default:
		return "Unknown"
	}
}
