package uthread

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

const worldTimeout = 10 * time.Second

// runWorld runs body as thread 0 of a fresh runtime, on a dedicated
// goroutine, and returns the reaper's farewell output once the world has
// wound down. body must leave the world in a state where every thread
// eventually exits; the calling thread exits (detachable) when body returns.
//
// All cross-goroutine state touched by body and the threads it creates is
// serialised by the runtime's context handoffs, so reading it after runWorld
// returns is safe.
func runWorld(t *testing.T, body func(r *Runtime), opts ...Option) string {
	t.Helper()

	var farewell bytes.Buffer
	done := make(chan int, 1)
	opts = append(opts,
		WithFarewell(&farewell),
		WithExitFunc(func(code int) { done <- code }),
	)

	go func() {
		r, err := New(opts...)
		if err != nil {
			t.Errorf(`New failed: %v`, err)
			done <- -1
			return
		}
		body(r)
		r.Exit(nil)
	}()

	select {
	case code := <-done:
		if code != 0 {
			t.Fatalf(`world terminated with status %d`, code)
		}
	case <-time.After(worldTimeout):
		t.Fatal(`world did not terminate`)
	}
	return farewell.String()
}

func TestJoin_exitValueRoundTrip(t *testing.T) {
	runWorld(t, func(r *Runtime) {
		exited := false
		id, err := r.Create(func(arg1 int64, _ any) {
			exited = true
			r.Exit(int(arg1) * 2)
		}, 21, nil, r.maxPrio-1)
		if err != nil {
			t.Errorf(`Create failed: %v`, err)
			return
		}
		if !r.SetJoinable(id) {
			t.Errorf(`SetJoinable failed: %v`, r.Errno())
			return
		}
		if exited {
			t.Error(`lower-priority worker ran before Join`)
		}

		v, err := r.Join(id)
		if err != nil {
			t.Errorf(`Join failed: %v`, err)
			return
		}
		if v != 42 {
			t.Errorf(`got exit value %v, want 42`, v)
		}
		if !exited {
			t.Error(`Join returned before worker exited`)
		}

		// The worker is a zombie on the reap queue until the reaper gets a
		// turn; one yield hands it the CPU.
		if got := r.threads[id].state; got != StateZombie {
			t.Errorf(`joined thread in state %v, want Zombie`, got)
		}
		r.Yield()
		if got := r.threads[id].state; got != StateNone {
			t.Errorf(`reaped thread in state %v, want None`, got)
		}
		if got := r.threads[id].id; got != id {
			t.Errorf(`reaped slot id %v, want %v`, got, id)
		}

		// Only the first thread and the reaper remain.
		for i := range r.threads {
			th := &r.threads[i]
			if th.state != StateNone && th.id != 0 && th.id != r.reaperID {
				t.Errorf(`unexpected live thread %v in state %v`, th.id, th.state)
			}
		}
	})
}

func TestExit_detachedDrainAndFarewell(t *testing.T) {
	var ran [3]bool
	out := runWorld(t, func(r *Runtime) {
		for i := range ran {
			i := i
			if _, err := r.Create(func(int64, any) {
				ran[i] = true
			}, 0, nil, 1); err != nil {
				t.Errorf(`Create failed: %v`, err)
				return
			}
		}
		// body returns; the first thread exits, the workers drain, the
		// reaper observes an empty table and says goodbye.
	})

	for i, ok := range ran {
		if !ok {
			t.Errorf(`worker %d never ran`, i)
		}
	}
	if want := "uthreads: no more threads.\nuthreads: bye!\n"; out != want {
		t.Errorf(`got farewell %q, want %q`, out, want)
	}
}

func TestJoin_errors(t *testing.T) {
	var joined any
	var joinErr error
	stop := false

	runWorld(t, func(r *Runtime) {
		// Target spins at low priority until released, then exits with a
		// value via its waiter.
		target, err := r.Create(func(int64, any) {
			for !stop {
				r.Yield()
			}
			r.Exit(`done`)
		}, 0, nil, 1)
		if err != nil {
			t.Errorf(`Create target failed: %v`, err)
			return
		}
		r.SetJoinable(target)

		// A competing joiner at the caller's priority; it registers as the
		// target's waiter as soon as the first thread yields.
		if _, err := r.Create(func(int64, any) {
			joined, joinErr = r.Join(target)
		}, 0, nil, r.maxPrio); err != nil {
			t.Errorf(`Create joiner failed: %v`, err)
			return
		}
		r.Yield()

		if _, err := r.Join(ID(-1)); err != unix.ESRCH {
			t.Errorf(`Join(-1): got %v, want ESRCH`, err)
		}
		if _, err := r.Join(ID(len(r.threads))); err != unix.ESRCH {
			t.Errorf(`Join(out of range): got %v, want ESRCH`, err)
		}
		if _, err := r.Join(r.Self()); err != unix.EDEADLK {
			t.Errorf(`Join(self): got %v, want EDEADLK`, err)
		}
		if r.Errno() != unix.EDEADLK {
			t.Errorf(`got errno %v, want EDEADLK`, r.Errno())
		}

		// Second joiner of the same target.
		if _, err := r.Join(target); err != unix.EINVAL {
			t.Errorf(`Join(contested): got %v, want EINVAL`, err)
		}

		// Joining a detachable thread.
		detached, err := r.Create(func(int64, any) {}, 0, nil, 1)
		if err != nil {
			t.Errorf(`Create detached failed: %v`, err)
			return
		}
		if _, err := r.Join(detached); err != unix.EINVAL {
			t.Errorf(`Join(detached): got %v, want EINVAL`, err)
		}

		stop = true
	})

	if joinErr != nil {
		t.Errorf(`first joiner failed: %v`, joinErr)
	}
	if joined != `done` {
		t.Errorf(`first joiner got %v, want "done"`, joined)
	}
}

func TestJoin_alreadyExited(t *testing.T) {
	runWorld(t, func(r *Runtime) {
		exited := false
		id, err := r.Create(func(int64, any) {
			exited = true
			r.Exit(7)
		}, 0, nil, r.maxPrio)
		if err != nil {
			t.Errorf(`Create failed: %v`, err)
			return
		}
		r.SetJoinable(id)

		// Equal priority: one yield runs the worker to completion.
		r.Yield()
		if !exited {
			t.Error(`worker did not run across the yield`)
		}

		// The worker is already a zombie; Join must not block.
		v, err := r.Join(id)
		if err != nil {
			t.Errorf(`Join failed: %v`, err)
			return
		}
		if v != 7 {
			t.Errorf(`got exit value %v, want 7`, v)
		}
	})
}

func TestCreate_tableFull(t *testing.T) {
	runWorld(t, func(r *Runtime) {
		var ids []ID
		for {
			id, err := r.Create(func(int64, any) {}, 0, nil, 1)
			if err != nil {
				if err != ErrTableFull {
					t.Errorf(`got %v, want ErrTableFull`, err)
				}
				if id != InvalidID {
					t.Errorf(`got id %v, want InvalidID`, id)
				}
				break
			}
			ids = append(ids, id)
		}
		// Slot 0 and the reaper are taken before the first Create.
		if want := len(r.threads) - 2; len(ids) != want {
			t.Errorf(`created %d threads, want %d`, len(ids), want)
		}
	}, WithMaxThreads(8))
}

func TestCreate_stackAllocationFailure(t *testing.T) {
	runWorld(t, func(r *Runtime) {
		r.testHooks = &runtimeTestHooks{AllocStack: func() []byte { return nil }}
		id, err := r.Create(func(int64, any) {}, 0, nil, 1)
		if err != ErrStackAllocation {
			t.Errorf(`got %v, want ErrStackAllocation`, err)
		}
		if id != InvalidID {
			t.Errorf(`got id %v, want InvalidID`, id)
		}
		r.testHooks = nil
	})
}

func TestCreate_invalidPriority(t *testing.T) {
	runWorld(t, func(r *Runtime) {
		if _, err := r.Create(func(int64, any) {}, 0, nil, r.maxPrio+1); err != unix.EINVAL {
			t.Errorf(`got %v, want EINVAL`, err)
		}
		if _, err := r.Create(func(int64, any) {}, 0, nil, -1); err != unix.EINVAL {
			t.Errorf(`got %v, want EINVAL`, err)
		}
	})
}

func TestSelf(t *testing.T) {
	runWorld(t, func(r *Runtime) {
		if got := r.Self(); got != 0 {
			t.Errorf(`first thread Self() = %v, want 0`, got)
		}
		var workerSelf ID
		id, err := r.Create(func(int64, any) {
			workerSelf = r.Self()
		}, 0, nil, 1)
		if err != nil {
			t.Errorf(`Create failed: %v`, err)
			return
		}
		r.SetJoinable(id)
		if _, err := r.Join(id); err != nil {
			t.Errorf(`Join failed: %v`, err)
			return
		}
		if workerSelf != id {
			t.Errorf(`worker Self() = %v, want %v`, workerSelf, id)
		}
	})
}

func TestFuncReturn_impliesExitNil(t *testing.T) {
	runWorld(t, func(r *Runtime) {
		id, err := r.Create(func(int64, any) {
			// Returning without Exit must behave as Exit(nil).
		}, 0, nil, 1)
		if err != nil {
			t.Errorf(`Create failed: %v`, err)
			return
		}
		r.SetJoinable(id)
		v, err := r.Join(id)
		if err != nil {
			t.Errorf(`Join failed: %v`, err)
			return
		}
		if v != nil {
			t.Errorf(`got exit value %v, want nil`, v)
		}
	})
}

func TestSetDetachState_errors(t *testing.T) {
	runWorld(t, func(r *Runtime) {
		if r.SetJoinable(ID(-1)) {
			t.Error(`SetJoinable(-1) succeeded`)
		}
		if r.Errno() != unix.ESRCH {
			t.Errorf(`got errno %v, want ESRCH`, r.Errno())
		}

		id, err := r.Create(func(int64, any) {}, 0, nil, 1)
		if err != nil {
			t.Errorf(`Create failed: %v`, err)
			return
		}
		r.SetJoinable(id)

		joiner, err := r.Create(func(int64, any) {
			if _, err := r.Join(id); err != nil {
				t.Errorf(`Join failed: %v`, err)
			}
		}, 0, nil, r.maxPrio)
		if err != nil {
			t.Errorf(`Create joiner failed: %v`, err)
			return
		}
		_ = joiner
		r.Yield() // joiner registers as waiter, blocks

		// Detaching out from under a waiter is invalid.
		if r.SetDetachable(id) {
			t.Error(`SetDetachable with waiter succeeded`)
		}
		if r.Errno() != unix.EINVAL {
			t.Errorf(`got errno %v, want EINVAL`, r.Errno())
		}
	})
}

func TestNoPreemptCounter(t *testing.T) {
	runWorld(t, func(r *Runtime) {
		r.DisablePreemption()
		r.DisablePreemption()
		if got := r.cur.noPreemptCount; got != 2 {
			t.Errorf(`got count %d, want 2`, got)
		}
		r.EnablePreemption()
		r.EnablePreemption()
		if got := r.cur.noPreemptCount; got != 0 {
			t.Errorf(`got count %d, want 0`, got)
		}

		defer func() {
			if recover() == nil {
				t.Error(`expected panic on unmatched EnablePreemption`)
			}
		}()
		r.EnablePreemption()
	})
}

func TestNew_optionErrors(t *testing.T) {
	for _, tc := range [...]struct {
		name string
		opt  Option
	}{
		{`max threads too small`, WithMaxThreads(1)},
		{`negative max prio`, WithMaxPrio(-1)},
		{`zero stack size`, WithStackSize(0)},
		{`nil farewell`, WithFarewell(nil)},
		{`nil exit func`, WithExitFunc(nil)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if r, err := New(tc.opt); err == nil {
				t.Error(`expected error`)
				_ = r
			} else if !strings.HasPrefix(err.Error(), `uthread: `) {
				t.Errorf(`got error %q, want "uthread: " prefix`, err)
			}
		})
	}
}
