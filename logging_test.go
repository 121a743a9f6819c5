package uthread

import (
	"bytes"
	"strings"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

func TestLogging_schedulingEvents(t *testing.T) {
	var logBuf bytes.Buffer
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(
			stumpy.WithWriter(&logBuf),
			stumpy.WithTimeField(``),
		),
		stumpy.L.WithLevel(logiface.LevelTrace),
	).Logger()

	runWorld(t, func(r *Runtime) {
		id, err := r.Create(func(int64, any) {}, 0, nil, 1)
		if err != nil {
			t.Errorf(`Create failed: %v`, err)
			return
		}
		r.SetJoinable(id)
		if _, err := r.Join(id); err != nil {
			t.Errorf(`Join failed: %v`, err)
		}
		r.Yield() // let the reaper collect the worker
	}, WithLogger(logger))

	out := logBuf.String()
	for _, want := range [...]string{
		`"msg":"runtime initialized"`,
		`"msg":"thread created"`,
		`"msg":"priority changed"`,
		`"msg":"context switch"`,
		`"msg":"thread exiting"`,
		`"msg":"destroying thread"`,
		`"msg":"no threads remain, terminating"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf(`log output missing %s`, want)
		}
	}
}

func TestLogging_nilLoggerIsSilent(t *testing.T) {
	// Exercised implicitly by every other test; this pins the default.
	runWorld(t, func(r *Runtime) {
		if r.log != nil {
			t.Error(`default logger not nil`)
		}
		r.Yield()
	})
}
