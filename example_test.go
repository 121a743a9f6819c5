package uthread_test

import (
	"fmt"

	"github.com/joeycumines/go-uthread"
)

func ExampleRuntime_Join() {
	r, err := uthread.New()
	if err != nil {
		panic(err)
	}

	id, err := r.Create(func(arg1 int64, _ any) {
		r.Exit(int(arg1) * 2)
	}, 21, nil, uthread.DefaultMaxPrio-1)
	if err != nil {
		panic(err)
	}
	r.SetJoinable(id)

	v, err := r.Join(id)
	if err != nil {
		panic(err)
	}
	fmt.Println(v)

	// output:
	// 42
}
