package tracer

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// Enter instruments the calling function: it resolves the caller's
// identity via the runtime, delivers OnCall, and returns the leave
// function to defer. The leave function delivers OnPanic when the
// function is unwinding and always delivers the matching OnReturn, then
// re-raises the panic untouched.
//
//	func Process(items []string) {
//		defer tr.Enter()()
//		...
//	}
func (t *Tracer) Enter(args ...any) func() {
	return t.enter(2, args)
}

// EnterSkip is Enter for wrappers: skip names how many call frames sit
// between the instrumented function and this call, with 0 meaning the
// direct caller.
func (t *Tracer) EnterSkip(skip int, args ...any) func() {
	return t.enter(skip+2, args)
}

func (t *Tracer) enter(skip int, args []any) func() {
	pc, file, line, ok := runtime.Caller(skip)
	ev := Event{Goroutine: goid(), File: file, Line: line}
	if ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			ev.Module, ev.Function = splitFuncName(fn.Name())
		}
	}
	if len(args) > 0 {
		ev.Args = fmt.Sprint(args...)
	}

	t.OnCall(ev)
	return func() {
		if r := recover(); r != nil {
			t.OnPanic(ev, r)
			t.OnReturn(ev)
			panic(r)
		}
		t.OnReturn(ev)
	}
}

// splitFuncName splits a runtime symbol like
// "github.com/acme/app/core.(*Worker).Run" into the package import path
// and a qualified function name.
func splitFuncName(full string) (module, name string) {
	slash := strings.LastIndex(full, "/")
	dot := strings.Index(full[slash+1:], ".")
	if dot < 0 {
		return "", full
	}
	dot += slash + 1
	module = full[:dot]
	name = full[dot+1:]
	name = strings.NewReplacer("(", "", ")", "", "*", "").Replace(name)
	return module, name
}

// goid extracts the current goroutine id from the runtime stack header.
// There is no public accessor; the header format "goroutine N [" is
// stable across Go releases.
func goid() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
