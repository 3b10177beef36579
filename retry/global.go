package retry

import "sync/atomic"

var defaultExec atomic.Pointer[Executor]

// DefaultExecutor returns the process-wide executor. Until SetDefaultExecutor
// is called it applies policy.Default to every key.
func DefaultExecutor() *Executor {
	if e := defaultExec.Load(); e != nil {
		return e
	}
	exec, err := NewExecutor()
	if err != nil {
		// policy.Default is valid by construction.
		panic(err)
	}
	defaultExec.CompareAndSwap(nil, exec)
	return defaultExec.Load()
}

// SetDefaultExecutor replaces the process-wide executor. A nil exec restores
// the built-in default.
func SetDefaultExecutor(exec *Executor) {
	defaultExec.Store(exec)
}
