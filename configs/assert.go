package configs

import "fmt"

// Assert panics on a protocol-invariant violation (§7 kind 1). These are
// programmer errors or a broken correctness argument, never expected on a
// correct run.
func Assert(cond bool, format string, a ...interface{}) {
	if !cond {
		panic("[invariant] " + fmt.Sprintf(format, a...))
	}
}

// Warn logs an unexpected-but-tolerated condition (§7 kind 2) and returns
// cond unchanged, so callers can write `if !configs.Warn(ok, "...") { return }`.
func Warn(cond bool, format string, a ...interface{}) bool {
	if !cond {
		InfoPrintf(format, a...)
	}
	return cond
}

// CheckError panics on an unexpected plumbing error (marshal/unmarshal,
// malformed signature). These never originate from adversarial input that
// the protocol itself must tolerate (that is §7 kind 3, handled by callers
// returning a bool instead of an error).
func CheckError(err error) {
	if err != nil {
		panic(err.Error())
	}
}
