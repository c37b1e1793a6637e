//go:build linux

package worker

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// pinThread locks the calling goroutine to its OS thread and restricts that
// thread to one logical core. Advisory: CPU-bound stages should not contend
// for the same execution unit, but a failed pin only costs scheduling
// quality.
func pinThread(core int) error {
	runtime.LockOSThread()

	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	return unix.SchedSetaffinity(0, &set)
}
