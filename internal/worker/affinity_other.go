//go:build !linux

package worker

import "runtime"

// pinThread only locks the OS thread on non-Linux hosts; there is no
// portable affinity syscall. The dedicated thread still reduces scheduler
// migration for CPU-bound loops.
func pinThread(int) error {
	runtime.LockOSThread()
	return nil
}
