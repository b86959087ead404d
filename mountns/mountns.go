// Copyright The symtrace Authors
// SPDX-License-Identifier: Apache-2.0

// Package mountns switches the calling thread into a target process's mount
// namespace so that path lookups resolve against the target's view of the
// filesystem. This matters whenever the tracer runs outside a container it
// is symbolizing into.
package mountns // import "github.com/symtrace/symtrace/mountns"

import (
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/symtrace/symtrace/libsym"
)

// ErrSameNamespace is returned by Enter when the target shares the caller's
// mount namespace. Entering it would be a no-op, and on some kernels the
// self-referential setns is guaranteed to fail with EPERM, so the switch is
// skipped entirely. Callers treat this as "nothing to do".
var ErrSameNamespace = errors.New("target shares the current mount namespace")

// ErrNotEntered is returned by Exit on a handle that already restored the
// original namespace. Harmless.
var ErrNotEntered = errors.New("mount namespace not entered")

// Handle represents an entered mount namespace. It must be released with
// Exit on every path, or the calling thread stays switched into the target's
// namespace.
type Handle struct {
	origFD   int
	targetFD int
	entered  bool
}

// Enter switches the calling thread into pid's mount namespace. The calling
// goroutine is locked to its OS thread until Exit so the switch cannot leak
// to other goroutines.
func Enter(pid libsym.PID) (*Handle, error) {
	origFD, err := unix.Open("/proc/self/ns/mnt", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open self mount namespace: %w", err)
	}
	targetFD, err := unix.Open(fmt.Sprintf("/proc/%d/ns/mnt", pid),
		unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		unix.Close(origFD)
		return nil, fmt.Errorf("open mount namespace of PID %d: %w", pid, err)
	}

	var origStat, targetStat unix.Stat_t
	if err = unix.Fstat(origFD, &origStat); err == nil {
		err = unix.Fstat(targetFD, &targetStat)
	}
	if err != nil {
		unix.Close(origFD)
		unix.Close(targetFD)
		return nil, fmt.Errorf("stat mount namespace: %w", err)
	}

	if origStat.Ino == targetStat.Ino {
		unix.Close(origFD)
		unix.Close(targetFD)
		return nil, ErrSameNamespace
	}

	runtime.LockOSThread()
	if err = unix.Setns(targetFD, unix.CLONE_NEWNS); err != nil {
		runtime.UnlockOSThread()
		unix.Close(origFD)
		unix.Close(targetFD)
		return nil, fmt.Errorf("setns to mount namespace of PID %d: %w", pid, err)
	}

	return &Handle{origFD: origFD, targetFD: targetFD, entered: true}, nil
}

// Exit restores the original mount namespace and releases the handle.
// Calling Exit twice returns ErrNotEntered on the second call.
func (h *Handle) Exit() error {
	if h == nil || !h.entered {
		return ErrNotEntered
	}
	h.entered = false

	err := unix.Setns(h.origFD, unix.CLONE_NEWNS)
	runtime.UnlockOSThread()
	unix.Close(h.origFD)
	unix.Close(h.targetFD)
	h.origFD = -1
	h.targetFD = -1

	if err != nil {
		return fmt.Errorf("setns back to original mount namespace: %w", err)
	}
	return nil
}
