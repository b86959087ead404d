// Copyright The symtrace Authors
// SPDX-License-Identifier: Apache-2.0

package symcache // import "github.com/symtrace/symtrace/symcache"

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/symtrace/symtrace/libsym"
)

// procStat detects process turnover via the inode of the /proc/<pid>
// directory. This catches the process exiting and the pid being reused; it
// does NOT catch a live process dlopen/dlclose-ing libraries without a pid
// change. Callers compensate with explicit Refresh calls.
type procStat struct {
	path  string
	inode uint64
}

func newProcStat(pid libsym.PID) procStat {
	return procStat{path: fmt.Sprintf("/proc/%d", pid)}
}

func (ps *procStat) currentInode() uint64 {
	var st unix.Stat_t
	if err := unix.Stat(ps.path, &st); err != nil {
		return 0
	}
	return st.Ino
}

func (ps *procStat) isStale() bool {
	return ps.inode != ps.currentInode()
}

func (ps *procStat) reset() {
	ps.inode = ps.currentInode()
}
