// Copyright The symtrace Authors
// SPDX-License-Identifier: Apache-2.0

// Package proc reads process information from /proc: executable mappings,
// shared library locations, interpreter detection and PATH lookups.
package proc // import "github.com/symtrace/symtrace/proc"

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/symtrace/symtrace/libsym"
	"github.com/symtrace/symtrace/stringutil"
)

// ErrProcessGone is returned when a PID's /proc entries vanished mid-scan,
// typically because the process exited. Callers can drop any state tracked
// for that PID.
var ErrProcessGone = errors.New("process is gone")

// Mapping is one file-backed executable region of a process, or the
// synthetic perf-map fallback covering the whole address space.
type Mapping struct {
	// Path is the backing file, or the perf-map path for the fallback entry.
	Path  string
	Start libsym.Address
	End   libsym.Address
}

// notFileBacked lists the pathname prefixes of executable mappings that have
// no backing file on disk and can not be symbolized from ELF data.
var notFileBacked = []string{
	"//anon",
	"/dev/zero",
	"/anon_hugepage",
	"[stack",
	"/SYSV",
	"[heap]",
}

// MappingIsFileBacked reports whether a maps pathname refers to a real file.
// Anonymous regions, the heap, the stack, SysV shared memory and huge-page
// areas are excluded.
func MappingIsFileBacked(path string) bool {
	if path == "" {
		return false
	}
	for _, prefix := range notFileBacked {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

// PerfMapPath returns the conventional path of the perf map file for pid,
// used to register JIT-generated symbols that have no backing file.
func PerfMapPath(pid libsym.PID) string {
	return fmt.Sprintf("/tmp/perf-%d.map", pid)
}

// ForEachModule invokes visit for every file-backed executable mapping of
// pid in /proc/<pid>/maps order, and finally once more with the process's
// perf-map path covering the whole address space as a catch-all for
// addresses no real mapping resolves. If visit returns false the scan stops
// early and the perf-map fallback is not reported.
func ForEachModule(pid libsym.PID, visit func(Mapping) bool) error {
	mapsFile, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no maps for PID %d: %w", pid, ErrProcessGone)
		}
		return err
	}
	defer mapsFile.Close()

	if !forEachModuleIn(mapsFile, visit) {
		return nil
	}
	visit(Mapping{
		Path:  PerfMapPath(pid),
		Start: 0,
		End:   libsym.Address(math.MaxUint64),
	})
	return nil
}

// forEachModuleIn walks the maps-format text from r. Returns false if the
// visitor stopped the scan.
func forEachModuleIn(r io.Reader, visit func(Mapping) bool) bool {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		// The scanner reuses its buffer: nothing below may retain line
		// or its fields past this iteration.
		line := stringutil.ByteSlice2String(scanner.Bytes())

		mapping, ok := parseMapsLine(line)
		if !ok {
			continue
		}
		if !MappingIsFileBacked(mapping.Path) {
			continue
		}
		if !visit(mapping) {
			return false
		}
	}
	return true
}

// parseMapsLine extracts (pathname, start, end) from one maps line,
// accepting only executable mappings. Sentinel or short lines are skipped
// by returning ok=false, never an error: the maps format is allowed to
// contain entries we do not understand.
func parseMapsLine(line string) (Mapping, bool) {
	var fields [6]string
	var addrs [2]string

	nFields := stringutil.FieldsN(line, fields[:])
	if nFields < 5 {
		return Mapping{}, false
	}

	if !strings.ContainsRune(fields[1], 'x') {
		return Mapping{}, false
	}

	if stringutil.SplitN(fields[0], "-", addrs[:]) < 2 {
		return Mapping{}, false
	}
	start, err := strconv.ParseUint(addrs[0], 16, 64)
	if err != nil {
		return Mapping{}, false
	}
	end, err := strconv.ParseUint(addrs[1], 16, 64)
	if err != nil {
		return Mapping{}, false
	}

	var path string
	if nFields == 6 {
		path = strings.Clone(fields[5])
	}

	return Mapping{
		Path:  path,
		Start: libsym.Address(start),
		End:   libsym.Address(end),
	}, true
}
