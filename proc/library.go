// Copyright The symtrace Authors
// SPDX-License-Identifier: Apache-2.0

package proc // import "github.com/symtrace/symtrace/proc"

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/symtrace/symtrace/ldcache"
	"github.com/symtrace/symtrace/libsym"
	"github.com/symtrace/symtrace/stringutil"
)

// LocateLibrary resolves a library reference to an on-disk path using three
// strategies in priority order:
//
//  1. A name containing a path separator is a caller-supplied path and is
//     returned verbatim.
//  2. With a live pid, the process's own mappings are scanned for a loaded
//     shared object matching the bare name. This reflects exactly what the
//     process loaded, and stays correct when the system cache is stale or
//     the binary uses a non-standard search path.
//  3. The dynamic-linker cache, for static analysis without a live process.
//
// Returns "" when all strategies fail.
func LocateLibrary(name string, pid libsym.PID, cache *ldcache.Cache) string {
	if strings.ContainsRune(name, '/') {
		return name
	}
	if pid != 0 {
		if path := findLoadedLibrary(name, pid); path != "" {
			return path
		}
	}
	if cache != nil {
		return cache.Lookup(name)
	}
	return ""
}

// findLoadedLibrary scans pid's mappings for a shared object whose filename
// matches the bare library name.
func findLoadedLibrary(name string, pid libsym.PID) string {
	mapsFile, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return ""
	}
	defer mapsFile.Close()

	return findLoadedLibraryIn(mapsFile, name)
}

func findLoadedLibraryIn(r io.Reader, name string) string {
	// "/lib<name>." matches plain and suffix-versioned sonames
	// (libssl.so, libssl.so.3); "/lib<name>-" matches release-versioned
	// filenames like libc-2.31.so.
	search1 := "/lib" + name + "."
	search2 := "/lib" + name + "-"

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := stringutil.ByteSlice2String(scanner.Bytes())

		var fields [6]string
		if stringutil.FieldsN(line, fields[:]) < 6 {
			continue
		}
		path := fields[5]
		if !strings.Contains(path, ".so") {
			continue
		}
		if strings.Contains(path, search1) || strings.Contains(path, search2) {
			return strings.Clone(path)
		}
	}
	return ""
}
