// Copyright The symtrace Authors
// SPDX-License-Identifier: Apache-2.0

package proc // import "github.com/symtrace/symtrace/proc"

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// isExecutable reports whether path is a regular file the caller may execute.
func isExecutable(path string) bool {
	if unix.Access(path, unix.X_OK) != nil {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// Which locates an executable like the shell does. A name containing a path
// separator is returned as-is if it is an executable regular file; otherwise
// each PATH segment is tried in order, with an empty segment meaning the
// current directory. Returns "" when nothing matches.
func Which(name string) string {
	if strings.ContainsRune(name, '/') {
		if isExecutable(name) {
			return name
		}
		return ""
	}

	pathEnv, ok := os.LookupEnv("PATH")
	if !ok {
		return ""
	}
	for _, dir := range strings.Split(pathEnv, ":") {
		if dir == "" {
			dir = "."
		}
		candidate := filepath.Join(dir, name)
		if isExecutable(candidate) {
			return candidate
		}
	}
	return ""
}
