// Copyright The symtrace Authors
// SPDX-License-Identifier: Apache-2.0

package proc // import "github.com/symtrace/symtrace/proc"

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/symtrace/symtrace/libsym"
	"github.com/symtrace/symtrace/stringutil"
)

// interpreters are the runtimes detected besides plain C, checked in order.
var interpreters = []string{"java", "python", "ruby", "php", "node"}

// DetectLanguage guesses the implementation language of pid by inspecting
// the executable path and the mapped library names. The result is a hint
// for choosing a symbolization or demangling strategy, not authoritative.
// Returns "" when no clue is found.
func DetectLanguage(pid libsym.PID) string {
	var exe string
	if resolved, err := filepath.EvalSymlinks(fmt.Sprintf("/proc/%d/exe", pid)); err == nil {
		exe = resolved
	}

	mapsFile, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return detectLanguageIn(exe, nil)
	}
	defer mapsFile.Close()

	return detectLanguageIn(exe, mapsFile)
}

func detectLanguageIn(exe string, maps io.Reader) string {
	for _, lang := range interpreters {
		if exe != "" && strings.Contains(exe, lang) {
			return lang
		}
	}
	if maps == nil {
		return ""
	}

	// No clue in the executable path; look for an interpreter runtime
	// library in the mappings. A bare libc mapping means plain C.
	libc := false
	scanner := bufio.NewScanner(maps)
	for scanner.Scan() {
		line := stringutil.ByteSlice2String(scanner.Bytes())

		var fields [6]string
		if stringutil.FieldsN(line, fields[:]) < 6 {
			continue
		}
		path := fields[5]

		for _, lang := range interpreters {
			if strings.Contains(path, "/lib"+lang) {
				return lang
			}
		}
		if idx := strings.Index(path, "libc"); idx >= 0 && idx+4 < len(path) &&
			(path[idx+4] == '-' || path[idx+4] == '.') {
			libc = true
		}
	}

	if libc {
		return "c"
	}
	return ""
}
