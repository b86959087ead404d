// Copyright The symtrace Authors
// SPDX-License-Identifier: Apache-2.0

package symcache // import "github.com/symtrace/symtrace/symcache"

import (
	"strings"

	"github.com/symtrace/symtrace/libsym"
)

type moduleType int

const (
	moduleTypeUnknown moduleType = iota
	moduleTypeExec
	moduleTypeSharedObject
	moduleTypePerfMap
)

// moduleTypeFor classifies a module by its pathname: perf-map files by their
// ".map" extension, shared objects by a ".so" in the name, everything else
// is treated as an executable.
func moduleTypeFor(path string) moduleType {
	switch {
	case path == "":
		return moduleTypeUnknown
	case strings.HasSuffix(path, ".map"):
		return moduleTypePerfMap
	case strings.Contains(path, ".so"):
		return moduleTypeSharedObject
	default:
		return moduleTypeExec
	}
}

type addressRange struct {
	start libsym.Address
	end   libsym.Address
}

// module is one file-backed unit of code mapped into the process, holding
// one or more address ranges and a lazily loaded symbol table. A file mapped
// at several disjoint ranges (separate PROT segments) is a single module
// sharing one symbol table.
type module struct {
	name   string
	typ    moduleType
	ranges []addressRange

	// loaded is set after the first load attempt, successful or not, so a
	// failed symbol load is not retried on every lookup.
	loaded  bool
	symbols *libsym.SymbolMap
}

func newModule(name string) *module {
	return &module{name: name, typ: moduleTypeFor(name)}
}

// addRange registers an additional mapped range, dropping exact duplicates.
func (m *module) addRange(start, end libsym.Address) {
	for _, r := range m.ranges {
		if r.start == start && r.end == end {
			return
		}
	}
	m.ranges = append(m.ranges, addressRange{start: start, end: end})
}

// start is the module's base address. Modules are assumed laid out
// contiguously from their first mapped range for offset purposes.
func (m *module) start() libsym.Address {
	return m.ranges[0].start
}

// contains reports whether addr falls into one of the module's ranges,
// returning the offset of addr within the module file. The lowest matching
// range wins; the offset is always relative to the first registered range.
func (m *module) contains(addr libsym.Address) (libsym.Address, bool) {
	for _, r := range m.ranges {
		if addr >= r.start && addr < r.end {
			return addr - m.start(), true
		}
	}
	return 0, false
}
