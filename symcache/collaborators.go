// Copyright The symtrace Authors
// SPDX-License-Identifier: Apache-2.0

package symcache // import "github.com/symtrace/symtrace/symcache"

import (
	"github.com/symtrace/symtrace/libsym"
)

// ElfOptions control how an ElfSymbolReader builds a symbol table.
type ElfOptions struct {
	// IncludeDebugSymbols also loads symbols from debug-only sections.
	IncludeDebugSymbols bool
	// DemangleOnLoad demangles names while loading instead of on demand.
	DemangleOnLoad bool
}

// ElfSymbolReader loads the symbol table of an ELF file. The returned map's
// addresses are file-relative offsets.
type ElfSymbolReader interface {
	LoadElfSymbols(path string, opts ElfOptions) (*libsym.SymbolMap, error)
}

// PerfMapReader loads a perf-map text file of JIT-generated symbols. The
// returned map has the same shape as ELF symbol tables.
type PerfMapReader interface {
	LoadPerfMap(path string) (*libsym.SymbolMap, error)
}

// Demangler turns a mangled symbol name into a display name. It must return
// the input unchanged when the name is not mangled.
type Demangler interface {
	Demangle(mangled string) string
}
