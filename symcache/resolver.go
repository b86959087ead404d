// Copyright The symtrace Authors
// SPDX-License-Identifier: Apache-2.0

// Package symcache maintains lazily populated symbol tables for the kernel
// and for traced processes, and resolves instruction-pointer addresses to
// human-meaningful symbols.
package symcache // import "github.com/symtrace/symtrace/symcache"

import (
	"errors"

	"github.com/symtrace/symtrace/libsym"
)

// ErrNoModule is returned when an address falls into no known module.
var ErrNoModule = errors.New("module not found")

// ErrNoSymbol is returned when a name lookup matches no symbol.
var ErrNoSymbol = errors.New("symbol not found")

// Symbol is the result of an address resolution.
type Symbol struct {
	// Module is the path of the containing module, or "[kernel]" for
	// kernel symbols.
	Module string
	// Name is the resolved symbol name, or libsym.SymbolNameUnknown when
	// the module was identified but no symbol matched. Callers can still
	// print module+offset in that case.
	Name libsym.SymbolName
	// Offset is the distance from the symbol start, or from the module
	// start when no symbol matched.
	Offset libsym.Address
}

// Resolver is the resolution interface shared by the kernel and process
// symbolizers. Callers pick the implementation based on whether an address
// is kernel- or user-space.
//
// Implementations are not safe for concurrent use. Note that resolution may
// enter the target's mount namespace, which switches the calling thread's
// filesystem view: callers must serialize resolution across resolvers or
// confine it to one goroutine.
type Resolver interface {
	// Refresh re-enumerates the underlying symbol sources, invalidating
	// all cached data.
	Refresh() error

	// ResolveAddress maps an address to a symbol. Pass demangle=true to
	// run the result through the configured demangler.
	ResolveAddress(addr libsym.Address, demangle bool) (Symbol, error)

	// ResolveName returns the address of the named symbol. For process
	// resolvers, module narrows the search to modules whose path contains
	// the given substring; kernel resolvers ignore it.
	ResolveName(module, name string) (libsym.Address, error)
}
