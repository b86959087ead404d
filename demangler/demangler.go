// Copyright The symtrace Authors
// SPDX-License-Identifier: Apache-2.0

// Package demangler provides the default symbol name demangler, covering
// C++ (Itanium ABI), Rust and LLVM mangling schemes.
package demangler // import "github.com/symtrace/symtrace/demangler"

import (
	"github.com/ianlancetaylor/demangle"

	"github.com/symtrace/symtrace/symcache"
)

// Demangler demangles symbol names, passing through anything it does not
// recognize.
type Demangler struct{}

var _ symcache.Demangler = Demangler{}

// New returns a Demangler.
func New() Demangler {
	return Demangler{}
}

// Demangle returns the display name for a mangled symbol, or the input
// unchanged when it is not mangled.
func (Demangler) Demangle(mangled string) string {
	return demangle.Filter(mangled)
}
