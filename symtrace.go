// Copyright The symtrace Authors
// SPDX-License-Identifier: Apache-2.0

// Package symtrace resolves raw instruction-pointer addresses captured
// during kernel or user-space tracing back to human-meaningful symbols, and
// keeps the answers correct as the traced process's memory layout changes.
//
// The constructors here wire the default collaborators (ELF reader, perf
// map reader, demangler); use the symcache package directly to supply your
// own.
package symtrace // import "github.com/symtrace/symtrace"

import (
	"github.com/symtrace/symtrace/demangler"
	"github.com/symtrace/symtrace/elfsym"
	"github.com/symtrace/symtrace/libsym"
	"github.com/symtrace/symtrace/perfmap"
	"github.com/symtrace/symtrace/symcache"
)

// NewKernelResolver returns a resolver for kernel addresses, backed by
// /proc/kallsyms. Reading real kernel addresses requires elevated
// privileges.
func NewKernelResolver() symcache.Resolver {
	return symcache.NewKernelResolver()
}

// NewProcessResolver returns a resolver for the given process's user-space
// addresses, with lazily loaded per-module symbol tables.
func NewProcessResolver(pid libsym.PID, elfOpts symcache.ElfOptions) (symcache.Resolver, error) {
	d := demangler.New()
	return symcache.NewProcessSymbolizer(pid, symcache.Options{
		ElfReader:     elfsym.NewReader(d),
		PerfMapReader: perfmap.NewReader(),
		Demangler:     d,
		ElfOptions:    elfOpts,
	})
}

// NewResolver picks the resolver type by pid: negative means kernel.
func NewResolver(pid libsym.PID, elfOpts symcache.ElfOptions) (symcache.Resolver, error) {
	if pid < 0 {
		return NewKernelResolver(), nil
	}
	return NewProcessResolver(pid, elfOpts)
}
