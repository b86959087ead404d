// Copyright The symtrace Authors
// SPDX-License-Identifier: Apache-2.0

package symcache // import "github.com/symtrace/symtrace/symcache"

import (
	"errors"
	"strings"

	"github.com/elastic/go-freelru"
	log "github.com/sirupsen/logrus"

	"github.com/symtrace/symtrace/ldcache"
	"github.com/symtrace/symtrace/libsym"
	"github.com/symtrace/symtrace/mountns"
	"github.com/symtrace/symtrace/proc"
)

// defaultAddrCacheSize bounds the per-process cache of resolved addresses.
const defaultAddrCacheSize = 4096

// Options configure a process symbolizer. The three collaborators may be
// nil: modules without a reader simply yield no symbols, and a nil Demangler
// turns demangling requests into no-ops.
type Options struct {
	// ElfReader loads symbol tables for executables and shared objects.
	ElfReader ElfSymbolReader
	// PerfMapReader loads the perf-map fallback for JIT symbols.
	PerfMapReader PerfMapReader
	// Demangler is applied when ResolveAddress is called with demangle=true.
	Demangler Demangler
	// ElfOptions are passed through to ElfReader.
	ElfOptions ElfOptions
	// LdCache resolves bare library names as the last resort. Defaults to
	// the system cache at /etc/ld.so.cache.
	LdCache *ldcache.Cache
	// AddrCacheSize overrides the resolved-address LRU size.
	AddrCacheSize uint32
}

// ProcessSymbolizer owns the module list and per-module symbol tables of one
// traced process. Symbol tables are loaded lazily on the first resolution
// touching a module, re-resolving library paths inside the target's mount
// namespace. Not safe for concurrent use.
type ProcessSymbolizer struct {
	pid  libsym.PID
	opts Options

	stat      procStat
	modules   []*module
	addrCache *freelru.LRU[libsym.Address, Symbol]
}

var _ Resolver = (*ProcessSymbolizer)(nil)

// forEachModule is overridable for the test suite.
var forEachModule = proc.ForEachModule

// defaultLdCache is shared by all symbolizers so the dynamic-linker cache is
// loaded at most once per tracer process. It reflects the tracer's own view
// of /etc/ld.so.cache and is only the last-resort lookup tier.
var defaultLdCache = ldcache.New()

// NewProcessSymbolizer creates a symbolizer for pid and performs the initial
// module enumeration. Fails with an error wrapping proc.ErrProcessGone when
// the process does not exist.
func NewProcessSymbolizer(pid libsym.PID, opts Options) (*ProcessSymbolizer, error) {
	if opts.LdCache == nil {
		opts.LdCache = defaultLdCache
	}
	cacheSize := opts.AddrCacheSize
	if cacheSize == 0 {
		cacheSize = defaultAddrCacheSize
	}
	addrCache, err := freelru.New[libsym.Address, Symbol](cacheSize, libsym.Address.Hash32)
	if err != nil {
		return nil, err
	}

	p := &ProcessSymbolizer{
		pid:       pid,
		opts:      opts,
		stat:      newProcStat(pid),
		addrCache: addrCache,
	}
	if err := p.Refresh(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewResolver returns a kernel resolver for negative pids and a process
// symbolizer otherwise.
func NewResolver(pid libsym.PID, opts Options) (Resolver, error) {
	if pid < 0 {
		return NewKernelResolver(), nil
	}
	return NewProcessSymbolizer(pid, opts)
}

// Refresh re-enumerates the process's modules and drops all cached symbol
// data. Mappings of the same file are merged into one module sharing a
// symbol table.
func (p *ProcessSymbolizer) Refresh() error {
	p.stat.reset()
	p.modules = p.modules[:0]
	p.addrCache.Purge()

	byName := make(map[string]*module)
	return forEachModule(p.pid, func(mapping proc.Mapping) bool {
		mod, ok := byName[mapping.Path]
		if !ok {
			mod = newModule(mapping.Path)
			byName[mapping.Path] = mod
			p.modules = append(p.modules, mod)
		}
		mod.addRange(mapping.Start, mapping.End)
		return true
	})
}

// ResolveAddress maps addr to a symbol in one of the process's modules. A
// module hit without a symbol match reports the module with
// libsym.SymbolNameUnknown and the module-relative offset. The module list
// is rebuilt first if the process identity went stale (pid reuse).
func (p *ProcessSymbolizer) ResolveAddress(addr libsym.Address, demangle bool) (Symbol, error) {
	if p.stat.isStale() {
		if err := p.Refresh(); err != nil {
			return Symbol{}, err
		}
	}

	if sym, ok := p.addrCache.Get(addr); ok {
		return p.demangled(sym, demangle), nil
	}

	// Modules are registered in maps order, which is address-ascending,
	// so a linear scan visits them in address order. Module counts are in
	// the tens; a sorted module index is not worth it here.
	for _, mod := range p.modules {
		offset, ok := mod.contains(addr)
		if !ok {
			continue
		}
		if !mod.loaded {
			p.loadModuleSymbols(mod)
		}

		sym := Symbol{Module: mod.name, Offset: offset}
		if mod.symbols != nil {
			if name, symOffset, ok := mod.symbols.LookupByAddress(offset); ok {
				sym.Name = name
				sym.Offset = symOffset
			}
		}
		p.addrCache.Add(addr, sym)
		return p.demangled(sym, demangle), nil
	}
	return Symbol{}, ErrNoModule
}

// ResolveName finds a symbol by exact name in the modules whose path
// contains the module substring, lazily loading symbol tables as it goes.
// The first hit wins. The returned address is relative to the process's
// address space.
func (p *ProcessSymbolizer) ResolveName(module, name string) (libsym.Address, error) {
	if p.stat.isStale() {
		if err := p.Refresh(); err != nil {
			return 0, err
		}
	}

	for _, mod := range p.modules {
		if !strings.Contains(mod.name, module) {
			continue
		}
		if !mod.loaded {
			p.loadModuleSymbols(mod)
		}
		if mod.symbols == nil {
			continue
		}
		offset, err := mod.symbols.LookupSymbolAddress(libsym.SymbolName(name))
		if err != nil {
			continue
		}
		return mod.start() + offset, nil
	}
	return 0, ErrNoSymbol
}

// loadModuleSymbols populates mod's symbol table via the configured
// collaborator. The module is marked loaded regardless of the outcome so an
// expensive failing parse does not repeat on every lookup. For file-backed
// modules the path lookup happens inside the target's mount namespace, so
// it reflects the filesystem the process actually sees.
func (p *ProcessSymbolizer) loadModuleSymbols(mod *module) {
	mod.loaded = true

	switch mod.typ {
	case moduleTypePerfMap:
		if p.opts.PerfMapReader == nil {
			return
		}
		symbols, err := p.opts.PerfMapReader.LoadPerfMap(mod.name)
		if err != nil {
			log.Debugf("No perf map symbols for %s: %v", mod.name, err)
			return
		}
		mod.symbols = symbols

	case moduleTypeExec, moduleTypeSharedObject:
		if p.opts.ElfReader == nil {
			return
		}

		ns, err := mountns.Enter(p.pid)
		if err != nil && !errors.Is(err, mountns.ErrSameNamespace) {
			log.Debugf("Resolving %s outside the mount namespace of PID %d: %v",
				mod.name, p.pid, err)
		}
		if ns != nil {
			defer func() {
				if exitErr := ns.Exit(); exitErr != nil {
					log.Errorf("Thread may be stuck in the mount namespace of PID %d: %v",
						p.pid, exitErr)
				}
			}()
		}

		path := proc.LocateLibrary(mod.name, p.pid, p.opts.LdCache)
		if path == "" {
			log.Debugf("Cannot locate module %s of PID %d", mod.name, p.pid)
			return
		}
		symbols, err := p.opts.ElfReader.LoadElfSymbols(path, p.opts.ElfOptions)
		if err != nil {
			log.Debugf("No symbols for module %s: %v", path, err)
			return
		}
		mod.symbols = symbols
	}
}

func (p *ProcessSymbolizer) demangled(sym Symbol, demangle bool) Symbol {
	if demangle && sym.Name != libsym.SymbolNameUnknown && p.opts.Demangler != nil {
		sym.Name = libsym.SymbolName(p.opts.Demangler.Demangle(string(sym.Name)))
	}
	return sym
}
