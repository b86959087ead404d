// Copyright The symtrace Authors
// SPDX-License-Identifier: Apache-2.0

// Package elfsym provides the default ELF symbol table reader for the
// process symbolizer.
package elfsym // import "github.com/symtrace/symtrace/elfsym"

import (
	"debug/elf"
	"errors"
	"fmt"

	"github.com/symtrace/symtrace/libsym"
	"github.com/symtrace/symtrace/symcache"
)

// Reader loads function symbols from ELF files. The dynamic symbol table is
// always consulted; the full symbol table (stripped from release binaries)
// is added when requested via the load options.
type Reader struct {
	demangler symcache.Demangler
}

var _ symcache.ElfSymbolReader = (*Reader)(nil)

// NewReader returns a Reader. demangler is used for demangle-on-load and
// may be nil.
func NewReader(demangler symcache.Demangler) *Reader {
	return &Reader{demangler: demangler}
}

// LoadElfSymbols reads the function symbols of the ELF file at path into a
// symbol map keyed by file-relative addresses.
func (r *Reader) LoadElfSymbols(path string, opts symcache.ElfOptions) (*libsym.SymbolMap, error) {
	file, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ELF %s: %w", path, err)
	}
	defer file.Close()

	symbols := libsym.NewSymbolMap(256)

	dynamic, err := file.DynamicSymbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, fmt.Errorf("dynamic symbols of %s: %w", path, err)
	}
	r.addSymbols(symbols, dynamic, opts)

	if opts.IncludeDebugSymbols {
		table, err := file.Symbols()
		if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
			return nil, fmt.Errorf("symbol table of %s: %w", path, err)
		}
		r.addSymbols(symbols, table, opts)
	}

	symbols.Finalize()
	if symbols.Len() == 0 {
		return nil, fmt.Errorf("%s defines no function symbols", path)
	}
	return symbols, nil
}

func (r *Reader) addSymbols(symbols *libsym.SymbolMap, table []elf.Symbol,
	opts symcache.ElfOptions) {
	for _, sym := range table {
		if elf.ST_TYPE(sym.Info) != elf.STT_FUNC || sym.Value == 0 || sym.Name == "" {
			continue
		}
		name := sym.Name
		if opts.DemangleOnLoad && r.demangler != nil {
			name = r.demangler.Demangle(name)
		}
		symbols.Add(libsym.Symbol{
			Name:    libsym.SymbolName(name),
			Address: libsym.Address(sym.Value),
			Size:    sym.Size,
			Flags:   uint32(sym.Info),
		})
	}
}
