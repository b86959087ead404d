// Copyright The symtrace Authors
// SPDX-License-Identifier: Apache-2.0

// Package kallsyms reads /proc/kallsyms and resolves kernel addresses to
// symbol names.
package kallsyms // import "github.com/symtrace/symtrace/kallsyms"

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/symtrace/symtrace/libsym"
	"github.com/symtrace/symtrace/stringutil"
)

// DefaultPath is the kernel symbol table location.
const DefaultPath = "/proc/kallsyms"

// KernelModuleName is reported as the module for every kernel symbol.
const KernelModuleName = "[kernel]"

// ErrSymbolPermissions indicates kallsyms addresses are hidden from this
// process. Reading real kernel addresses requires elevated privileges;
// callers may want to surface this distinctly and prompt for them.
var ErrSymbolPermissions = errors.New(
	"unable to read kallsyms addresses - check capabilities")

// ErrNoSymbol is returned when an address or name matches no kernel symbol.
var ErrNoSymbol = errors.New("symbol not found")

// Symbolizer holds the kernel symbol table. Kernel symbol sizes are unknown,
// so address lookups match the nearest preceding symbol with no upper bound.
//
// A Symbolizer is not safe for concurrent use.
type Symbolizer struct {
	path    string
	loaded  bool
	symbols *libsym.SymbolMap
}

// NewSymbolizer returns a Symbolizer reading DefaultPath.
func NewSymbolizer() *Symbolizer {
	return NewSymbolizerFromPath(DefaultPath)
}

// NewSymbolizerFromPath returns a Symbolizer reading a kallsyms-format file
// from the given path.
func NewSymbolizerFromPath(path string) *Symbolizer {
	return &Symbolizer{path: path}
}

// Refresh reloads the kernel symbol table, replacing it wholesale.
func (s *Symbolizer) Refresh() error {
	if s.path == DefaultPath && os.Geteuid() != 0 {
		// Unprivileged readers get all-zero addresses on the host
		// kernel. Fail fast instead of parsing a useless table.
		return ErrSymbolPermissions
	}

	file, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("unable to open %s: %w", s.path, err)
	}
	defer file.Close()

	symbols, err := parseSymbols(file)
	if err != nil {
		return err
	}
	s.symbols = symbols
	s.loaded = true
	return nil
}

// parseSymbols reads kallsyms-format data: hex address, type character,
// symbol name, optional [module].
func parseSymbols(r io.Reader) (*libsym.SymbolMap, error) {
	symbols := libsym.NewSymbolMap(128 * 1024)
	noSymbols := true

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		// The underlying bytes change on the next Scan call; every field
		// kept past this iteration must be cloned.
		line := stringutil.ByteSlice2String(scanner.Bytes())

		var fields [4]string
		nFields := stringutil.FieldsN(line, fields[:])
		if nFields < 3 {
			return nil, fmt.Errorf("unexpected line in kallsyms: '%s'", line)
		}

		address, err := strconv.ParseUint(fields[0], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse address value: '%s'", fields[0])
		}
		if address != 0 {
			noSymbols = false
		}

		symbols.Add(libsym.Symbol{
			Name:    libsym.SymbolName(strings.Clone(fields[2])),
			Address: libsym.Address(address),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if noSymbols {
		return nil, ErrSymbolPermissions
	}

	symbols.Finalize()
	return symbols, nil
}

func (s *Symbolizer) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	return s.Refresh()
}

// ResolveAddress resolves addr to the greatest kernel symbol at or below it,
// returning the symbol name and the offset from the symbol start.
func (s *Symbolizer) ResolveAddress(addr libsym.Address) (libsym.SymbolName, libsym.Address, error) {
	if err := s.ensureLoaded(); err != nil {
		return libsym.SymbolNameUnknown, 0, err
	}
	name, offset, ok := s.symbols.LookupByAddress(addr)
	if !ok {
		return libsym.SymbolNameUnknown, 0, ErrNoSymbol
	}
	return name, offset, nil
}

// ResolveName returns the address of the kernel symbol with the given name.
func (s *Symbolizer) ResolveName(name string) (libsym.Address, error) {
	if err := s.ensureLoaded(); err != nil {
		return 0, err
	}
	addr, err := s.symbols.LookupSymbolAddress(libsym.SymbolName(name))
	if err != nil {
		return 0, ErrNoSymbol
	}
	return addr, nil
}
