// Copyright The symtrace Authors
// SPDX-License-Identifier: Apache-2.0

// Package perfmap reads the per-process perf map text files used by JIT
// engines to register symbols for generated code.
package perfmap // import "github.com/symtrace/symtrace/perfmap"

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/symtrace/symtrace/libsym"
	"github.com/symtrace/symtrace/stringutil"
	"github.com/symtrace/symtrace/symcache"
)

// Reader parses perf map files. Each line is "START SIZE NAME" with START
// and SIZE in hex; NAME may contain spaces. Sizes may be zero, in which
// case the symbol matches unbounded like any zero-sized symbol.
type Reader struct{}

var _ symcache.PerfMapReader = Reader{}

// NewReader returns a perf map Reader.
func NewReader() Reader {
	return Reader{}
}

// LoadPerfMap reads the perf map file at path. Unparseable lines are
// skipped: JIT engines append concurrently and a torn last line is normal.
func (Reader) LoadPerfMap(path string) (*libsym.SymbolMap, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open perf map: %w", err)
	}
	defer file.Close()

	symbols := libsym.NewSymbolMap(256)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := stringutil.ByteSlice2String(scanner.Bytes())

		var fields [3]string
		if stringutil.FieldsN(line, fields[:]) < 3 {
			continue
		}
		start, err := strconv.ParseUint(fields[0], 16, 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseUint(fields[1], 16, 64)
		if err != nil {
			continue
		}
		symbols.Add(libsym.Symbol{
			Name:    libsym.SymbolName(strings.Clone(fields[2])),
			Address: libsym.Address(start),
			Size:    size,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	symbols.Finalize()
	return symbols, nil
}
