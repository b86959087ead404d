// Copyright The symtrace Authors
// SPDX-License-Identifier: Apache-2.0

package symcache

import (
	"errors"
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symtrace/symtrace/libsym"
	"github.com/symtrace/symtrace/proc"
)

const (
	fooBase = libsym.Address(0x400000)
	libBase = libsym.Address(0x7f5c30000000)
	jitAddr = libsym.Address(0x12340000)
)

type fakeElfReader struct {
	tables map[string]*libsym.SymbolMap
	loads  map[string]int
}

func (f *fakeElfReader) LoadElfSymbols(path string, _ ElfOptions) (*libsym.SymbolMap, error) {
	if f.loads == nil {
		f.loads = make(map[string]int)
	}
	f.loads[path]++
	if table, ok := f.tables[path]; ok {
		return table, nil
	}
	return nil, errors.New("no symbol table")
}

type fakePerfMapReader struct {
	tables map[string]*libsym.SymbolMap
}

func (f *fakePerfMapReader) LoadPerfMap(path string) (*libsym.SymbolMap, error) {
	if table, ok := f.tables[path]; ok {
		return table, nil
	}
	return nil, errors.New("no perf map")
}

type markingDemangler struct{}

func (markingDemangler) Demangle(mangled string) string {
	return "demangled(" + mangled + ")"
}

func symbolTable(symbols ...libsym.Symbol) *libsym.SymbolMap {
	sm := libsym.NewSymbolMap(len(symbols))
	for _, s := range symbols {
		sm.Add(s)
	}
	sm.Finalize()
	return sm
}

// installFakeMaps makes module enumeration yield the given mappings plus the
// perf-map fallback, mirroring proc.ForEachModule.
func installFakeMaps(t *testing.T, mappings []proc.Mapping) {
	t.Helper()
	orig := forEachModule
	forEachModule = func(pid libsym.PID, visit func(proc.Mapping) bool) error {
		for _, m := range mappings {
			if !visit(m) {
				return nil
			}
		}
		visit(proc.Mapping{
			Path:  proc.PerfMapPath(pid),
			Start: 0,
			End:   libsym.Address(math.MaxUint64),
		})
		return nil
	}
	t.Cleanup(func() { forEachModule = orig })
}

func newTestSymbolizer(t *testing.T) (*ProcessSymbolizer, *fakeElfReader) {
	t.Helper()
	pid := libsym.PID(os.Getpid())

	installFakeMaps(t, []proc.Mapping{
		{Path: "/bin/foo", Start: fooBase, End: fooBase + 0x10000},
		{Path: "/bin/foo", Start: 0x610000, End: 0x611000},
		{Path: "/usr/lib/libbar.so", Start: libBase, End: libBase + 0x20000},
		{Path: "/usr/lib/libbroken.so", Start: 0x7f5c40000000, End: 0x7f5c40001000},
	})

	elfReader := &fakeElfReader{
		tables: map[string]*libsym.SymbolMap{
			"/bin/foo": symbolTable(
				libsym.Symbol{Name: "main", Address: 0x1000, Size: 0x100},
				libsym.Symbol{Name: "helper", Address: 0x2000, Size: 0},
			),
			"/usr/lib/libbar.so": symbolTable(
				libsym.Symbol{Name: "bar_init", Address: 0x500, Size: 0x10},
				libsym.Symbol{Name: "_ZN3bar7processEv", Address: 0x600, Size: 0x10},
			),
		},
	}
	perfReader := &fakePerfMapReader{
		tables: map[string]*libsym.SymbolMap{
			proc.PerfMapPath(pid): symbolTable(
				libsym.Symbol{Name: "jit_fn", Address: jitAddr, Size: 0x100},
			),
		},
	}

	p, err := NewProcessSymbolizer(pid, Options{
		ElfReader:     elfReader,
		PerfMapReader: perfReader,
		Demangler:     markingDemangler{},
	})
	require.NoError(t, err)
	return p, elfReader
}

func TestResolveAddress(t *testing.T) {
	p, _ := newTestSymbolizer(t)

	tests := map[string]struct {
		addr     libsym.Address
		expected Symbol
	}{
		"symbol start": {
			addr:     fooBase + 0x1000,
			expected: Symbol{Module: "/bin/foo", Name: "main", Offset: 0},
		},
		"inside sized symbol": {
			addr:     fooBase + 0x1080,
			expected: Symbol{Module: "/bin/foo", Name: "main", Offset: 0x80},
		},
		"zero sized symbol matches far past its start": {
			addr:     fooBase + 0x5000,
			expected: Symbol{Module: "/bin/foo", Name: "helper", Offset: 0x3000},
		},
		"module hit without symbol": {
			addr:     fooBase + 0x1100,
			expected: Symbol{Module: "/bin/foo", Name: libsym.SymbolNameUnknown, Offset: 0x1100},
		},
		"shared object symbol": {
			addr:     libBase + 0x505,
			expected: Symbol{Module: "/usr/lib/libbar.so", Name: "bar_init", Offset: 5},
		},
		"jit symbol via perf map fallback": {
			addr:     jitAddr + 0x10,
			expected: Symbol{Module: proc.PerfMapPath(libsym.PID(os.Getpid())), Name: "jit_fn", Offset: 0x10},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			sym, err := p.ResolveAddress(tc.addr, false)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, sym)
		})
	}
}

func TestResolveAddressDistinctSymbols(t *testing.T) {
	p, _ := newTestSymbolizer(t)

	s1, err := p.ResolveAddress(fooBase+0x1010, false)
	require.NoError(t, err)
	s2, err := p.ResolveAddress(fooBase+0x2010, false)
	require.NoError(t, err)
	assert.NotEqual(t, s1.Name, s2.Name)
}

func TestResolveAddressDemangle(t *testing.T) {
	p, _ := newTestSymbolizer(t)

	sym, err := p.ResolveAddress(libBase+0x600, true)
	require.NoError(t, err)
	assert.Equal(t, libsym.SymbolName("demangled(_ZN3bar7processEv)"), sym.Name)

	// The cached entry keeps the mangled name; demangling stays on demand.
	sym, err = p.ResolveAddress(libBase+0x600, false)
	require.NoError(t, err)
	assert.Equal(t, libsym.SymbolName("_ZN3bar7processEv"), sym.Name)
}

func TestLazySymbolLoading(t *testing.T) {
	p, elfReader := newTestSymbolizer(t)

	// Enumeration alone loads nothing.
	assert.Empty(t, elfReader.loads)

	_, err := p.ResolveAddress(fooBase+0x1000, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"/bin/foo": 1}, elfReader.loads)

	// Further lookups in the same module reuse the loaded table.
	_, err = p.ResolveAddress(fooBase+0x2000, false)
	require.NoError(t, err)
	assert.Equal(t, 1, elfReader.loads["/bin/foo"])
}

func TestFailedLoadIsNotRetried(t *testing.T) {
	p, elfReader := newTestSymbolizer(t)

	for i := 0; i < 3; i++ {
		sym, err := p.ResolveAddress(0x7f5c40000010, false)
		require.NoError(t, err)
		// Module identified, symbols unavailable.
		assert.Equal(t, "/usr/lib/libbroken.so", sym.Module)
		assert.Equal(t, libsym.SymbolNameUnknown, sym.Name)
	}
	assert.Equal(t, 1, elfReader.loads["/usr/lib/libbroken.so"])
}

func TestRefreshIdempotent(t *testing.T) {
	p, _ := newTestSymbolizer(t)

	addrs := []libsym.Address{fooBase + 0x1000, libBase + 0x505, jitAddr}
	var before []Symbol
	for _, addr := range addrs {
		sym, err := p.ResolveAddress(addr, false)
		require.NoError(t, err)
		before = append(before, sym)
	}

	require.NoError(t, p.Refresh())
	require.NoError(t, p.Refresh())

	for i, addr := range addrs {
		sym, err := p.ResolveAddress(addr, false)
		require.NoError(t, err)
		assert.Equal(t, before[i], sym)
	}
}

func TestResolveName(t *testing.T) {
	p, _ := newTestSymbolizer(t)

	addr, err := p.ResolveName("bar", "bar_init")
	require.NoError(t, err)
	assert.Equal(t, libBase+0x500, addr)

	// An empty module hint matches every module; first hit wins.
	addr, err = p.ResolveName("", "main")
	require.NoError(t, err)
	assert.Equal(t, fooBase+0x1000, addr)

	_, err = p.ResolveName("bar", "no_such_symbol")
	require.ErrorIs(t, err, ErrNoSymbol)

	_, err = p.ResolveName("nomodule", "main")
	require.ErrorIs(t, err, ErrNoSymbol)
}

func TestNewProcessSymbolizerProcessGone(t *testing.T) {
	orig := forEachModule
	forEachModule = proc.ForEachModule
	t.Cleanup(func() { forEachModule = orig })

	_, err := NewProcessSymbolizer(libsym.PID(0x7fffffff), Options{})
	require.ErrorIs(t, err, proc.ErrProcessGone)
}

func TestNewResolverKernel(t *testing.T) {
	r, err := NewResolver(-1, Options{})
	require.NoError(t, err)
	_, ok := r.(*kernelResolver)
	assert.True(t, ok)
}
