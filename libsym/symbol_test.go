// Copyright The symtrace Authors
// SPDX-License-Identifier: Apache-2.0

package libsym

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMap() *SymbolMap {
	sm := NewSymbolMap(4)
	sm.Add(Symbol{Name: "read", Address: 0x1000, Size: 0x40})
	sm.Add(Symbol{Name: "write", Address: 0x1040, Size: 0x20})
	sm.Add(Symbol{Name: "trampoline", Address: 0x2000, Size: 0})
	sm.Finalize()
	return sm
}

func TestLookupByAddress(t *testing.T) {
	sm := newTestMap()

	tests := map[string]struct {
		addr     Address
		name     SymbolName
		offset   Address
		resolved bool
	}{
		"start of symbol":      {addr: 0x1000, name: "read", offset: 0, resolved: true},
		"inside symbol":        {addr: 0x103f, name: "read", offset: 0x3f, resolved: true},
		"next symbol start":    {addr: 0x1040, name: "write", offset: 0, resolved: true},
		"past sized symbol":    {addr: 0x1060, resolved: false},
		"before first symbol":  {addr: 0xfff, resolved: false},
		"zero size unbounded":  {addr: 0x9000000, name: "trampoline", offset: 0x8ffe000, resolved: true},
		"one past zero size":   {addr: 0x2001, name: "trampoline", offset: 1, resolved: true},
		"zero size exact hit":  {addr: 0x2000, name: "trampoline", offset: 0, resolved: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			symName, offset, ok := sm.LookupByAddress(tc.addr)
			assert.Equal(t, tc.resolved, ok)
			if tc.resolved {
				assert.Equal(t, tc.name, symName)
				assert.Equal(t, tc.offset, offset)
			} else {
				assert.Equal(t, SymbolNameUnknown, symName)
			}
		})
	}
}

func TestDistinctSymbolsResolveDistinctly(t *testing.T) {
	sm := newTestMap()

	n1, o1, ok := sm.LookupByAddress(0x1010)
	require.True(t, ok)
	n2, o2, ok := sm.LookupByAddress(0x1050)
	require.True(t, ok)

	assert.NotEqual(t, n1, n2)
	assert.Equal(t, Address(0x10), o1)
	assert.Equal(t, Address(0x10), o2)
}

func TestLookupSymbol(t *testing.T) {
	sm := newTestMap()

	sym, err := sm.LookupSymbol("write")
	require.NoError(t, err)
	assert.Equal(t, Address(0x1040), sym.Address)

	addr, err := sm.LookupSymbolAddress("read")
	require.NoError(t, err)
	assert.Equal(t, Address(0x1000), addr)

	_, err = sm.LookupSymbol("no_such_symbol")
	require.Error(t, err)
}
