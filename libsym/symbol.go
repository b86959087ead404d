// Copyright The symtrace Authors
// SPDX-License-Identifier: Apache-2.0

package libsym // import "github.com/symtrace/symtrace/libsym"

import (
	"fmt"
	"sort"
)

// SymbolName represents the name of a symbol.
type SymbolName string

// SymbolNameUnknown is returned by lookups when an address has no symbol info.
const SymbolNameUnknown = SymbolName("")

// Symbol is one entry of a symbol table. Address is either an absolute
// address (kernel symbols) or a module file offset (process symbols).
// A Size of zero means the extent of the symbol is unknown; such a symbol
// matches any address at or past its start up to the next symbol.
type Symbol struct {
	Name    SymbolName
	Address Address
	Size    uint64
	Flags   uint32
}

// SymbolMap is a collection of symbols supporting address-to-name and
// name-to-address queries. Symbols are inserted via Add and the map must be
// finalized with Finalize before any lookup.
type SymbolMap struct {
	nameToSymbol    map[SymbolName]*Symbol
	addressToSymbol []Symbol
}

// NewSymbolMap returns an empty SymbolMap with the given capacity hint.
func NewSymbolMap(capacity int) *SymbolMap {
	return &SymbolMap{
		addressToSymbol: make([]Symbol, 0, capacity),
	}
}

// Add inserts a symbol. Must not be called after Finalize.
func (sm *SymbolMap) Add(s Symbol) {
	sm.addressToSymbol = append(sm.addressToSymbol, s)
}

// Finalize sorts the address index and builds the name index. Lookups on a
// non-finalized map return no matches.
func (sm *SymbolMap) Finalize() {
	// Trim the overcommitted capacity.
	a := make([]Symbol, len(sm.addressToSymbol))
	copy(a, sm.addressToSymbol)
	sm.addressToSymbol = a

	// Descending by address so that sort.Search finds the last symbol with
	// Address <= query.
	sort.Slice(sm.addressToSymbol,
		func(i, j int) bool {
			return sm.addressToSymbol[i].Address > sm.addressToSymbol[j].Address
		})

	sm.nameToSymbol = make(map[SymbolName]*Symbol, len(sm.addressToSymbol))
	for i, s := range sm.addressToSymbol {
		sm.nameToSymbol[s.Name] = &sm.addressToSymbol[i]
	}
}

// LookupSymbol returns the symbol with the given name.
func (sm *SymbolMap) LookupSymbol(name SymbolName) (*Symbol, error) {
	if sym, ok := sm.nameToSymbol[name]; ok {
		return sym, nil
	}
	return nil, fmt.Errorf("symbol %v not present in map", name)
}

// LookupSymbolAddress returns the address of the symbol with the given name.
func (sm *SymbolMap) LookupSymbolAddress(name SymbolName) (Address, error) {
	sym, err := sm.LookupSymbol(name)
	if err != nil {
		return 0, err
	}
	return sym.Address, nil
}

// LookupByAddress resolves val to the last symbol with Address <= val.
// A symbol with a non-zero Size additionally requires val < Address+Size;
// a zero-sized symbol matches arbitrarily far past its start. Returns the
// symbol name and the offset of val from the symbol start, or
// (SymbolNameUnknown, val, false) when nothing matches.
func (sm *SymbolMap) LookupByAddress(val Address) (SymbolName, Address, bool) {
	i := sort.Search(len(sm.addressToSymbol),
		func(i int) bool {
			return val >= sm.addressToSymbol[i].Address
		})
	if i < len(sm.addressToSymbol) &&
		(sm.addressToSymbol[i].Size == 0 ||
			val < sm.addressToSymbol[i].Address+
				Address(sm.addressToSymbol[i].Size)) {
		return sm.addressToSymbol[i].Name,
			val - sm.addressToSymbol[i].Address,
			true
	}
	return SymbolNameUnknown, val, false
}

// Len returns the number of symbols in the map.
func (sm *SymbolMap) Len() int {
	return len(sm.addressToSymbol)
}
