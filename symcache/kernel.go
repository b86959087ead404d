// Copyright The symtrace Authors
// SPDX-License-Identifier: Apache-2.0

package symcache // import "github.com/symtrace/symtrace/symcache"

import (
	"github.com/symtrace/symtrace/kallsyms"
	"github.com/symtrace/symtrace/libsym"
)

// kernelResolver adapts the kallsyms symbolizer to the Resolver interface.
type kernelResolver struct {
	ksyms *kallsyms.Symbolizer
}

var _ Resolver = (*kernelResolver)(nil)

// NewKernelResolver returns a Resolver for kernel addresses, backed by
// /proc/kallsyms.
func NewKernelResolver() Resolver {
	return &kernelResolver{ksyms: kallsyms.NewSymbolizer()}
}

func (k *kernelResolver) Refresh() error {
	return k.ksyms.Refresh()
}

// ResolveAddress resolves a kernel address. Kernel symbol names are not
// mangled; the demangle flag is accepted for interface symmetry and ignored.
func (k *kernelResolver) ResolveAddress(addr libsym.Address, _ bool) (Symbol, error) {
	name, offset, err := k.ksyms.ResolveAddress(addr)
	if err != nil {
		return Symbol{}, err
	}
	return Symbol{
		Module: kallsyms.KernelModuleName,
		Name:   name,
		Offset: offset,
	}, nil
}

func (k *kernelResolver) ResolveName(_, name string) (libsym.Address, error) {
	return k.ksyms.ResolveName(name)
}
