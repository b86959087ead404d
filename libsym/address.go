// Copyright The symtrace Authors
// SPDX-License-Identifier: Apache-2.0

// Package libsym provides the shared data model for kernel and process
// symbol resolution.
package libsym // import "github.com/symtrace/symtrace/libsym"

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"
)

// Address represents a virtual address, or an offset within a module.
type Address uint64

// Hash32 returns a 32-bit hash of the address. Its main purpose is to serve
// as a key hash for LRU caching.
func (adr Address) Hash32() uint32 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(adr))
	return uint32(xxh3.Hash(buf[:]))
}

// PID represents a process identifier.
type PID int32
