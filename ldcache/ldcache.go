// Copyright The symtrace Authors
// SPDX-License-Identifier: Apache-2.0

// Package ldcache parses the glibc dynamic-linker cache (/etc/ld.so.cache)
// and resolves bare library names to on-disk paths the same way the dynamic
// linker would.
package ldcache // import "github.com/symtrace/symtrace/ldcache"

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"unsafe"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// DefaultPath is the dynamic linker cache location.
const DefaultPath = "/etc/ld.so.cache"

// ErrMalformedCache is returned when the cache header or size sanity
// checks fail.
var ErrMalformedCache = errors.New("malformed ld.so.cache")

const (
	cache1Magic = "ld.so-1.7.0"
	cache2Magic = "glibc-ld.so.cache"

	// The v1 header is the magic padded to 4 bytes, followed by the
	// 32-bit entry count.
	cache1HeaderSize = 16
	cache1EntrySize  = 12

	// The v2 header is the magic, a 3-byte version, the 32-bit entry
	// count, the 32-bit string table length and 5 pad words.
	cache2HeaderSize = 48
	cache2EntrySize  = 24
)

// Flag constants from glibc's cache format. The low byte encodes the ELF
// type, the next byte the ABI.
const (
	flagTypeMask = 0x00ff
	typeELFLibc6 = 0x0003

	flagABIMask     = 0xff00
	abiSparcLib64   = 0x0100
	abiIA64Lib64    = 0x0200
	abiX8664Lib64   = 0x0300
	abiS390Lib64    = 0x0400
	abiPowerPCLib64 = 0x0500
)

// Entry is one library record from the cache.
type Entry struct {
	// Name is the library soname as recorded by ldconfig, e.g. "libssl.so.3".
	Name string
	// Path is the absolute install path.
	Path string
	// Flags encode the ELF type and ABI word size.
	Flags int32
}

type state int

const (
	stateNotLoaded state = iota
	stateLoaded
	stateFailed
)

// Cache lazily loads the dynamic-linker cache on first lookup and keeps it
// for the lifetime of the process. A failed load is remembered and further
// lookups fail fast without retrying.
type Cache struct {
	path        string
	pointerSize int

	state   state
	entries []Entry
}

// New returns a Cache reading DefaultPath with the host pointer size.
func New() *Cache {
	return NewFromPath(DefaultPath, int(unsafe.Sizeof(uintptr(0))))
}

// NewFromPath returns a Cache reading the given file. pointerSize selects
// which ABI entries match, mirroring the word size of the resolver itself.
func NewFromPath(path string, pointerSize int) *Cache {
	return &Cache{path: path, pointerSize: pointerSize}
}

// matchFlags reports whether a cache entry with the given flags is an ELF
// shared library usable by this resolver. Entries carrying one of the known
// 64-bit ABI tags require a 64-bit resolver; untagged entries are assumed
// to be 32-bit, matching the dynamic linker's own selection rule.
func (c *Cache) matchFlags(flags int32) bool {
	if flags&flagTypeMask != typeELFLibc6 {
		return false
	}
	switch flags & flagABIMask {
	case abiSparcLib64, abiIA64Lib64, abiX8664Lib64, abiS390Lib64, abiPowerPCLib64:
		return c.pointerSize == 8
	}
	return c.pointerSize == 4
}

// Lookup resolves a bare library name (e.g. "ssl") to the path of
// "lib<name>.so*" from the cache. Returns "" if the cache can not be loaded
// or holds no matching entry. The first matching entry wins: cache order is
// the dynamic linker's own preference order.
func (c *Cache) Lookup(name string) string {
	if c.state == stateNotLoaded {
		if err := c.load(); err != nil {
			log.Debugf("Disabling ld.so.cache lookups: %v", err)
			c.state = stateFailed
		}
	}
	if c.state == stateFailed {
		return ""
	}

	soname := "lib" + name + ".so"
	for i := range c.entries {
		e := &c.entries[i]
		if len(e.Name) >= len(soname) && e.Name[:len(soname)] == soname &&
			c.matchFlags(e.Flags) {
			return e.Path
		}
	}
	return ""
}

func (c *Cache) load() error {
	fd, err := unix.Open(c.path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", c.path, err)
	}
	defer unix.Close(fd)

	var st unix.Stat_t
	if err = unix.Fstat(fd, &st); err != nil {
		return fmt.Errorf("stat %s: %w", c.path, err)
	}
	if st.Size < cache1HeaderSize {
		return fmt.Errorf("%w: file too small", ErrMalformedCache)
	}

	data, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return fmt.Errorf("mmap %s: %w", c.path, err)
	}
	defer func() {
		if err := unix.Munmap(data); err != nil {
			log.Warnf("Failed to unmap %s: %v", c.path, err)
		}
	}()

	entries, err := parse(data)
	if err != nil {
		return err
	}
	c.entries = entries
	c.state = stateLoaded
	return nil
}

// parse decodes the raw cache file contents. Both on-disk versions are
// supported: a pure v1 cache, a pure v2 cache, and the compatibility layout
// where a v2 cache is embedded after a v1 stub.
func parse(data []byte) ([]Entry, error) {
	if bytes.HasPrefix(data, []byte(cache1Magic)) {
		count := binary.LittleEndian.Uint32(data[12:])
		cache1Len := uint64(cache1HeaderSize) + uint64(count)*cache1EntrySize
		cache1Len = (cache1Len + 7) &^ 7

		if uint64(len(data)) > cache1Len+cache2HeaderSize {
			return parseV2(data[cache1Len:])
		}
		return parseV1(data)
	}
	return parseV2(data)
}

func parseV1(data []byte) ([]Entry, error) {
	count := binary.LittleEndian.Uint32(data[12:])
	stringsOff := uint64(cache1HeaderSize) + uint64(count)*cache1EntrySize
	if stringsOff > uint64(len(data)) {
		return nil, fmt.Errorf("%w: v1 entry table exceeds file size", ErrMalformedCache)
	}

	// v1 key/value offsets are relative to the string table following the
	// entry array.
	strtab := data[stringsOff:]
	entries := make([]Entry, 0, count)
	for i := uint64(0); i < uint64(count); i++ {
		rec := data[cache1HeaderSize+i*cache1EntrySize:]
		entry, err := makeEntry(strtab,
			int32(binary.LittleEndian.Uint32(rec)),
			binary.LittleEndian.Uint32(rec[4:]),
			binary.LittleEndian.Uint32(rec[8:]))
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func parseV2(data []byte) ([]Entry, error) {
	if !bytes.HasPrefix(data, []byte(cache2Magic)) {
		return nil, fmt.Errorf("%w: unrecognized header", ErrMalformedCache)
	}
	if len(data) < cache2HeaderSize {
		return nil, fmt.Errorf("%w: truncated v2 header", ErrMalformedCache)
	}

	count := binary.LittleEndian.Uint32(data[20:])
	entriesEnd := uint64(cache2HeaderSize) + uint64(count)*cache2EntrySize
	if entriesEnd > uint64(len(data)) {
		return nil, fmt.Errorf("%w: v2 entry table exceeds file size", ErrMalformedCache)
	}

	// v2 key/value offsets are relative to the start of the v2 region.
	entries := make([]Entry, 0, count)
	for i := uint64(0); i < uint64(count); i++ {
		rec := data[cache2HeaderSize+i*cache2EntrySize:]
		entry, err := makeEntry(data,
			int32(binary.LittleEndian.Uint32(rec)),
			binary.LittleEndian.Uint32(rec[4:]),
			binary.LittleEndian.Uint32(rec[8:]))
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func makeEntry(strdata []byte, flags int32, key, value uint32) (Entry, error) {
	name, err := cstringAt(strdata, key)
	if err != nil {
		return Entry{}, err
	}
	path, err := cstringAt(strdata, value)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Name: name, Path: path, Flags: flags}, nil
}

func cstringAt(data []byte, offset uint32) (string, error) {
	if uint64(offset) >= uint64(len(data)) {
		return "", fmt.Errorf("%w: string offset %#x out of bounds", ErrMalformedCache, offset)
	}
	end := bytes.IndexByte(data[offset:], 0)
	if end < 0 {
		return "", fmt.Errorf("%w: unterminated string at %#x", ErrMalformedCache, offset)
	}
	return string(data[offset : int(offset)+end]), nil
}
