// Copyright The symtrace Authors
// SPDX-License-Identifier: Apache-2.0

// Package stringutil provides allocation-free string helpers for the
// /proc text parsers.
package stringutil // import "github.com/symtrace/symtrace/stringutil"

import (
	"strings"
	"unsafe"
)

var asciiSpace = [256]uint8{'\t': 1, '\n': 1, '\v': 1, '\f': 1, '\r': 1, ' ': 1}

// FieldsN splits the string s around each instance of one or more consecutive
// space characters, filling f with substrings of s. If s contains more fields
// than len(f), the last element of f is set to the unparsed remainder of s
// starting with the first non-space character. Returns the number of fields
// filled in. Apart from that, FieldsN is an allocation-free strings.Fields.
func FieldsN(s string, f []string) int {
	n := len(f)
	si := 0
	for i := 0; i < n-1; i++ {
		for si < len(s) && asciiSpace[s[si]] != 0 {
			si++
		}
		fieldStart := si

		for si < len(s) && asciiSpace[s[si]] == 0 {
			si++
		}
		if fieldStart >= si {
			return i
		}

		f[i] = s[fieldStart:si]
	}

	for si < len(s) && asciiSpace[s[si]] != 0 {
		si++
	}

	if si < len(s) {
		f[n-1] = s[si:]
		return n
	}

	return n - 1
}

// SplitN splits the string around each instance of sep, filling f with
// substrings of s. If s contains more separators than len(f)-1, the last
// element of f is set to the unparsed remainder. Returns the number of fields
// filled in. Apart from that, SplitN is an allocation-free strings.SplitN.
func SplitN(s, sep string, f []string) int {
	n := len(f)
	i := 0
	for ; i < n-1 && s != ""; i++ {
		fieldEnd := strings.Index(s, sep)
		if fieldEnd < 0 {
			f[i] = s
			return i + 1
		}
		f[i] = s[:fieldEnd]
		s = s[fieldEnd+len(sep):]
	}

	f[i] = s
	return i + 1
}

// ByteSlice2String converts a byte slice into a string without a heap
// allocation. The returned string shares the slice's backing array: the
// caller must not modify the slice, or keep the string past the lifetime
// of the data (e.g. past the next bufio.Scanner.Scan call).
func ByteSlice2String(b []byte) string {
	return unsafe.String(unsafe.SliceData(b), len(b))
}
