// Copyright The symtrace Authors
// SPDX-License-Identifier: Apache-2.0

package proc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectLanguageIn(t *testing.T) {
	libcOnlyMaps := `7f2000000000-7f2000180000 r-xp 00000000 fd:01 43           /usr/lib/libc-2.31.so
7f2000180000-7f2000190000 r-xp 00000000 fd:01 44                         /usr/lib/libm.so.6
`
	pythonMaps := `7f2000000000-7f2000180000 r-xp 00000000 fd:01 43           /usr/lib/libc.so.6
7f3000000000-7f3000400000 r-xp 00000000 fd:01 45                         /usr/lib/libpython3.11.so.1.0
`
	bareMaps := `7f2000000000-7f2000180000 r-xp 00000000 fd:01 43            /opt/app/libapp.a.so
`

	tests := map[string]struct {
		exe      string
		maps     string
		expected string
	}{
		"exe path wins":        {exe: "/usr/bin/java", maps: libcOnlyMaps, expected: "java"},
		"interpreter library":  {exe: "/opt/app/server", maps: pythonMaps, expected: "python"},
		"libc only means c":    {exe: "/opt/app/server", maps: libcOnlyMaps, expected: "c"},
		"no clue at all":       {exe: "/opt/app/server", maps: bareMaps, expected: ""},
		"no maps, node in exe": {exe: "/usr/local/bin/node", maps: "", expected: "node"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			lang := detectLanguageIn(tc.exe, strings.NewReader(tc.maps))
			assert.Equal(t, tc.expected, lang)
		})
	}
}

func TestDetectLanguageNoMaps(t *testing.T) {
	assert.Equal(t, "ruby", detectLanguageIn("/usr/bin/ruby", nil))
	assert.Equal(t, "", detectLanguageIn("/usr/bin/true", nil))
}
