/*
Copyright (C) 2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package main

import (
	"os"
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launix-de/cclosure"
)

func TestHeaderMatchesExports(t *testing.T) {
	header, err := os.ReadFile("cclosure.h")
	require.NoError(t, err)
	src, err := os.ReadFile("main.go")
	require.NoError(t, err)

	exports := regexp.MustCompile(`(?m)^//export (\w+)$`).FindAllSubmatch(src, -1)
	require.NotEmpty(t, exports)
	for _, m := range exports {
		assert.Regexp(t, `\b`+string(m[1])+`\(`, string(header))
	}

	consts := map[string]int{}
	for _, m := range regexp.MustCompile(`#define CCLOSURE_THREAD_(\w+)\s+(\d+)`).FindAllSubmatch(header, -1) {
		v, err := strconv.Atoi(string(m[2]))
		require.NoError(t, err)
		consts[string(m[1])] = v
	}
	assert.Equal(t, map[string]int{"NONE": int(cclosure.ThreadNone), "NATIVE": int(cclosure.ThreadNative)}, consts)
	// there is no constant for the build's own thread type, only the call
	assert.NotContains(t, string(header), "#define CCLOSURE_THREAD_TYPE")
	assert.Contains(t, string(header), "call CClosureThreadType()")
	assert.Equal(t, int(cclosure.Threading), int(CClosureThreadType()))
}
