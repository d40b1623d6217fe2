// Copyright 2025 Philipp Hossner
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cachekey

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashIsSixteenLowercaseHex(t *testing.T) {
	for _, s := range []string{"", "a", "apis/apps/v1", "https://github.com/cert-manager/cert-manager"} {
		h := Hash(s)
		assert.Len(t, h, 16)
		for _, c := range h {
			assert.True(t, (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f'), "char %q not lowercase hex", c)
		}
	}
}

func TestHashIsPure(t *testing.T) {
	s := "apis/cert-manager.io/v1"
	assert.Equal(t, Hash(s), Hash(s))
}

func TestHashKnownVector(t *testing.T) {
	// h := 5381; h := h*33 + 'a' = 5381*33+97 = 177670 = 0x2b606
	assert.Equal(t, "000000000002b606", Hash("a"))
}

func TestHashDirOrderingAndContent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("B"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("A"), 0o644))

	h1, err := HashDir(dir)
	require.NoError(t, err)

	dir2 := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir2, "a.txt"), []byte("A"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir2, "b.txt"), []byte("B"), 0o644))

	h2, err := HashDir(dir2)
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "hash must not depend on filesystem write order")
}
