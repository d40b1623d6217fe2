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

package lock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"husako/pkg/core/config"
)

func TestLoadMissingFileTreatsAsNothingLocked(t *testing.T) {
	root := t.TempDir()
	l, err := Load(root)
	require.NoError(t, err)
	assert.Empty(t, l.HusakoVersion)
	assert.Empty(t, l.Resources)
}

func TestSaveAndLoadRoundTrips(t *testing.T) {
	root := t.TempDir()
	l := Empty("0.1.0")
	l.Resources["k8s-1.31"] = ResourceLock{
		Source:      config.ResourceRelease,
		Version:     "1.31",
		GeneratedAt: "2026-07-30T00:00:00Z",
	}

	require.NoError(t, Save(root, l))
	loaded, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.FormatVersion)
	assert.Equal(t, "0.1.0", loaded.HusakoVersion)
	assert.Equal(t, "1.31", loaded.Resources["k8s-1.31"].Version)
}

func TestLoadSurfacesParseErrors(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte("not valid toml [[["), 0o644))
	_, err := Load(root)
	assert.Error(t, err)
}

func TestShouldSkipK8sRequiresExactMatch(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".husako", "types", "k8s"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".husako", "types", "k8s", "v1.d.ts"), []byte("x"), 0o644))

	l := Empty("0.1.0")
	l.Resources["core"] = ResourceLock{Source: config.ResourceRelease, Version: "1.31"}

	resources := map[string]config.ResourceSource{
		"core": {Source: config.ResourceRelease, Version: "1.31"},
	}
	assert.True(t, l.ShouldSkipK8s(root, "0.1.0", resources))

	// Version bump invalidates the skip.
	resources["core"] = config.ResourceSource{Source: config.ResourceRelease, Version: "1.32"}
	assert.False(t, l.ShouldSkipK8s(root, "0.1.0", resources))

	// Binary version mismatch invalidates the skip even with matching resources.
	resources["core"] = config.ResourceSource{Source: config.ResourceRelease, Version: "1.31"}
	assert.False(t, l.ShouldSkipK8s(root, "0.2.0", resources))

	// A resource set size mismatch invalidates the skip.
	resources["extra"] = config.ResourceSource{Source: config.ResourceRelease, Version: "1.0"}
	assert.False(t, l.ShouldSkipK8s(root, "0.1.0", resources))
}

func TestShouldSkipK8sFalseWhenTypesDirMissing(t *testing.T) {
	root := t.TempDir()
	l := Empty("0.1.0")
	l.Resources["core"] = ResourceLock{Source: config.ResourceRelease, Version: "1.31"}
	resources := map[string]config.ResourceSource{
		"core": {Source: config.ResourceRelease, Version: "1.31"},
	}
	assert.False(t, l.ShouldSkipK8s(root, "0.1.0", resources))
}

func TestShouldSkipK8sFileSourceChecksContentHash(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".husako", "types", "k8s"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".husako", "types", "k8s", "v1.d.ts"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "crd.yaml"), []byte("kind: CRD"), 0o644))

	hash, err := contentHash(filepath.Join(root, "crd.yaml"))
	require.NoError(t, err)

	l := Empty("0.1.0")
	l.Resources["local"] = ResourceLock{Source: config.ResourceFile, Path: "crd.yaml", ContentHash: hash}
	resources := map[string]config.ResourceSource{
		"local": {Source: config.ResourceFile, Path: "crd.yaml"},
	}
	assert.True(t, l.ShouldSkipK8s(root, "0.1.0", resources))

	require.NoError(t, os.WriteFile(filepath.Join(root, "crd.yaml"), []byte("kind: CRD2"), 0o644))
	assert.False(t, l.ShouldSkipK8s(root, "0.1.0", resources))
}

func TestShouldSkipChartIndependentOfOthers(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".husako", "types", "helm"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".husako", "types", "helm", "nginx.d.ts"), []byte("x"), 0o644))

	l := Empty("0.1.0")
	l.Charts["nginx"] = ChartLock{Source: config.ChartRegistry, Version: "1.2.3"}

	assert.True(t, l.ShouldSkipChart(root, "nginx", config.ChartSource{Source: config.ChartRegistry, Version: "1.2.3"}))
	assert.False(t, l.ShouldSkipChart(root, "nginx", config.ChartSource{Source: config.ChartRegistry, Version: "1.3.0"}))
	assert.False(t, l.ShouldSkipChart(root, "redis", config.ChartSource{Source: config.ChartRegistry, Version: "1.0.0"}))
}

func TestShouldSkipPluginChecksInstalledVersion(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".husako", "plugins", "myplugin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".husako", "plugins", "myplugin", "plugin.toml"), []byte("version=\"1.0\""), 0o644))

	l := Empty("0.1.0")
	l.Plugins["myplugin"] = PluginLock{Source: config.PluginGit, URL: "https://example.com/p.git", PluginVersion: "1.0"}

	cfg := config.PluginSource{Source: config.PluginGit, URL: "https://example.com/p.git"}
	assert.True(t, l.ShouldSkipPlugin(root, "myplugin", cfg, filepath.Join(".husako", "plugins", "myplugin"), "1.0"))
	assert.False(t, l.ShouldSkipPlugin(root, "myplugin", cfg, filepath.Join(".husako", "plugins", "myplugin"), "1.1"))
}

func TestPreserveResourcesForSkippedK8s(t *testing.T) {
	old := Empty("0.1.0")
	old.Resources["core"] = ResourceLock{Source: config.ResourceRelease, Version: "1.31"}

	fresh := Empty("0.1.0")
	old.PreserveResourcesForSkippedK8s(fresh)

	assert.Equal(t, "1.31", fresh.Resources["core"].Version)
}

func TestSortedNamesOrdersDeterministically(t *testing.T) {
	m := map[string]int{"zebra": 1, "apple": 2, "mango": 3}
	assert.Equal(t, []string{"apple", "mango", "zebra"}, SortedNames(m))
}
