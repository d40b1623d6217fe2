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
	"path/filepath"

	"husako/pkg/core/config"
)

// ShouldSkipK8s reports whether the K8s resource set in cfg is already
// up to date with l, per spec §4.12: the lock must exist (an Empty lock
// from a missing file never matches), husako_version must match the
// running binary, .husako/types/k8s/ must exist and be non-empty, the
// resource name set must be identical, and every resource must pass its
// per-kind identity check. Any mismatch regenerates all K8s types.
func (l *Lock) ShouldSkipK8s(root, currentVersion string, resources map[string]config.ResourceSource) bool {
	if l.HusakoVersion == "" || l.HusakoVersion != currentVersion {
		return false
	}
	if !dirNonEmpty(filepath.Join(root, ".husako", "types", "k8s")) {
		return false
	}
	if len(l.Resources) != len(resources) {
		return false
	}
	for name, cfg := range resources {
		locked, ok := l.Resources[name]
		if !ok {
			return false
		}
		if !resourceMatches(locked, cfg, root) {
			return false
		}
	}
	return true
}

// ShouldSkipChart reports whether the named chart is up to date, per
// spec §4.12. Charts are independent: one chart's drift never forces
// regeneration of another.
func (l *Lock) ShouldSkipChart(root, name string, cfg config.ChartSource) bool {
	locked, ok := l.Charts[name]
	if !ok {
		return false
	}
	if !chartMatches(locked, cfg, root) {
		return false
	}
	return fileExists(filepath.Join(root, ".husako", "types", "helm", name+".d.ts"))
}

// ShouldSkipPlugin reports whether the named plugin is already installed
// and up to date, per spec §4.12: identity match, the installed
// directory present, and the on-disk plugin.toml version equal to the
// locked plugin_version. installedVersion is read by the caller from
// <plugin-dir>/plugin.toml since pkg/lock has no opinion on plugin
// directory layout.
func (l *Lock) ShouldSkipPlugin(root, name string, cfg config.PluginSource, installDir, installedVersion string) bool {
	locked, ok := l.Plugins[name]
	if !ok {
		return false
	}
	if !pluginMatches(locked, cfg) {
		return false
	}
	if !dirNonEmpty(filepath.Join(root, installDir)) {
		return false
	}
	return locked.PluginVersion == installedVersion
}

// PreserveResourcesForSkippedK8s copies every resource entry from l
// verbatim into the lock under construction, for the `--skip-k8s`
// interaction in spec §4.12: preserving the old entries lets a later,
// non-skipped run still recognize them as unchanged instead of treating
// every resource as newly discovered.
func (l *Lock) PreserveResourcesForSkippedK8s(into *Lock) {
	for name, entry := range l.Resources {
		into.Resources[name] = entry
	}
}
