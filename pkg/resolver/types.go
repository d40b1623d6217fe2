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

// Package resolver implements husako's Source Resolver (spec §4.1): it
// turns the dependency declarations in husako.toml's [resources],
// [charts], and [plugins] tables into schema bundles, chart value
// schemas, and installed plugin trees, fetching from upstream sources
// or the on-disk cache as each source's strategy dictates.
//
// Every ResolveAll/ResolveAllCharts/InstallPlugins call fans its
// dependency entries out in parallel (via golang.org/x/sync/errgroup,
// one goroutine per entry; the number of entries in flight at once is
// not limited) and joins; a single entry's failure aborts the whole
// call (spec §5).
package resolver

import (
	"fmt"

	"husako/pkg/core/config"
	"husako/pkg/schema"
)

// ResourceDependency is one named [resources.*] entry from husako.toml.
type ResourceDependency struct {
	Name   string
	Source config.ResourceSource
}

// ChartDependency is one named [charts.*] entry.
type ChartDependency struct {
	Name   string
	Source config.ChartSource
}

// PluginDependency is one named [plugins.*] entry.
type PluginDependency struct {
	Name   string
	Source config.PluginSource
}

// InstalledPlugin describes a plugin after install_plugins has placed
// its tree under <root>/.husako/plugins/<name>/ and parsed its
// plugin.toml manifest.
type InstalledPlugin struct {
	Name      string
	Dir       string
	Version   string
	Resources map[string]config.ResourceSource
	Charts    map[string]config.ChartSource
	Modules   map[string]string
}

// pluginManifest is the shape of plugin.toml.
type pluginManifest struct {
	Version   string                            `toml:"version"`
	Resources map[string]config.ResourceSource `toml:"resources"`
	Charts    map[string]config.ChartSource    `toml:"charts"`
	Modules   map[string]string                `toml:"modules"`
}

// discoveryKey builds the normalized "api/v1" / "apis/<group>/<version>"
// path the spec uses to key merged resource schema bundles.
func discoveryKey(group, version string) string {
	if group == "" || group == "core" {
		return fmt.Sprintf("api/%s", version)
	}
	return fmt.Sprintf("apis/%s/%s", group, version)
}

// mergeBundles applies the "later source wins" rule from spec §5: for
// each DiscoveryKey present in more than one map, overlay overrides
// base key-by-key (schema name).
func mergeBundles(base, overlay map[string]schema.Bundle) map[string]schema.Bundle {
	out := make(map[string]schema.Bundle, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		existing, ok := out[k]
		if !ok {
			out[k] = v
			continue
		}
		merged := make(schema.Bundle, len(existing)+len(v))
		for name, s := range existing {
			merged[name] = s
		}
		for name, s := range v {
			merged[name] = s
		}
		out[k] = merged
	}
	return out
}
