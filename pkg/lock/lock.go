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

// Package lock implements husako.lock, the persisted fingerprint of what
// `generate` last produced and from which source identities, letting a
// subsequent generate skip work whose inputs have not changed.
//
// The on-disk shape and the per-kind identity checks mirror
// pkg/core/config's Project/ResourceSource/ChartSource tagged unions:
// the lock stores exactly the fields each source kind needs to detect
// drift, nothing more.
package lock

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"

	"husako/pkg/cachekey"
	"husako/pkg/core/config"
	"husako/pkg/errkind"
)

// FileName is the fixed name of the lock file.
const FileName = "husako.lock"

// FormatVersion is the only lock format this build understands.
const FormatVersion = 1

// ResourceLock records the identity of one [resources.*] entry as of the
// last successful (non-skipped) generate.
type ResourceLock struct {
	Source      config.ResourceSourceKind `toml:"source"`
	Version     string                    `toml:"version,omitempty"`
	Repo        string                    `toml:"repo,omitempty"`
	Tag         string                    `toml:"tag,omitempty"`
	Path        string                    `toml:"path,omitempty"`
	ContentHash string                    `toml:"content_hash,omitempty"`
	GeneratedAt string                    `toml:"generated_at"`
}

// ChartLock records the identity of one [charts.*] entry.
type ChartLock struct {
	Source      config.ChartSourceKind `toml:"source"`
	Repo        string                 `toml:"repo,omitempty"`
	Chart       string                 `toml:"chart,omitempty"`
	Version     string                 `toml:"version,omitempty"`
	Package     string                 `toml:"package,omitempty"`
	Tag         string                 `toml:"tag,omitempty"`
	Path        string                 `toml:"path,omitempty"`
	Reference   string                 `toml:"reference,omitempty"`
	ContentHash string                 `toml:"content_hash,omitempty"`
	GeneratedAt string                 `toml:"generated_at"`
}

// PluginLock records the identity of one [plugins.*] entry, plus the
// plugin.toml version string read from the installed plugin directory at
// install time.
type PluginLock struct {
	Source        config.PluginSourceKind `toml:"source"`
	URL           string                  `toml:"url,omitempty"`
	Path          string                  `toml:"path,omitempty"`
	ContentHash   string                  `toml:"content_hash,omitempty"`
	PluginVersion string                  `toml:"plugin_version,omitempty"`
	GeneratedAt   string                  `toml:"generated_at"`
}

// Lock is the root structure of husako.lock.
type Lock struct {
	FormatVersion int                     `toml:"format_version"`
	HusakoVersion string                  `toml:"husako_version"`
	Resources     map[string]ResourceLock `toml:"resources,omitempty"`
	Charts        map[string]ChartLock    `toml:"charts,omitempty"`
	Plugins       map[string]PluginLock   `toml:"plugins,omitempty"`
}

// Empty returns a Lock with no recorded entries, for the "nothing
// locked" state (missing lock file, or first generate).
func Empty(husakoVersion string) *Lock {
	return &Lock{
		FormatVersion: FormatVersion,
		HusakoVersion: husakoVersion,
		Resources:     map[string]ResourceLock{},
		Charts:        map[string]ChartLock{},
		Plugins:       map[string]PluginLock{},
	}
}

// Load reads husako.lock from root. A missing file is not an error: it
// is treated as "nothing locked" per spec, and Empty("") is returned.
// Parse errors are surfaced.
func Load(root string) (*Lock, error) {
	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Empty(""), nil
		}
		return nil, errkind.Wrap(errkind.Config, path, "failed to read lock file", err)
	}
	var l Lock
	if _, err := toml.Decode(string(data), &l); err != nil {
		return nil, errkind.Wrap(errkind.Config, path, "failed to parse lock file", err)
	}
	if l.Resources == nil {
		l.Resources = map[string]ResourceLock{}
	}
	if l.Charts == nil {
		l.Charts = map[string]ChartLock{}
	}
	if l.Plugins == nil {
		l.Plugins = map[string]PluginLock{}
	}
	return &l, nil
}

// Encode renders l as TOML bytes. BurntSushi/toml sorts map keys during
// encoding, satisfying the "maps are serialized in sorted key order"
// requirement without the caller needing to pre-sort.
func Encode(l *Lock) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(l); err != nil {
		return nil, errkind.Wrap(errkind.Config, FileName, "failed to encode lock file", err)
	}
	return buf.Bytes(), nil
}

// Save writes l to <root>/husako.lock. Per spec, a lock write failure is
// non-fatal to the caller (generate reports a warning and still
// succeeds); callers should log the returned error rather than abort on
// it.
func Save(root string, l *Lock) error {
	data, err := Encode(l)
	if err != nil {
		return err
	}
	path := filepath.Join(root, FileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errkind.Wrap(errkind.Config, path, "failed to write lock file", err)
	}
	return nil
}

// SortedNames returns the keys of m in sorted order. Used when building
// a fresh Lock from a Project so iteration order is deterministic before
// the TOML encoder's own key sort ever runs.
func SortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resourceMatches reports whether the locked entry's identity fields
// still match cfg, per the per-kind identity check in spec §4.12:
// Release compares version; Git compares (repo, tag, path); File
// compares (path, content_hash); Cluster is always considered a match
// (it has no stable offline identity, so its presence/absence in the
// config is what drives regeneration, not a content check here).
func resourceMatches(locked ResourceLock, cfg config.ResourceSource, root string) bool {
	if locked.Source != cfg.Source {
		return false
	}
	switch cfg.Source {
	case config.ResourceRelease:
		return locked.Version == cfg.Version
	case config.ResourceGit:
		return locked.Repo == cfg.Repo && locked.Tag == cfg.Tag && locked.Path == cfg.Path
	case config.ResourceFile:
		if locked.Path != cfg.Path {
			return false
		}
		hash, err := contentHash(filepath.Join(root, cfg.Path))
		if err != nil {
			return false
		}
		return locked.ContentHash == hash
	case config.ResourceCluster:
		return true
	default:
		return false
	}
}

// chartMatches is the §4.12 identity check for a single chart: versions
// match for version-pinned kinds, (path, content_hash) for File.
func chartMatches(locked ChartLock, cfg config.ChartSource, root string) bool {
	if locked.Source != cfg.Source {
		return false
	}
	switch cfg.Source {
	case config.ChartRegistry, config.ChartArtifactHub, config.ChartOci:
		return locked.Version == cfg.Version
	case config.ChartGit:
		return locked.Repo == cfg.Repo && locked.Tag == cfg.Tag && locked.Path == cfg.Path
	case config.ChartFile:
		if locked.Path != cfg.Path {
			return false
		}
		hash, err := contentHash(filepath.Join(root, cfg.Path))
		if err != nil {
			return false
		}
		return locked.ContentHash == hash
	default:
		return false
	}
}

// pluginMatches is the §4.12 identity check for a single plugin source
// (not yet comparing the installed plugin.toml version; see
// ShouldSkipPlugin for that additional check).
func pluginMatches(locked PluginLock, cfg config.PluginSource) bool {
	if locked.Source != cfg.Source {
		return false
	}
	switch cfg.Source {
	case config.PluginGit:
		return locked.URL == cfg.URL && locked.Path == cfg.Path
	case config.PluginPath:
		return locked.Path == cfg.Path
	default:
		return false
	}
}

// contentHash hashes a single file or, if path is a directory, the
// directory tree, via pkg/cachekey's shared DJB2 algorithm.
func contentHash(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return cachekey.HashDir(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return cachekey.HashBytes(data), nil
}

// dirNonEmpty reports whether path exists and contains at least one entry.
func dirNonEmpty(path string) bool {
	entries, err := os.ReadDir(path)
	return err == nil && len(entries) > 0
}

// fileExists reports whether path exists and is a regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
