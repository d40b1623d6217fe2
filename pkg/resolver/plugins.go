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

package resolver

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	git "github.com/go-git/go-git/v5"

	"husako/pkg/core/config"
	"husako/pkg/errkind"
)

// installPlugin implements both plugin source strategies (spec §4.1):
// Git (full or sparse clone, VCS metadata stripped) and Path (recursive
// copy). Both land the plugin tree at
// <root>/.husako/plugins/<name>/, then load and parse its plugin.toml.
func installPlugin(ctx context.Context, root string, dep PluginDependency) (InstalledPlugin, error) {
	dest := filepath.Join(root, ".husako", "plugins", dep.Name)
	if err := os.RemoveAll(dest); err != nil {
		return InstalledPlugin{}, errkind.Wrap(errkind.Fetch, dest, "clearing previous plugin install", err)
	}

	switch dep.Source.Source {
	case config.PluginGit:
		if err := installPluginGit(ctx, dep.Source.URL, dep.Source.Path, dest); err != nil {
			return InstalledPlugin{}, err
		}
	case config.PluginPath:
		if err := copyDir(dep.Source.Path, dest); err != nil {
			return InstalledPlugin{}, err
		}
	default:
		return InstalledPlugin{}, errkind.New(errkind.Config, dep.Name, fmt.Sprintf("unknown plugin source %q", dep.Source.Source))
	}

	manifest, err := loadPluginManifest(dest)
	if err != nil {
		return InstalledPlugin{}, err
	}
	return InstalledPlugin{
		Name:      dep.Name,
		Dir:       dest,
		Version:   manifest.Version,
		Resources: namespacePrefix(dep.Name, manifest.Resources),
		Charts:    namespaceChartPrefix(dep.Name, manifest.Charts),
		Modules:   manifest.Modules,
	}, nil
}

// ReadInstalledPlugin loads an already-installed plugin's manifest from
// disk without reinstalling it, for the orchestrator's incremental path
// (spec §4.11/§4.12: a plugin the lock says is up to date is neither
// re-cloned nor re-copied, but its declared resources/charts/modules
// still need to be merged into the current generate).
func ReadInstalledPlugin(root, name string) (InstalledPlugin, error) {
	dest := filepath.Join(root, ".husako", "plugins", name)
	manifest, err := loadPluginManifest(dest)
	if err != nil {
		return InstalledPlugin{}, err
	}
	return InstalledPlugin{
		Name:      name,
		Dir:       dest,
		Version:   manifest.Version,
		Resources: namespacePrefix(name, manifest.Resources),
		Charts:    namespaceChartPrefix(name, manifest.Charts),
		Modules:   manifest.Modules,
	}, nil
}

// ListInstalledPlugins reads every plugin manifest already installed
// under <root>/.husako/plugins/, for callers (the render pipeline) that
// need the full set of plugin-provided module specifiers without
// re-resolving husako.toml's [plugins] table.
func ListInstalledPlugins(root string) ([]InstalledPlugin, error) {
	dir := filepath.Join(root, ".husako", "plugins")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errkind.Wrap(errkind.Fetch, dir, "listing installed plugins", err)
	}
	var out []InstalledPlugin
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		plugin, err := ReadInstalledPlugin(root, e.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, plugin)
	}
	return out, nil
}

func installPluginGit(ctx context.Context, url, sparsePath, dest string) error {
	opts := &git.CloneOptions{URL: url, SingleBranch: true, Depth: 1}
	if sparsePath != "" {
		opts.Depth = 1
	}
	if _, err := git.PlainCloneContext(ctx, dest, false, opts); err != nil {
		return errkind.Wrap(errkind.Fetch, url, "cloning plugin repository", err)
	}
	if sparsePath != "" {
		if err := narrowToSubdirectory(dest, sparsePath); err != nil {
			return err
		}
	}
	if err := os.RemoveAll(filepath.Join(dest, ".git")); err != nil {
		return errkind.Wrap(errkind.Fetch, dest, "stripping VCS metadata", err)
	}
	return nil
}

// narrowToSubdirectory moves <dest>/<sub>'s contents up to <dest>,
// approximating a sparse checkout after a full shallow clone (go-git
// has no native sparse-checkout support).
func narrowToSubdirectory(dest, sub string) error {
	src := filepath.Join(dest, sub)
	tmp := dest + ".narrow"
	if err := os.Rename(src, tmp); err != nil {
		return errkind.Wrap(errkind.Fetch, src, "narrowing plugin checkout to subdirectory", err)
	}
	if err := os.RemoveAll(dest); err != nil {
		return errkind.Wrap(errkind.Fetch, dest, "clearing full checkout", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return errkind.Wrap(errkind.Fetch, tmp, "moving narrowed checkout into place", err)
	}
	return nil
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errkind.Wrap(errkind.Fetch, src, "opening source file", err)
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errkind.Wrap(errkind.Fetch, filepath.Dir(dst), "creating destination directory", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return errkind.Wrap(errkind.Fetch, dst, "creating destination file", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return errkind.Wrap(errkind.Fetch, dst, "copying file contents", err)
	}
	return nil
}

func loadPluginManifest(dir string) (pluginManifest, error) {
	path := filepath.Join(dir, "plugin.toml")
	var m pluginManifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return pluginManifest{}, errkind.Wrap(errkind.Config, path, "parsing plugin.toml", err)
	}
	return m, nil
}

// namespacePrefix/namespaceChartPrefix rewrite a plugin's declared
// resource/chart keys to "<plugin>:<name>" so they cannot collide with
// user-declared or other plugins' entries (spec §4.1).
func namespacePrefix(plugin string, m map[string]config.ResourceSource) map[string]config.ResourceSource {
	out := make(map[string]config.ResourceSource, len(m))
	for name, src := range m {
		out[fmt.Sprintf("%s:%s", plugin, name)] = src
	}
	return out
}

func namespaceChartPrefix(plugin string, m map[string]config.ChartSource) map[string]config.ChartSource {
	out := make(map[string]config.ChartSource, len(m))
	for name, src := range m {
		out[fmt.Sprintf("%s:%s", plugin, name)] = src
	}
	return out
}
