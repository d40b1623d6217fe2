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

package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"husako/pkg/core/config"
	"husako/pkg/errkind"
	"husako/pkg/lock"
	"husako/pkg/orchestrator"
	"husako/pkg/resolver"
)

var addFlags struct {
	kind    string // "resource", "chart", "plugin"
	source  string
	version string
	repo    string
	chart   string
	pkg     string
	tag     string
	path    string
	ref     string
	url     string
}

func newAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a resource/chart/plugin dependency to husako.toml and regenerate",
		Args:  cobra.ExactArgs(1),
		RunE:  runAdd,
	}
	cmd.Flags().StringVar(&addFlags.kind, "kind", "resource", "dependency kind: resource, chart, or plugin")
	cmd.Flags().StringVar(&addFlags.source, "source", "", "source strategy (release/git/file/cluster for resources; registry/artifacthub/git/file/oci for charts; git/path for plugins)")
	cmd.Flags().StringVar(&addFlags.version, "version", "", "pinned version")
	cmd.Flags().StringVar(&addFlags.repo, "repo", "", "git remote or registry index URL")
	cmd.Flags().StringVar(&addFlags.chart, "chart", "", "chart name within a registry index")
	cmd.Flags().StringVar(&addFlags.pkg, "package", "", "ArtifactHub package slug")
	cmd.Flags().StringVar(&addFlags.tag, "tag", "", "git tag")
	cmd.Flags().StringVar(&addFlags.path, "path", "", "file path, git subdirectory, or plugin directory")
	cmd.Flags().StringVar(&addFlags.ref, "reference", "", "OCI reference")
	cmd.Flags().StringVar(&addFlags.url, "url", "", "plugin git remote URL")
	return cmd
}

func newRemoveCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a dependency from husako.toml and regenerate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd, args[0], kind)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "resource", "dependency kind: resource, chart, or plugin")
	return cmd
}

func runAdd(cmd *cobra.Command, args []string) error {
	name := args[0]
	root, project, err := loadProject()
	if err != nil {
		return err
	}

	switch addFlags.kind {
	case "resource":
		project.Resources[name] = config.ResourceSource{
			Source:  config.ResourceSourceKind(addFlags.source),
			Version: addFlags.version,
			Repo:    addFlags.repo,
			Tag:     addFlags.tag,
			Path:    addFlags.path,
		}
	case "chart":
		project.Charts[name] = config.ChartSource{
			Source:    config.ChartSourceKind(addFlags.source),
			Repo:      addFlags.repo,
			Chart:     addFlags.chart,
			Version:   addFlags.version,
			Package:   addFlags.pkg,
			Tag:       addFlags.tag,
			Path:      addFlags.path,
			Reference: addFlags.ref,
		}
	case "plugin":
		project.Plugins[name] = config.PluginSource{
			Source: config.PluginSourceKind(addFlags.source),
			URL:    addFlags.url,
			Path:   addFlags.path,
		}
	default:
		return errkind.New(errkind.Config, addFlags.kind, "unknown --kind, expected resource, chart, or plugin")
	}

	if err := config.Save(root, project); err != nil {
		return err
	}
	return regenerateAfterEdit(cmd, root, project)
}

func runRemove(cmd *cobra.Command, name, kind string) error {
	root, project, err := loadProject()
	if err != nil {
		return err
	}

	switch kind {
	case "resource":
		delete(project.Resources, name)
	case "chart":
		delete(project.Charts, name)
	case "plugin":
		delete(project.Plugins, name)
	default:
		return errkind.New(errkind.Config, kind, "unknown --kind, expected resource, chart, or plugin")
	}

	if err := config.Save(root, project); err != nil {
		return err
	}
	return regenerateAfterEdit(cmd, root, project)
}

// regenerateAfterEdit implements the "then auto-run generate" half of
// `add`/`remove` (spec.md §3).
func regenerateAfterEdit(cmd *cobra.Command, root string, project *config.Project) error {
	result, err := orchestrator.Generate(cmd.Context(), project, orchestrator.Options{
		Root:          root,
		HusakoVersion: Version,
		HTTPClient:    sharedHTTPClient(),
	})
	if err != nil {
		return err
	}
	logGenerateResult(result)
	return nil
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List resources, charts, and plugins declared in husako.toml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, project, err := loadProject()
			if err != nil {
				return err
			}
			printDepTable("resources", resourceNames(project))
			printDepTable("charts", chartNames(project))
			printDepTable("plugins", pluginNames(project))
			return nil
		},
	}
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <name>",
		Short: "Print one dependency's declared source and lock state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			root, project, err := loadProject()
			if err != nil {
				return err
			}
			l, err := lock.Load(root)
			if err != nil {
				return err
			}
			return printInfo(name, project, l)
		},
	}
}

func printDepTable(label string, names []string) {
	fmt.Printf("%s:\n", label)
	if len(names) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, n := range names {
		fmt.Printf("  %s\n", n)
	}
}

func resourceNames(p *config.Project) []string { return sortedKeys(p.Resources) }
func chartNames(p *config.Project) []string    { return sortedKeys(p.Charts) }
func pluginNames(p *config.Project) []string   { return sortedKeys(p.Plugins) }

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func printInfo(name string, project *config.Project, l *lock.Lock) error {
	if src, ok := project.Resources[name]; ok {
		fmt.Printf("resource %s: source=%s version=%s repo=%s tag=%s path=%s\n", name, src.Source, src.Version, src.Repo, src.Tag, src.Path)
		if locked, ok := l.Resources[name]; ok {
			fmt.Printf("  locked: version=%s content_hash=%s\n", locked.Version, locked.ContentHash)
		} else {
			fmt.Println("  not locked")
		}
		return nil
	}
	if src, ok := project.Charts[name]; ok {
		fmt.Printf("chart %s: source=%s repo=%s chart=%s version=%s package=%s\n", name, src.Source, src.Repo, src.Chart, src.Version, src.Package)
		if locked, ok := l.Charts[name]; ok {
			fmt.Printf("  locked: version=%s content_hash=%s\n", locked.Version, locked.ContentHash)
		} else {
			fmt.Println("  not locked")
		}
		return nil
	}
	if src, ok := project.Plugins[name]; ok {
		fmt.Printf("plugin %s: source=%s url=%s path=%s\n", name, src.Source, src.URL, src.Path)
		if locked, ok := l.Plugins[name]; ok {
			fmt.Printf("  locked: plugin_version=%s\n", locked.PluginVersion)
		} else {
			fmt.Println("  not locked")
		}
		return nil
	}
	return errkind.New(errkind.Config, name, "no such resource, chart, or plugin declared in husako.toml")
}

func newOutdatedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "outdated",
		Short: "Report pinned vs. latest available version for each dependency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, project, err := loadProject()
			if err != nil {
				return err
			}
			return reportOutdated(cmd, project)
		},
	}
}

func newUpdateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Bump one (or, with no --name, every) dependency to its latest resolvable version, then regenerate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, project, err := loadProject()
			if err != nil {
				return err
			}
			if err := updateDependencies(cmd, project, name); err != nil {
				return err
			}
			if err := config.Save(root, project); err != nil {
				return err
			}
			return regenerateAfterEdit(cmd, root, project)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "update only this dependency (default: all)")
	return cmd
}

func reportOutdated(cmd *cobra.Command, project *config.Project) error {
	client := sharedHTTPClient()
	for _, name := range resourceNames(project) {
		src := project.Resources[name]
		if src.Source != config.ResourceRelease {
			continue
		}
		latest, err := resolver.LatestK8sRelease(cmd.Context(), client)
		if err != nil {
			fmt.Printf("resource %s: could not check latest version: %v\n", name, err)
			continue
		}
		fmt.Printf("resource %s: pinned=%s latest=%s\n", name, src.Version, latest)
	}
	for _, name := range chartNames(project) {
		src := project.Charts[name]
		if src.Source != config.ChartRegistry {
			fmt.Printf("chart %s: version check unsupported for source %q\n", name, src.Source)
			continue
		}
		latest, err := resolver.LatestChartRegistryVersion(cmd.Context(), client, src.Repo, src.Chart)
		if err != nil {
			fmt.Printf("chart %s: could not check latest version: %v\n", name, err)
			continue
		}
		fmt.Printf("chart %s: pinned=%s latest=%s\n", name, src.Version, latest)
	}
	return nil
}

// updateDependencies bumps Release resources and Registry charts
// (the two source kinds that expose a discoverable "latest" version)
// to their latest resolvable version; other source kinds are pinned by
// tag/path and have no "latest" to move to, so they are left as-is.
func updateDependencies(cmd *cobra.Command, project *config.Project, only string) error {
	client := sharedHTTPClient()
	for _, name := range resourceNames(project) {
		if only != "" && name != only {
			continue
		}
		src := project.Resources[name]
		if src.Source != config.ResourceRelease {
			continue
		}
		latest, err := resolver.LatestK8sRelease(cmd.Context(), client)
		if err != nil {
			return err
		}
		src.Version = latest
		project.Resources[name] = src
	}
	for _, name := range chartNames(project) {
		if only != "" && name != only {
			continue
		}
		src := project.Charts[name]
		if src.Source != config.ChartRegistry {
			continue
		}
		latest, err := resolver.LatestChartRegistryVersion(cmd.Context(), client, src.Repo, src.Chart)
		if err != nil {
			return err
		}
		src.Version = latest
		project.Charts[name] = src
	}
	return nil
}
