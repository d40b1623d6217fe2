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

// Package orchestrator sequences husako's `generate` pipeline (spec
// §4.11): install plugins, merge their namespaced resources/charts,
// consult the lock for skip decisions, run the Source Resolver and
// Classifier/Emitter for whatever isn't skipped, write the schema
// store, the builtin declaration files, and tsconfig.json, then persist
// a fresh lock.
package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"

	"husako/pkg/cachekey"
	"husako/pkg/codegen"
	"husako/pkg/core/config"
	"husako/pkg/errkind"
	"husako/pkg/lock"
	"husako/pkg/resolver"
	hschema "husako/pkg/schema"
	"husako/pkg/schemastore"
	"husako/pkg/sdk"
)

// Options configures one `generate` invocation.
type Options struct {
	Root          string
	HusakoVersion string

	// SkipK8s forces all K8s resource generation to be skipped,
	// preserving the existing lock entries verbatim (spec §4.11's
	// highest-priority skip source).
	SkipK8s bool

	// NoIncremental bypasses every lock-file skip decision but still
	// regenerates (it does not imply SkipK8s).
	NoIncremental bool

	HTTPClient *http.Client
}

// Result summarizes what a generate invocation actually did, for `husako
// generate`'s own log output and for tests.
type Result struct {
	SkippedK8s      bool
	GeneratedCharts []string
	SkippedCharts   []string
	InstalledPlugins []string
	SkippedPlugins  []string
	LockWriteWarning string
}

// cacheLockFileName is the advisory lock file guarding .husako/cache
// against concurrent generate invocations (spec §5: "the cache
// directory is treated as single-writer during a generate invocation").
const cacheLockFileName = ".generate.lock"

// Generate runs the full pipeline described above and returns a Result.
// Per spec §4.11 step 8, a lock *write* failure is reported as a warning
// on the Result rather than as an error; every other failure aborts and
// is returned.
func Generate(ctx context.Context, project *config.Project, opts Options) (*Result, error) {
	cacheDir := filepath.Join(opts.Root, ".husako", "cache")
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, errkind.Wrap(errkind.Unexpected, cacheDir, "creating cache directory", err)
	}
	fl := flock.New(filepath.Join(cacheDir, cacheLockFileName))
	if err := fl.Lock(); err != nil {
		return nil, errkind.Wrap(errkind.Unexpected, cacheDir, "acquiring cache lock", err)
	}
	defer fl.Unlock()

	previous, err := lock.Load(opts.Root)
	if err != nil {
		return nil, err
	}
	fresh := lock.Empty(opts.HusakoVersion)
	result := &Result{}

	res := resolver.New(resolver.Options{Root: opts.Root, CacheDir: cacheDir, HTTPClient: opts.HTTPClient})

	installed, err := installPlugins(ctx, res, previous, opts, project, fresh, result)
	if err != nil {
		return nil, err
	}

	resources, charts := mergeNamespaced(project, installed)

	skipK8s := opts.SkipK8s || (!opts.NoIncremental && previous.ShouldSkipK8s(opts.Root, opts.HusakoVersion, resources))
	result.SkippedK8s = skipK8s

	// Skipping K8s never runs the resolver, so there is no classified set
	// to rebuild the schema store from; an existing _schema.json (if any)
	// is left untouched on disk.
	var classified []hschema.Classified
	if skipK8s {
		previous.PreserveResourcesForSkippedK8s(fresh)
	} else {
		classified, err = generateK8s(ctx, res, project, resources, opts, fresh)
		if err != nil {
			return nil, err
		}
	}

	if err := generateCharts(ctx, res, charts, previous, opts, fresh, result); err != nil {
		return nil, err
	}

	if len(classified) > 0 {
		store, err := schemastore.Build(classified)
		if err != nil {
			return nil, err
		}
		data, err := store.Marshal()
		if err != nil {
			return nil, err
		}
		if err := writeFile(filepath.Join(opts.Root, ".husako", "types", "k8s", "_schema.json"), data); err != nil {
			return nil, err
		}
	}

	if err := writeBuiltinDeclarations(opts.Root); err != nil {
		return nil, err
	}

	if err := writeTSConfig(opts.Root, installed, hasCharts(charts)); err != nil {
		return nil, err
	}

	if err := lock.Save(opts.Root, fresh); err != nil {
		result.LockWriteWarning = err.Error()
	}

	return result, nil
}

// writeFile writes data to path, creating parent directories as needed.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errkind.Wrap(errkind.Unexpected, filepath.Dir(path), "creating output directory", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errkind.Wrap(errkind.Unexpected, path, "writing generated file", err)
	}
	return nil
}

func hasCharts(charts map[string]namedChart) bool {
	return len(charts) > 0
}

// namedChart pairs a chart's merged config with the originating name,
// threaded through mergeNamespaced/generateCharts together.
type namedChart struct {
	name string
	src  config.ChartSource
}

// mergeNamespaced combines husako.toml's own [resources]/[charts] with
// every installed plugin's namespaced entries (already prefixed
// "<plugin>:<name>" by pkg/resolver), per spec §4.11 step 2.
func mergeNamespaced(project *config.Project, installed []resolver.InstalledPlugin) (map[string]config.ResourceSource, map[string]namedChart) {
	resources := make(map[string]config.ResourceSource, len(project.Resources))
	for name, src := range project.Resources {
		resources[name] = src
	}
	charts := make(map[string]namedChart, len(project.Charts))
	for name, src := range project.Charts {
		charts[name] = namedChart{name: name, src: src}
	}
	for _, p := range installed {
		for name, src := range p.Resources {
			resources[name] = src
		}
		for name, src := range p.Charts {
			charts[name] = namedChart{name: name, src: src}
		}
	}
	return resources, charts
}

// sortedResourceDeps builds ResourceDependency values in an order that
// gives user-declared resources precedence over plugin-provided ones on
// a schema-name collision within the same DiscoveryKey (spec §5: "user
// entries always take precedence on collision"), since ResolveAll's
// merge rule is "later source in iteration order wins".
func sortedResourceDeps(project *config.Project, resources map[string]config.ResourceSource) []resolver.ResourceDependency {
	var pluginNames, userNames []string
	for name := range resources {
		if _, ok := project.Resources[name]; ok {
			userNames = append(userNames, name)
		} else {
			pluginNames = append(pluginNames, name)
		}
	}
	sort.Strings(pluginNames)
	sort.Strings(userNames)

	deps := make([]resolver.ResourceDependency, 0, len(resources))
	for _, name := range pluginNames {
		deps = append(deps, resolver.ResourceDependency{Name: name, Source: resources[name]})
	}
	for _, name := range userNames {
		deps = append(deps, resolver.ResourceDependency{Name: name, Source: resources[name]})
	}
	return deps
}

// flattenBundles converts a resolver-merged DiscoveryKey->Bundle map
// into the flat []schema.Named list the classifier operates on.
func flattenBundles(merged map[string]hschema.Bundle) []hschema.Named {
	var out []hschema.Named
	for _, bundle := range merged {
		for name, s := range bundle {
			var gvk *hschema.GVK
			if s.Extensions != nil {
				gvk = hschema.ExtractGVK(s.Extensions)
			}
			out = append(out, hschema.Named{Name: name, Schema: s, GVK: gvk})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func generateK8s(ctx context.Context, res *resolver.Resolver, project *config.Project, resources map[string]config.ResourceSource, opts Options, fresh *lock.Lock) ([]hschema.Classified, error) {
	deps := sortedResourceDeps(project, resources)
	merged, err := res.ResolveAll(ctx, deps, project)
	if err != nil {
		return nil, err
	}

	named := flattenBundles(merged)
	classified := hschema.Classify(named)
	plans := codegen.BuildModulePlans(classified, hschema.DialectKubernetes)

	emitter, err := codegen.NewEmitter()
	if err != nil {
		return nil, err
	}
	emitted, err := emitter.EmitAll(plans)
	if err != nil {
		return nil, err
	}

	for _, e := range emitted {
		base := filepath.Join(opts.Root, ".husako", "types", "k8s", e.ModuleKey)
		if err := writeFile(base+".d.ts", []byte(e.DTS)); err != nil {
			return nil, err
		}
		if e.HasJS {
			if err := writeFile(base+".js", []byte(e.JS)); err != nil {
				return nil, err
			}
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for name, src := range resources {
		fresh.Resources[name] = resourceLockEntry(src, opts.Root, now)
	}
	return classified, nil
}

func resourceLockEntry(src config.ResourceSource, root, now string) lock.ResourceLock {
	entry := lock.ResourceLock{Source: src.Source, Version: src.Version, Repo: src.Repo, Tag: src.Tag, Path: src.Path, GeneratedAt: now}
	if src.Source == config.ResourceFile {
		if hash, err := hashSourcePath(filepath.Join(root, src.Path)); err == nil {
			entry.ContentHash = hash
		}
	}
	return entry
}

func hashSourcePath(path string) (string, error) {
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

func generateCharts(ctx context.Context, res *resolver.Resolver, charts map[string]namedChart, previous *lock.Lock, opts Options, fresh *lock.Lock, result *Result) error {
	emitter, err := codegen.NewEmitter()
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	var toResolve []resolver.ChartDependency
	for name, nc := range charts {
		if !opts.NoIncremental && previous.ShouldSkipChart(opts.Root, name, nc.src) {
			fresh.Charts[name] = previous.Charts[name]
			result.SkippedCharts = append(result.SkippedCharts, name)
			continue
		}
		toResolve = append(toResolve, resolver.ChartDependency{Name: name, Source: nc.src})
	}
	sort.Slice(toResolve, func(i, j int) bool { return toResolve[i].Name < toResolve[j].Name })
	sort.Strings(result.SkippedCharts)

	if len(toResolve) == 0 {
		return nil
	}

	valuesSchemas, err := res.ResolveAllCharts(ctx, toResolve)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(valuesSchemas))
	for name := range valuesSchemas {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		extracted, err := codegen.ExtractInline(valuesSchemas[name])
		if err != nil {
			return errkind.Wrap(errkind.TypeGen, name, "extracting chart values schema", err)
		}
		named := make([]hschema.Named, 0, len(extracted))
		for _, e := range extracted {
			s, err := hschema.FromRawJSON(e.Schema)
			if err != nil {
				return errkind.Wrap(errkind.TypeGen, name, "converting extracted helm schema", err)
			}
			named = append(named, hschema.Named{Name: e.Name, Schema: s})
		}

		plan := codegen.BuildHelmModulePlan(named)
		emitted, err := emitter.Emit(plan)
		if err != nil {
			return err
		}

		base := filepath.Join(opts.Root, ".husako", "types", "helm", name)
		if err := writeFile(base+".d.ts", []byte(emitted.DTS)); err != nil {
			return err
		}
		if emitted.HasJS {
			if err := writeFile(base+".js", []byte(emitted.JS)); err != nil {
				return err
			}
		}

		fresh.Charts[name] = chartLockEntry(charts[name].src, opts.Root, now)
		result.GeneratedCharts = append(result.GeneratedCharts, name)
	}
	sort.Strings(result.GeneratedCharts)
	return nil
}

func chartLockEntry(src config.ChartSource, root, now string) lock.ChartLock {
	entry := lock.ChartLock{
		Source: src.Source, Repo: src.Repo, Chart: src.Chart, Version: src.Version,
		Package: src.Package, Tag: src.Tag, Path: src.Path, Reference: src.Reference,
		GeneratedAt: now,
	}
	if src.Source == config.ChartFile {
		if hash, err := hashSourcePath(filepath.Join(root, src.Path)); err == nil {
			entry.ContentHash = hash
		}
	}
	return entry
}

// installPlugins installs (or, if up to date, re-reads) every declared
// plugin in sorted name order and records its lock entry.
func installPlugins(ctx context.Context, res *resolver.Resolver, previous *lock.Lock, opts Options, project *config.Project, fresh *lock.Lock, result *Result) ([]resolver.InstalledPlugin, error) {
	names := lock.SortedNames(project.Plugins)
	now := time.Now().UTC().Format(time.RFC3339)

	var toInstall []resolver.PluginDependency
	installed := make([]resolver.InstalledPlugin, 0, len(names))

	for _, name := range names {
		src := project.Plugins[name]
		if !opts.NoIncremental {
			if existing, err := resolver.ReadInstalledPlugin(opts.Root, name); err == nil {
				if previous.ShouldSkipPlugin(opts.Root, name, src, filepath.Join(".husako", "plugins", name), existing.Version) {
					installed = append(installed, existing)
					fresh.Plugins[name] = previous.Plugins[name]
					result.SkippedPlugins = append(result.SkippedPlugins, name)
					continue
				}
			}
		}
		toInstall = append(toInstall, resolver.PluginDependency{Name: name, Source: src})
	}

	if len(toInstall) > 0 {
		newlyInstalled, err := res.InstallPlugins(ctx, toInstall)
		if err != nil {
			return nil, err
		}
		for _, p := range newlyInstalled {
			installed = append(installed, p)
			fresh.Plugins[p.Name] = lock.PluginLock{
				Source:        project.Plugins[p.Name].Source,
				URL:           project.Plugins[p.Name].URL,
				Path:          project.Plugins[p.Name].Path,
				PluginVersion: p.Version,
				GeneratedAt:   now,
			}
			result.InstalledPlugins = append(result.InstalledPlugins, p.Name)
		}
	}

	sort.Strings(result.InstalledPlugins)
	sort.Strings(result.SkippedPlugins)
	return installed, nil
}

// writeBuiltinDeclarations writes husako/test.d.ts and husako/_base.d.ts
// (spec §4.11 step 6) so editors and `tsc` can typecheck imports from
// those specifiers; runtime module resolution still serves them from
// the embedded pkg/sdk filesystem, never from these copies.
func writeBuiltinDeclarations(root string) error {
	for _, specifier := range []string{"husako/test", "husako/_base"} {
		dts, ok := sdk.Declaration(specifier)
		if !ok {
			return errkind.New(errkind.TypeGen, specifier, "no builtin declaration embedded for this specifier")
		}
		path := filepath.Join(root, ".husako", "types", specifier+".d.ts")
		if err := writeFile(path, []byte(dts)); err != nil {
			return err
		}
	}
	return nil
}

// tsconfig is the minimal subset of tsconfig.json husako regenerates;
// unknown/user-added fields are not read back in, since husako owns
// this file outright (spec §4.11 step 7).
type tsconfig struct {
	CompilerOptions struct {
		Target  string              `json:"target"`
		Module  string              `json:"module"`
		Strict  bool                `json:"strict"`
		BaseURL string              `json:"baseUrl"`
		Paths   map[string][]string `json:"paths"`
	} `json:"compilerOptions"`
}

// writeTSConfig regenerates tsconfig.json's compilerOptions.paths so
// every builtin, generated, and plugin module specifier resolves for
// editor tooling, mirroring pkg/moduleresolve's own precedence chain
// (spec §4.11 step 7). Plain encoding/json is used here rather than the
// project's BurntSushi/toml or gonja templating stack: tsconfig.json is
// a fixed, tool-consumed JSON document with no round-trip-preservation
// requirement, so there is no templating or TOML concern to delegate to
// a library for.
func writeTSConfig(root string, installed []resolver.InstalledPlugin, hasCharts bool) error {
	var cfg tsconfig
	cfg.CompilerOptions.Target = "ES2020"
	cfg.CompilerOptions.Module = "ESNext"
	cfg.CompilerOptions.Strict = true
	cfg.CompilerOptions.BaseURL = "."
	cfg.CompilerOptions.Paths = map[string][]string{
		"husako":       {".husako/types/husako/_base.d.ts"},
		"husako/_base": {".husako/types/husako/_base.d.ts"},
		"husako/test":  {".husako/types/husako/test.d.ts"},
		"k8s/*":        {".husako/types/k8s/*"},
	}
	if hasCharts {
		cfg.CompilerOptions.Paths["helm/*"] = []string{".husako/types/helm/*"}
	}
	for _, p := range installed {
		for specifier, path := range p.Modules {
			cfg.CompilerOptions.Paths[specifier] = []string{filepath.Join(".husako", "plugins", p.Name, path)}
		}
	}

	data, err := json.MarshalIndent(&cfg, "", "  ")
	if err != nil {
		return errkind.Wrap(errkind.TypeGen, "tsconfig.json", "encoding tsconfig.json", err)
	}
	return writeFile(filepath.Join(root, "tsconfig.json"), append(data, '\n'))
}
