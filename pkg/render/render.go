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

// Package render implements husako's Render pipeline (spec §4.13): for
// a single user entry file, resolve→compile→execute→validate→emit,
// composing pkg/tscompile, pkg/moduleresolve, pkg/jshost, pkg/validate,
// and pkg/yamlemit in that order.
package render

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"husako/pkg/core/config"
	"husako/pkg/errkind"
	"husako/pkg/jshost"
	"husako/pkg/moduleresolve"
	"husako/pkg/resolver"
	"husako/pkg/schemastore"
	"husako/pkg/tscompile"
	"husako/pkg/validate"
	"husako/pkg/yamlemit"
)

// Options configures one render invocation.
type Options struct {
	// Root is the project root (holds husako.toml and .husako/).
	Root string
	// Entry is the user-supplied entry argument: either a path to a
	// source file, or an alias to resolve against husako.toml
	// [entries] (spec §4.13 step 1).
	Entry string
	// Timeout bounds JS execution wall-clock. Zero means no timeout.
	Timeout time.Duration
	// AllowOutsideRoot disables the module resolver's project-root
	// boundary check (husako debug and similar escape hatches).
	AllowOutsideRoot bool
	// WritePath, if set, writes the rendered YAML there instead of
	// returning it for the caller to print to stdout. A path ending in
	// "/" (or an existing directory) is treated as a directory and
	// receives one file per document; any other path is treated as a
	// single multi-document file.
	WritePath string
}

// Result is a completed render's output, before it is written anywhere.
type Result struct {
	// RunID identifies this invocation in diagnostics (log lines,
	// written-file headers); it has no meaning across runs.
	RunID string
	// YAML is the full multi-document stream (always populated, even
	// when WritePath is set, so callers can log/echo it).
	YAML string
	// DocumentCount is the number of top-level documents captured.
	DocumentCount int
}

// Render executes one entry file end to end. If the project's K8s
// types are absent, the caller (the CLI layer) is responsible for
// auto-running generate first per spec §4.13 — Render itself assumes
// types, if referenced, already exist.
func Render(ctx context.Context, project *config.Project, opts Options) (*Result, error) {
	runID := uuid.NewString()

	entryPath, err := ResolveEntryPath(project, opts.Root, opts.Entry)
	if err != nil {
		return nil, err
	}

	modResolver, err := NewModuleResolver(opts.Root, opts.AllowOutsideRoot)
	if err != nil {
		return nil, err
	}

	host := jshost.New(modResolver, jshost.Limits{Timeout: opts.Timeout})
	if err := host.Run(ctx, entryPath, jshost.Limits{Timeout: opts.Timeout}); err != nil {
		return nil, err
	}

	docs, err := host.Built()
	if err != nil {
		return nil, err
	}

	storePtr, err := loadSchemaStore(opts.Root)
	if err != nil {
		return nil, err
	}
	// A missing store is not an error: pkg/validate falls back to the
	// resources.requests/.limits-only heuristic when no schema store is
	// available (spec §4.8/§4.13 step 5). validate.Store is an
	// interface, so a typed-nil *schemastore.Store must not be passed
	// directly — its methods dereference the receiver and would panic;
	// only assign the interface when storePtr is genuinely non-nil.
	var store validate.Store
	if storePtr != nil {
		store = storePtr
	}

	// Validation walks plain maps, not jshost's *OrderedMap tree, since
	// structural checks don't care about key order.
	plain := make([]interface{}, len(docs))
	for i, doc := range docs {
		plain[i] = jshost.ToPlain(doc)
	}
	if err := validate.Documents(plain, store); err != nil {
		return nil, err
	}

	out, err := yamlemit.Documents(docs)
	if err != nil {
		return nil, err
	}

	result := &Result{RunID: runID, YAML: out, DocumentCount: len(docs)}
	if opts.WritePath != "" {
		if err := write(opts.WritePath, docs, out); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// ResolveEntryPath turns the user-supplied entry argument into an
// absolute file path: if it names an existing file, use it directly;
// otherwise look it up in husako.toml's [entries] table (spec §4.13
// step 1: "resolve entry aliases ... if the path isn't a file").
func ResolveEntryPath(project *config.Project, root, entry string) (string, error) {
	candidate := entry
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(root, entry)
	}
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return candidate, nil
	}

	rel, ok := project.Entries[entry]
	if !ok {
		return "", errkind.New(errkind.Config, entry, "no such file and no matching [entries] alias in husako.toml")
	}
	return filepath.Join(root, rel), nil
}

// NewModuleResolver assembles the module resolver with every installed
// plugin's declared module specifiers, so require("plugin-module")
// resolves for a render invocation exactly as it would mid-generate.
// Exported for the `husako test` command, which drives pkg/jshost
// directly (running the husako/test suite, not husako.build(...)) but
// needs the identical resolution environment.
func NewModuleResolver(root string, allowOutsideRoot bool) (*moduleresolve.Resolver, error) {
	installed, err := resolver.ListInstalledPlugins(root)
	if err != nil {
		return nil, err
	}
	plugins := make(map[string]moduleresolve.PluginModule)
	for _, p := range installed {
		for specifier, mappedPath := range p.Modules {
			plugins[specifier] = moduleresolve.PluginModule{Plugin: p.Name, MappedPath: mappedPath}
		}
	}
	return moduleresolve.New(moduleresolve.Options{
		Root:             root,
		Plugins:          plugins,
		AllowOutsideRoot: allowOutsideRoot,
		Compiler:         tscompile.New(),
	}), nil
}

// loadSchemaStore reads the generated K8s schema store, returning a
// nil Store (not an error) when generate has never produced one.
func loadSchemaStore(root string) (*schemastore.Store, error) {
	path := filepath.Join(root, ".husako", "types", "k8s", "_schema.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errkind.Wrap(errkind.Config, path, "reading schema store", err)
	}
	store, err := schemastore.Load(data)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// write emits the render output to disk per opts.WritePath: a
// directory receives one file per document (named doc-N.yaml), any
// other path receives the full multi-document stream as one file.
func write(path string, docs []interface{}, full string) error {
	isDir := len(path) > 0 && path[len(path)-1] == filepath.Separator
	if !isDir {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			isDir = true
		}
	}

	if !isDir {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return errkind.Wrap(errkind.Config, filepath.Dir(path), "creating output directory", err)
		}
		if err := os.WriteFile(path, []byte(full), 0o644); err != nil {
			return errkind.Wrap(errkind.Config, path, "writing rendered YAML", err)
		}
		return nil
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return errkind.Wrap(errkind.Config, path, "creating output directory", err)
	}
	for i, doc := range docs {
		out, err := yamlemit.Documents([]interface{}{doc})
		if err != nil {
			return err
		}
		name := filepath.Join(path, docFileName(i))
		if err := os.WriteFile(name, []byte(out), 0o644); err != nil {
			return errkind.Wrap(errkind.Config, name, "writing rendered YAML", err)
		}
	}
	return nil
}

func docFileName(i int) string {
	return "doc-" + strconv.Itoa(i) + ".yaml"
}
