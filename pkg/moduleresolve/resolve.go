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

// Package moduleresolve implements husako's Module Resolver & Loader
// (spec §4.5): the precedence chain the JS execution host consults
// whenever an imported specifier needs source text. Each tier reports
// whether it recognized the specifier at all, so the caller can fall
// through to the next one rather than treating "not my prefix" as an
// error.
package moduleresolve

import (
	"fmt"
	"os"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"

	"husako/pkg/errkind"
	"husako/pkg/sdk"
)

// Compiler turns TypeScript source into JS (pkg/tscompile's contract).
// Resolved .js files bypass it entirely.
type Compiler interface {
	Compile(source, filename string) (string, error)
}

// Resolved is one resolution outcome: source text ready for the
// engine, plus the canonical path it came from (builtin/generated
// specifiers report a synthetic path for diagnostics).
type Resolved struct {
	Specifier string
	Path      string
	Source    string
}

// Options configures a Resolver's environment.
type Options struct {
	// Root is the project root; every File/Generated resolution must
	// stay within it.
	Root string
	// Plugins is the union of installed plugins' [modules] tables,
	// specifier -> plugin name, used to compute the on-disk path
	// "<root>/.husako/plugins/<name>/<mapped-path>.js".
	Plugins map[string]PluginModule
	// AllowOutsideRoot disables the project-root boundary check
	// (used by `husako debug` and similar escape hatches).
	AllowOutsideRoot bool
	Compiler         Compiler
}

// PluginModule names which plugin owns a module specifier and the
// path (relative to that plugin's directory, without ".js") it maps
// to.
type PluginModule struct {
	Plugin     string
	MappedPath string
}

// Resolver resolves and loads module source following the Builtin →
// Plugin → Generated → File precedence chain.
type Resolver struct {
	opts Options
}

// New returns a Resolver bound to opts.
func New(opts Options) *Resolver {
	return &Resolver{opts: opts}
}

// Resolve loads specifier, imported from importerPath (used to anchor
// relative File-tier specifiers; ignored by the other tiers).
func (r *Resolver) Resolve(specifier, importerPath string) (Resolved, error) {
	if res, ok, err := r.resolveBuiltin(specifier); ok || err != nil {
		return res, err
	}
	if res, ok, err := r.resolvePlugin(specifier); ok || err != nil {
		return res, err
	}
	if res, ok, err := r.resolveGenerated(specifier); ok || err != nil {
		return res, err
	}
	if res, ok, err := r.resolveFile(specifier, importerPath); ok || err != nil {
		return res, err
	}
	return Resolved{}, errkind.New(errkind.Runtime, specifier, "bare specifier not recognized by any resolution tier")
}

// ResolveEntry loads the render pipeline's entry file directly by
// absolute path, applying the same project-root boundary check and
// TypeScript compilation as the File tier, without going through
// specifier resolution.
func (r *Resolver) ResolveEntry(path string) (Resolved, error) {
	return r.loadFromDisk(path, path)
}

func (r *Resolver) resolveBuiltin(specifier string) (Resolved, bool, error) {
	src, ok := sdk.Source(specifier)
	if !ok {
		return Resolved{}, false, nil
	}
	return Resolved{Specifier: specifier, Path: "husako:" + specifier, Source: src}, true, nil
}

func (r *Resolver) resolvePlugin(specifier string) (Resolved, bool, error) {
	mod, ok := r.opts.Plugins[specifier]
	if !ok {
		return Resolved{}, false, nil
	}
	path := filepath.Join(r.opts.Root, ".husako", "plugins", mod.Plugin, mod.MappedPath+".js")
	res, err := r.loadFromDisk(specifier, path)
	return res, true, err
}

func (r *Resolver) resolveGenerated(specifier string) (Resolved, bool, error) {
	if !hasGeneratedPrefix(specifier) {
		return Resolved{}, false, nil
	}
	path := filepath.Join(r.opts.Root, ".husako", "types", specifier+".js")
	res, err := r.loadFromDisk(specifier, path)
	return res, true, err
}

func hasGeneratedPrefix(specifier string) bool {
	return hasPrefix(specifier, "k8s/") || hasPrefix(specifier, "helm/")
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func (r *Resolver) resolveFile(specifier, importerPath string) (Resolved, bool, error) {
	if !isRelativeSpecifier(specifier) {
		return Resolved{}, false, nil
	}
	base := filepath.Dir(importerPath)
	candidate := filepath.Join(base, specifier)

	for _, path := range candidatePaths(candidate) {
		if fileExists(path) {
			res, err := r.loadFromDisk(specifier, path)
			return res, true, err
		}
	}
	return Resolved{}, true, errkind.New(errkind.Runtime, specifier, fmt.Sprintf("no module found for %q relative to %q", specifier, importerPath))
}

func isRelativeSpecifier(specifier string) bool {
	return hasPrefix(specifier, "./") || hasPrefix(specifier, "../")
}

// candidatePaths enumerates the File tier's lookup order: exact path,
// then +.ts, +.js, +/index.ts, +/index.js.
func candidatePaths(base string) []string {
	return []string{
		base,
		base + ".ts",
		base + ".js",
		filepath.Join(base, "index.ts"),
		filepath.Join(base, "index.js"),
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// loadFromDisk reads path (after enforcing the project-root boundary),
// compiling it through r.opts.Compiler if it is TypeScript.
func (r *Resolver) loadFromDisk(specifier, path string) (Resolved, error) {
	canonical, err := r.withinRoot(path)
	if err != nil {
		return Resolved{}, err
	}
	data, err := os.ReadFile(canonical)
	if err != nil {
		return Resolved{}, errkind.Wrap(errkind.Runtime, canonical, "reading module source", err)
	}
	source := string(data)
	if filepath.Ext(canonical) == ".ts" {
		if r.opts.Compiler == nil {
			return Resolved{}, errkind.New(errkind.Runtime, canonical, "no TypeScript compiler configured")
		}
		source, err = r.opts.Compiler.Compile(source, canonical)
		if err != nil {
			return Resolved{}, err
		}
	}
	return Resolved{Specifier: specifier, Path: canonical, Source: source}, nil
}

// withinRoot canonicalizes path (resolving symlinks) and verifies it
// remains inside the project root, unless AllowOutsideRoot is set.
func (r *Resolver) withinRoot(path string) (string, error) {
	if r.opts.AllowOutsideRoot || r.opts.Root == "" {
		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			if os.IsNotExist(err) {
				return path, nil
			}
			return "", errkind.Wrap(errkind.Runtime, path, "resolving module path", err)
		}
		return resolved, nil
	}

	rel, err := filepath.Rel(r.opts.Root, path)
	if err != nil || hasPrefix(rel, "..") {
		return "", errkind.New(errkind.Runtime, path, "module path resolves outside the project root")
	}

	canonical, err := securejoin.SecureJoin(r.opts.Root, rel)
	if err != nil {
		return "", errkind.Wrap(errkind.Runtime, path, "resolving module path within project root", err)
	}
	return canonical, nil
}
