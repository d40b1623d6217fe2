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

package jshost

import (
	"fmt"

	"github.com/dop251/goja"

	"husako/pkg/errkind"
	"husako/pkg/moduleresolve"
)

// moduleSystem is a minimal CommonJS-style loader: each resolved
// module is wrapped in the classic `function(module, exports,
// require, __filename)` shell and evaluated once, with its exports
// object cached by canonical path so re-imports (and import cycles)
// see the same object Node-style modules would produce.
type moduleSystem struct {
	vm       *goja.Runtime
	resolver *moduleresolve.Resolver
	cache    map[string]*goja.Object
	loading  map[string]bool
}

func newModuleSystem(vm *goja.Runtime, resolver *moduleresolve.Resolver) *moduleSystem {
	return &moduleSystem{
		vm:       vm,
		resolver: resolver,
		cache:    make(map[string]*goja.Object),
		loading:  make(map[string]bool),
	}
}

// loadEntry loads and evaluates the render pipeline's entry file.
func (m *moduleSystem) loadEntry(entryPath string) (*goja.Object, error) {
	resolved, err := m.resolver.ResolveEntry(entryPath)
	if err != nil {
		return nil, err
	}
	return m.evaluate(resolved)
}

// require is exposed to every loaded module as its `require` function,
// resolving specifier against importerPath (that module's own
// canonical path) through the full Builtin/Plugin/Generated/File
// precedence chain.
func (m *moduleSystem) require(specifier, importerPath string) (*goja.Object, error) {
	resolved, err := m.resolver.Resolve(specifier, importerPath)
	if err != nil {
		return nil, err
	}
	return m.evaluate(resolved)
}

func (m *moduleSystem) evaluate(resolved moduleresolve.Resolved) (*goja.Object, error) {
	if exports, ok := m.cache[resolved.Path]; ok {
		return exports, nil
	}
	if m.loading[resolved.Path] {
		return nil, errkind.New(errkind.Runtime, resolved.Path, "circular import detected")
	}
	m.loading[resolved.Path] = true
	defer delete(m.loading, resolved.Path)

	cjs, err := compileCommonJS(resolved.Source, resolved.Path)
	if err != nil {
		return nil, err
	}

	moduleObj := m.vm.NewObject()
	exportsObj := m.vm.NewObject()
	_ = moduleObj.Set("exports", exportsObj)
	m.cache[resolved.Path] = exportsObj

	requireFn := func(call goja.FunctionCall) goja.Value {
		specifier := call.Argument(0).String()
		child, err := m.require(specifier, resolved.Path)
		if err != nil {
			panic(m.vm.ToValue(err.Error()))
		}
		return child
	}

	wrapped := fmt.Sprintf("(function(module, exports, require, __filename) {\n%s\n})", cjs)
	program, err := goja.Compile(resolved.Path, wrapped, false)
	if err != nil {
		return nil, errkind.Wrap(errkind.Runtime, resolved.Path, "compiling module shell", err)
	}
	shellValue, err := m.vm.RunProgram(program)
	if err != nil {
		return nil, errkind.Wrap(errkind.Runtime, resolved.Path, "evaluating module", err)
	}
	shell, ok := goja.AssertFunction(shellValue)
	if !ok {
		return nil, errkind.New(errkind.Runtime, resolved.Path, "module shell did not produce a callable")
	}

	if _, err := shell(goja.Undefined(), moduleObj, exportsObj, m.vm.ToValue(requireFn), m.vm.ToValue(resolved.Path)); err != nil {
		return nil, errkind.Wrap(errkind.Runtime, resolved.Path, "running module body", err)
	}

	finalExports, _ := moduleObj.Get("exports").(*goja.Object)
	if finalExports == nil {
		finalExports = exportsObj
	}
	m.cache[resolved.Path] = finalExports
	return finalExports, nil
}
