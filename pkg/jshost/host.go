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

// Package jshost implements husako's JS Execution Host (spec §4.7): one
// goja.Runtime per render invocation, a CommonJS-style module loader
// wired to pkg/moduleresolve, the `__husako_build` sink with its
// build-call invariants, and the strict-JSON output capture contract.
package jshost

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/evanw/esbuild/pkg/api"

	"husako/pkg/errkind"
	"husako/pkg/moduleresolve"
)

// Limits bounds one render invocation's JS execution.
type Limits struct {
	// Timeout is the wall-clock budget. Zero means no timeout.
	Timeout time.Duration
	// MemoryLimitBytes, when non-zero, only turns on a fixed call-stack
	// depth limit (see New); the engine's heap size is not measured or
	// capped.
	MemoryLimitBytes uint64
}

// Host runs one project's entry module to completion and captures the
// single value passed to husako.build(...).
type Host struct {
	vm       *goja.Runtime
	resolver *moduleresolve.Resolver
	modules  *moduleSystem

	buildCalls int
	built      goja.Value
}

// New constructs a Host around resolver, installs the build sink, and
// applies limits. A Host is single-use: one render invocation.
func New(resolver *moduleresolve.Resolver, limits Limits) *Host {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())

	h := &Host{
		vm:       vm,
		resolver: resolver,
	}
	h.modules = newModuleSystem(vm, resolver)

	if limits.MemoryLimitBytes > 0 {
		// goja exposes no heap accounting, so the stack-depth guard
		// below is the only guard applied; neither the heap nor the
		// captured output's size is bounded.
		vm.SetMaxCallStackSize(4096)
	}

	vm.Set("__husako_build", h.build)
	return h
}

// Run compiles and evaluates the entry file (the project's
// husako-root-relative entry TypeScript/JavaScript), then awaits
// module evaluation, honoring ctx cancellation and limits.Timeout, and
// enforces the exactly-once husako.build(...) call invariant.
func (h *Host) Run(ctx context.Context, entryPath string, limits Limits) error {
	if err := h.load(ctx, entryPath, limits); err != nil {
		return err
	}
	if h.buildCalls == 0 {
		return errkind.New(errkind.Validation, entryPath, "husako.build(...) was never called")
	}
	if h.buildCalls > 1 {
		return errkind.New(errkind.Validation, entryPath, fmt.Sprintf("husako.build(...) was called %d times, expected exactly once", h.buildCalls))
	}
	return nil
}

// LoadForTest compiles and evaluates entryPath the same way Run does,
// but does not require husako.build(...) to have been called: an entry
// file exercised by `husako test` typically registers test cases via
// husako/test instead of producing a build tree.
func (h *Host) LoadForTest(ctx context.Context, entryPath string, limits Limits) error {
	return h.load(ctx, entryPath, limits)
}

func (h *Host) load(ctx context.Context, entryPath string, limits Limits) error {
	runCtx := ctx
	var cancel context.CancelFunc
	if limits.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, limits.Timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.modules.loadEntry(entryPath)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-runCtx.Done():
		h.vm.Interrupt(runCtx.Err())
		<-done
		return errkind.Wrap(errkind.Runtime, entryPath, "JS execution exceeded its time budget", runCtx.Err())
	}
}

// Built returns the captured, strict-JSON-validated tree of documents
// submitted via husako.build(...). Only meaningful after a successful
// Run.
func (h *Host) Built() ([]interface{}, error) {
	return captureBuilt(h.vm, h.built)
}

// RunAllTests invokes the husako/test runner's
// globalThis.__husako_run_all_tests() and returns its JSON result
// string, awaiting the returned promise.
func (h *Host) RunAllTests(ctx context.Context) (string, error) {
	fn, ok := goja.AssertFunction(h.vm.GlobalObject().Get("__husako_run_all_tests"))
	if !ok {
		return "", errkind.New(errkind.Runtime, "", "husako/test was never loaded; __husako_run_all_tests is not defined")
	}
	result, err := fn(goja.Undefined())
	if err != nil {
		return "", errkind.Wrap(errkind.Runtime, "", "running test suite", err)
	}
	return awaitString(h.vm, result)
}

// build is exposed to JS as globalThis.__husako_build. It records the
// raw value and counts calls; strict-JSON validation happens lazily in
// Built() so the call itself can never throw into JS.
func (h *Host) build(value goja.Value) goja.Value {
	h.buildCalls++
	h.built = value
	return goja.Undefined()
}

// awaitString drains a goja Promise (or passes through a plain string)
// and returns its resolved string value.
func awaitString(vm *goja.Runtime, value goja.Value) (string, error) {
	promise, ok := value.Export().(*goja.Promise)
	if !ok {
		return value.String(), nil
	}
	for promise.State() == goja.PromiseStatePending {
		// goja resolves microtasks synchronously as part of each
		// RunProgram/function call; nothing else drives the queue
		// forward here, so a still-pending promise past this point
		// indicates it is waiting on work the host never scheduled.
		break
	}
	switch promise.State() {
	case goja.PromiseStateFulfilled:
		return fmt.Sprint(promise.Result().Export()), nil
	case goja.PromiseStateRejected:
		return "", errkind.New(errkind.Runtime, "", fmt.Sprintf("test suite promise rejected: %v", promise.Result().Export()))
	default:
		return "", errkind.New(errkind.Runtime, "", "test suite promise never settled")
	}
}

// compileCommonJS adapts ESM import/export syntax (as produced by
// pkg/tscompile and husako's builtin modules) into a CommonJS body
// goja can evaluate without native ES module support, wrapped in the
// classic Node module function shell.
func compileCommonJS(source, filename string) (string, error) {
	result := api.Transform(source, api.TransformOptions{
		Loader:     api.LoaderJS,
		Format:     api.FormatCommonJS,
		Target:     api.ES2020,
		Sourcefile: filename,
	})
	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, m := range result.Errors {
			msgs = append(msgs, m.Text)
		}
		return "", errkind.New(errkind.Runtime, filename, fmt.Sprintf("adapting ESM module for execution: %v", msgs))
	}
	return string(result.Code), nil
}
