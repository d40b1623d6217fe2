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

package tscompile

import (
	"strings"
	"testing"

	"husako/pkg/errkind"
)

func TestCompileStripsTypesAndPreservesExports(t *testing.T) {
	c := New()
	out, err := c.Compile(`export function add(a: number, b: number): number { return a + b; }`, "math.ts")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if strings.Contains(out, ": number") {
		t.Fatalf("expected type annotations stripped, got %q", out)
	}
	if !strings.Contains(out, "export function add") {
		t.Fatalf("expected export preserved, got %q", out)
	}
}

func TestCompileReportsSyntaxErrorsAsCompileKind(t *testing.T) {
	c := New()
	_, err := c.Compile(`export function broken( {`, "broken.ts")
	if err == nil {
		t.Fatal("expected a syntax error")
	}
	kerr, ok := err.(*errkind.Error)
	if !ok || kerr.Kind != errkind.Compile {
		t.Fatalf("expected Compile errkind, got %#v", err)
	}
}

func TestCompileIsPureNoCachingSideEffects(t *testing.T) {
	c := New()
	const src = `export const x: number = 1;`
	a, err := c.Compile(src, "a.ts")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	b, err := c.Compile(src, "a.ts")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if a != b {
		t.Fatalf("expected identical output for identical input, got %q vs %q", a, b)
	}
}
