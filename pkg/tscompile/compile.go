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

// Package tscompile implements husako's TS→JS Compiler Wrapper (spec
// §4.6): a pure function that strips TypeScript syntax while
// preserving ESM import/export, producing ES2020-compatible source the
// embedded JS engine can evaluate. It carries no caching contract —
// callers that want memoization (pkg/moduleresolve does not) layer it
// on themselves.
package tscompile

import (
	"strconv"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"husako/pkg/errkind"
)

// Compiler strips TypeScript syntax via esbuild's single-file Transform
// API. It holds no state, so its zero value is ready to use.
type Compiler struct{}

// New returns a ready-to-use Compiler.
func New() *Compiler {
	return &Compiler{}
}

// Compile transforms a single TypeScript source file into ES2020 JS.
// filename only affects diagnostics and the loader choice (.tsx files
// get JSX-aware transpilation; everything else is treated as plain
// TypeScript).
func (c *Compiler) Compile(source, filename string) (string, error) {
	loader := api.LoaderTS
	if strings.HasSuffix(filename, ".tsx") {
		loader = api.LoaderTSX
	}

	result := api.Transform(source, api.TransformOptions{
		Loader:           loader,
		Target:           api.ES2020,
		Format:           api.FormatESModule,
		Sourcefile:       filename,
		LegalComments:    api.LegalCommentsNone,
		MinifyWhitespace: false,
	})

	if len(result.Errors) > 0 {
		return "", errkind.New(errkind.Compile, filename, formatEsbuildErrors(result.Errors))
	}
	return string(result.Code), nil
}

func formatEsbuildErrors(msgs []api.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			lines = append(lines, m.Text+" ("+m.Location.File+":"+strconv.Itoa(m.Location.Line)+")")
			continue
		}
		lines = append(lines, m.Text)
	}
	return strings.Join(lines, "; ")
}
