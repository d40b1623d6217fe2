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

// Package sdk embeds husako's builtin JavaScript/TypeScript modules —
// husako, husako/_base and husako/test — so the module resolver can
// serve them without touching disk. These are the only specifiers the
// Builtin resolution tier recognizes.
package sdk

import (
	"embed"
	"fmt"
)

//go:embed builtin/*.js builtin/*.d.ts
var builtinFS embed.FS

// moduleFiles names, per builtin specifier, the .js basename and the
// .d.ts basename under builtin/ (they differ for husako/_base, whose
// source file is base.js but whose declaration file is _base.d.ts).
type moduleFiles struct {
	jsBase  string
	dtsBase string
}

var specifiers = map[string]moduleFiles{
	"husako":       {jsBase: "husako", dtsBase: "husako"},
	"husako/_base": {jsBase: "base", dtsBase: "_base"},
	"husako/test":  {jsBase: "test", dtsBase: "test"},
}

// IsBuiltin reports whether specifier names one of husako's builtin
// modules.
func IsBuiltin(specifier string) bool {
	_, ok := specifiers[specifier]
	return ok
}

// Source returns the JavaScript source for a builtin module specifier.
func Source(specifier string) (string, bool) {
	files, ok := specifiers[specifier]
	if !ok {
		return "", false
	}
	data, err := builtinFS.ReadFile(fmt.Sprintf("builtin/%s.js", files.jsBase))
	if err != nil {
		return "", false
	}
	return string(data), true
}

// Declaration returns the .d.ts declaration text for a builtin module
// specifier, if one exists.
func Declaration(specifier string) (string, bool) {
	files, ok := specifiers[specifier]
	if !ok {
		return "", false
	}
	data, err := builtinFS.ReadFile(fmt.Sprintf("builtin/%s.d.ts", files.dtsBase))
	if err != nil {
		return "", false
	}
	return string(data), true
}
