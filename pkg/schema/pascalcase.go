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

package schema

import "strings"

// PascalCase splits s on "_" and "-", capitalizes each segment, and
// preserves internal camelCase (spec §4.2). Used to build extracted
// CRD schema names ("templateSpec" -> "TemplateSpec").
func PascalCase(s string) string {
	return pascalCase(s, false)
}

// PascalCaseHelm is PascalCase with the Helm codegen dialect's extra
// split point on "." (spec §4.3: "PascalCase splitting additionally
// breaks on .").
func PascalCaseHelm(s string) string {
	return pascalCase(s, true)
}

func pascalCase(s string, splitDot bool) string {
	isSep := func(r byte) bool {
		return r == '_' || r == '-' || (splitDot && r == '.')
	}

	var b strings.Builder
	start := 0
	for start < len(s) && isSep(s[start]) {
		start++
	}
	i := start
	segStart := start
	for i <= len(s) {
		if i == len(s) || isSep(s[i]) {
			if i > segStart {
				seg := s[segStart:i]
				b.WriteString(strings.ToUpper(seg[:1]))
				b.WriteString(seg[1:])
			}
			for i < len(s) && isSep(s[i]) {
				i++
			}
			segStart = i
			continue
		}
		i++
	}
	return b.String()
}
