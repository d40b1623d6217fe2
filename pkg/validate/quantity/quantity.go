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

// Package quantity implements the Kubernetes-style resource-quantity
// grammar (spec §4.9): sign? numeric (suffix | exponent)?.
package quantity

import "regexp"

// suffixPattern matches the recognized binary and decimal SI suffixes, tried
// before the exponent form so that "1E" parses as the Exa suffix while
// "1E3" falls through to scientific notation.
var suffixPattern = regexp.MustCompile(`^(n|u|m|k|M|G|T|P|E|Ki|Mi|Gi|Ti|Pi|Ei)$`)

// grammar is the full quantity string, built once from its three
// alternative tails so Match can run a single regexp evaluation.
var grammar = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)((n|u|m|k|M|G|T|P|E|Ki|Mi|Gi|Ti|Pi|Ei)|((e|E)[+-]?\d+))?$`)

// Match reports whether s is a syntactically valid Kubernetes resource
// quantity: a signed decimal number optionally followed by a binary/SI
// suffix or a scientific-notation exponent (never both).
func Match(s string) bool {
	return grammar.MatchString(s)
}

// IsSuffix reports whether s is one of the recognized unit suffixes,
// used by callers that need to disambiguate a bare trailing letter
// from the start of an exponent per the spec's tie-break rule.
func IsSuffix(s string) bool {
	return suffixPattern.MatchString(s)
}
