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

package resolver

import "strings"

// discoveryKeyFromFilename maps a release manifest filename such as
// "apis__apps__v1_openapi.json" to its DiscoveryKey "apis/apps/v1", and
// "api__v1_openapi.json" to "api/v1" (spec §4.1 Release strategy).
func discoveryKeyFromFilename(name string) (string, bool) {
	const suffix = "_openapi.json"
	if !strings.HasSuffix(name, suffix) {
		return "", false
	}
	trimmed := strings.TrimSuffix(name, suffix)
	if trimmed == "" {
		return "", false
	}
	parts := strings.Split(trimmed, "__")
	return strings.Join(parts, "/"), true
}

// releaseFilenameFor turns a DiscoveryKey back into the manifest
// filename it is stored under, e.g. "apis/apps/v1" ->
// "apis__apps__v1_openapi.json".
func releaseFilenameFor(key string) string {
	return strings.ReplaceAll(key, "/", "__") + "_openapi.json"
}
