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

import "husako/pkg/schema"

// resolveFileCRD implements the File (K8s CRDs) strategy: read a file
// or directory of CRD YAML, convert, group by GVK. Never cached (spec
// §4.1): the source is already local, so there is nothing to save a
// round trip on.
func resolveFileCRD(path string) (map[string]schema.Bundle, error) {
	groups, err := convertYAMLTree(path)
	if err != nil {
		return nil, err
	}
	return bucketGroups(groups), nil
}
