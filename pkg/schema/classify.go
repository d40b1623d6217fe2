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

const commonPrefix = "io.k8s.apimachinery."
const groupVersionPrefix = "io.k8s.api."

// gvkExtensionKey is the OpenAPI extension key Kubernetes (and
// CRD-derived schemas, via the CRD converter) use to annotate a schema
// with its Group/Version/Kind.
const gvkExtensionKey = "x-kubernetes-group-version-kind"

// Classify assigns every schema in named a Location, following spec §3
// and §4.3's critical invariant: reclassification by GVK must run
// before group-version partitioning by name, or CRDs with a
// non-"io.k8s.api."-prefixed name but a GVK annotation would be dropped
// into Other and never emitted.
func Classify(named []Named) []Classified {
	out := make([]Classified, 0, len(named))
	for _, n := range named {
		out = append(out, classifyOne(n))
	}
	return out
}

func classifyOne(n Named) Classified {
	// Step 1: GVK reclassification takes priority over name-based rules.
	if n.GVK != nil {
		group := n.GVK.Group
		if group == "" {
			group = "core"
		}
		return Classified{Named: n, Location: LocationGroupVersion, Group: group, Version: n.GVK.Version}
	}

	switch {
	case strings.HasPrefix(n.Name, commonPrefix):
		return Classified{Named: n, Location: LocationCommon}
	case strings.HasPrefix(n.Name, groupVersionPrefix):
		rest := strings.TrimPrefix(n.Name, groupVersionPrefix)
		group, version, ok := splitGroupVersion(rest)
		if !ok {
			return Classified{Named: n, Location: LocationOther}
		}
		return Classified{Named: n, Location: LocationGroupVersion, Group: group, Version: version}
	default:
		return Classified{Named: n, Location: LocationOther}
	}
}

// splitGroupVersion parses "<group>.<version>.<Type>" into (group,
// version, ok). The core API group's types are named
// "io.k8s.api.core.v1.Pod", i.e. "core" appears as a literal group
// segment, so no special case is needed for it.
func splitGroupVersion(rest string) (group, version string, ok bool) {
	parts := strings.Split(rest, ".")
	if len(parts) != 3 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// ExtractGVK reads the x-kubernetes-group-version-kind extension off a
// schema, if present, returning nil when absent or malformed.
func ExtractGVK(ext map[string]interface{}) *GVK {
	if ext == nil {
		return nil
	}
	raw, ok := ext[gvkExtensionKey]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case map[string]interface{}:
		return &GVK{
			Group:   stringField(v, "group"),
			Version: stringField(v, "version"),
			Kind:    stringField(v, "kind"),
		}
	case []interface{}:
		if len(v) == 0 {
			return nil
		}
		m, ok := v[0].(map[string]interface{})
		if !ok {
			return nil
		}
		return &GVK{
			Group:   stringField(m, "group"),
			Version: stringField(m, "version"),
			Kind:    stringField(m, "kind"),
		}
	default:
		return nil
	}
}

func stringField(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
