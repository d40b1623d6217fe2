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

package codegen

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	hschema "husako/pkg/schema"
)

// ExtractedHelmSchema is one named schema produced by ExtractInline: the
// chart's root (always named "Values") plus one schema per inline
// object lifted out of it.
type ExtractedHelmSchema struct {
	Name   string
	Schema map[string]interface{}
}

// ExtractInline performs the Helm codegen dialect's inline-object
// extraction (spec §4.3: "inline objects with properties are extracted
// during codegen, no separate converter step"). Unlike the CRD
// converter, there is no API group to reverse into a naming prefix, so
// extracted names are simply "Values<PascalCaseHelm(path)>", and the
// root schema is always named "Values".
func ExtractInline(valuesSchemaJSON []byte) ([]ExtractedHelmSchema, error) {
	var root map[string]interface{}
	if err := json.Unmarshal(valuesSchemaJSON, &root); err != nil {
		return nil, fmt.Errorf("parsing values.schema.json: %w", err)
	}

	extracted := map[string]map[string]interface{}{}
	lifted := deepCopyMap(root)
	liftHelmNested(lifted, nil, extracted)

	out := []ExtractedHelmSchema{{Name: "Values", Schema: lifted}}
	names := make([]string, 0, len(extracted))
	for name := range extracted {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out = append(out, ExtractedHelmSchema{Name: name, Schema: extracted[name]})
	}
	return out, nil
}

func liftHelmNested(node map[string]interface{}, path []string, extracted map[string]map[string]interface{}) {
	props, _ := node["properties"].(map[string]interface{})
	if props == nil {
		return
	}
	for propName, raw := range props {
		child, _ := raw.(map[string]interface{})
		if child == nil {
			continue
		}
		childPath := append(append([]string{}, path...), propName)

		if isHelmExtractableObject(child) {
			props[propName] = liftHelmObject(child, childPath, extracted)
			continue
		}
		if isHelmArrayOfExtractableObjects(child) {
			props[propName] = liftHelmArray(child, childPath, extracted)
			continue
		}
	}
}

func liftHelmObject(child map[string]interface{}, path []string, extracted map[string]map[string]interface{}) map[string]interface{} {
	name := helmExtractedName(path)
	lifted := deepCopyMap(child)
	liftHelmNested(lifted, path, extracted)
	extracted[name] = lifted
	return helmRefWithDescription(name, child)
}

func liftHelmArray(child map[string]interface{}, path []string, extracted map[string]map[string]interface{}) map[string]interface{} {
	items, _ := child["items"].(map[string]interface{})
	name := helmExtractedName(path)
	lifted := deepCopyMap(items)
	liftHelmNested(lifted, path, extracted)
	extracted[name] = lifted

	out := deepCopyMap(child)
	out["items"] = helmRefWithDescription(name, items)
	return out
}

func helmRefWithDescription(name string, original map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{"$ref": "#/$defs/" + name}
	if desc, ok := original["description"].(string); ok && desc != "" {
		out["description"] = desc
	}
	return out
}

func isHelmExtractableObject(s map[string]interface{}) bool {
	if t, _ := s["type"].(string); t != "object" {
		return false
	}
	props, _ := s["properties"].(map[string]interface{})
	return len(props) > 0
}

func isHelmArrayOfExtractableObjects(s map[string]interface{}) bool {
	if t, _ := s["type"].(string); t != "array" {
		return false
	}
	items, _ := s["items"].(map[string]interface{})
	return items != nil && isHelmExtractableObject(items)
}

// helmExtractedName builds "Values<PascalCaseHelm(path)>", using the
// Helm dialect's PascalCase variant that additionally splits on "."
// (spec §4.3).
func helmExtractedName(path []string) string {
	return "Values" + hschema.PascalCaseHelm(strings.Join(path, "_"))
}

func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}
