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

// Package schemastore builds and loads the merged, versioned schema
// bundle the validator consults at render time
// (<root>/.husako/types/k8s/_schema.json, spec §4.4).
package schemastore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	k8syaml "sigs.k8s.io/yaml"

	"husako/pkg/errkind"
	hschema "husako/pkg/schema"
)

// FormatVersion is the only schema store shape husako's producer writes
// and its consumer accepts (spec §4.4: "both the producer and the
// consumer must refuse any other value").
const FormatVersion = 2

// quantitySchemaName is the well-known Kubernetes Quantity schema the
// builder annotates with "format": "quantity" so the validator can
// dispatch to the quantity grammar instead of generic string validation
// (spec §4.4/§4.9).
const quantitySchemaName = "io.k8s.apimachinery.pkg.api.resource.Quantity"

const refPrefix = "#/components/schemas/"

// Store is the on-disk shape of _schema.json.
type Store struct {
	FormatVersion int                        `json:"version"`
	GVKIndex      map[string]string          `json:"gvk_index"`
	Schemas       map[string]json.RawMessage `json:"schemas"`
}

// Build merges every classified schema (Common, GroupVersion, and Other
// alike — the store serves runtime $ref resolution, which is broader
// than the set of schemas codegen emits a TypeScript binding for) into
// one Store: $ref values rewritten to bare schema names, a GVK index
// keyed "<group>/<version>:<Kind>" (core group omits its prefix, e.g.
// "v1:Pod"), and the Quantity schema tagged with "format": "quantity".
func Build(classified []hschema.Classified) (*Store, error) {
	store := &Store{
		FormatVersion: FormatVersion,
		GVKIndex:      map[string]string{},
		Schemas:       map[string]json.RawMessage{},
	}

	for _, c := range classified {
		raw, err := hschema.ToRawJSON(c.Schema)
		if err != nil {
			return nil, errkind.Wrap(errkind.TypeGen, c.Name, "rendering schema for the schema store", err)
		}
		rewriteRefs(raw)
		if c.Name == quantitySchemaName {
			raw["format"] = "quantity"
		}

		data, err := json.Marshal(raw)
		if err != nil {
			return nil, errkind.Wrap(errkind.TypeGen, c.Name, "marshaling schema store entry", err)
		}
		store.Schemas[c.Name] = data

		if c.GVK != nil {
			store.GVKIndex[gvkKey(*c.GVK)] = c.Name
		}
	}
	return store, nil
}

func gvkKey(gvk hschema.GVK) string {
	if gvk.Group == "" || gvk.Group == "core" {
		return fmt.Sprintf("%s:%s", gvk.Version, gvk.Kind)
	}
	return fmt.Sprintf("%s/%s:%s", gvk.Group, gvk.Version, gvk.Kind)
}

// rewriteRefs walks a raw schema tree in place, replacing every
// "$ref": "#/components/schemas/<Name>" with the bare "<Name>" (spec
// §4.4: "$ref values are rewritten to bare schema names").
func rewriteRefs(node interface{}) {
	switch v := node.(type) {
	case map[string]interface{}:
		if ref, ok := v["$ref"].(string); ok && strings.HasPrefix(ref, refPrefix) {
			v["$ref"] = strings.TrimPrefix(ref, refPrefix)
		}
		for _, child := range v {
			rewriteRefs(child)
		}
	case []interface{}:
		for _, child := range v {
			rewriteRefs(child)
		}
	}
}

// Marshal renders the store as indented JSON for
// <root>/.husako/types/k8s/_schema.json.
func (s *Store) Marshal() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// Load parses a previously-written _schema.json, refusing any format
// version but FormatVersion (spec §4.4).
func Load(data []byte) (*Store, error) {
	var s Store
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errkind.Wrap(errkind.Validation, "_schema.json", "parsing schema store", err)
	}
	if s.FormatVersion != FormatVersion {
		return nil, errkind.New(errkind.Validation, "_schema.json", fmt.Sprintf("unsupported schema store format version %d, expected %d", s.FormatVersion, FormatVersion))
	}
	return &s, nil
}

// SortedNames returns every schema name in the store, sorted, primarily
// for deterministic test assertions and debug output.
func (s *Store) SortedNames() []string {
	out := make([]string, 0, len(s.Schemas))
	for name := range s.Schemas {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Schema decodes and returns the raw schema document named name, for
// validator $ref resolution.
func (s *Store) Schema(name string) (map[string]interface{}, bool) {
	raw, ok := s.Schemas[name]
	if !ok {
		return nil, false
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false
	}
	return doc, true
}

// SchemaForGVK resolves apiVersion/kind to its schema document via the
// gvk_index, per the validator's GVK lookup step (spec §4.8).
func (s *Store) SchemaForGVK(apiVersion, kind string) (map[string]interface{}, bool) {
	name, ok := s.GVKIndex[apiVersion+":"+kind]
	if !ok {
		return nil, false
	}
	return s.Schema(name)
}

// SchemaYAML renders the named schema's raw JSON as YAML, for `husako
// debug --schema`. sigs.k8s.io/yaml round-trips through encoding/json
// rather than marshaling the raw bytes directly with gopkg.in/yaml.v3,
// so key order follows json.Marshal's field order rather than the
// store's own map iteration.
func (s *Store) SchemaYAML(name string) (string, error) {
	raw, ok := s.Schemas[name]
	if !ok {
		return "", errkind.New(errkind.Config, name, "no such schema in store")
	}
	out, err := k8syaml.JSONToYAML(raw)
	if err != nil {
		return "", errkind.Wrap(errkind.Config, name, "rendering schema as YAML", err)
	}
	return string(out), nil
}
