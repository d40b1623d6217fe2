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

// Package crdconvert turns a CustomResourceDefinition YAML stream into
// the same OpenAPI v3 schema shape husako's classifier and codegen
// already understand for built-in Kubernetes types (spec §4.2).
//
// CRDs embed their validation schema inline under
// spec.versions[].schema.openAPIV3Schema, with every nested object
// type written out in place rather than split into named, $ref'd
// definitions the way the Kubernetes OpenAPI document does it. The
// converter restores that shape: it lifts every nested object (and
// array-of-object) property into its own named schema, transitively,
// and replaces the lift site with a $ref.
package crdconvert

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"husako/pkg/errkind"
	hschema "husako/pkg/schema"
)

const (
	crdAPIVersion = "apiextensions.k8s.io/v1"
	crdKind       = "CustomResourceDefinition"
)

// objectMetaRef is the well-known Kubernetes ObjectMeta schema every
// injected "metadata" property points at.
const objectMetaRef = "io.k8s.apimachinery.pkg.apis.meta.v1.ObjectMeta"

// Result is one named schema produced by Convert, still in raw
// map-of-interfaces form. Name follows the "<reversed-group>.<version>.<Type>"
// convention the Kubernetes OpenAPI document itself uses, so the
// output slots directly into the classifier (spec §3/§4.2).
type Result struct {
	Name   string
	Schema map[string]interface{}
}

// Group is every schema produced from a single CRD version: the root
// resource schema plus every schema transitively extracted from it.
// The Source Resolver's Git/File CRD strategies use this to bucket
// results by the synthetic DiscoveryKey "apis/<group>/<version>"
// (spec §4.1), something the flat Result list Convert returns does not
// preserve once multiple CRD versions are merged together.
type Group struct {
	Group   string
	Version string
	Kind    string
	Results []Result
}

// Convert parses a multi-document CRD YAML stream and returns one
// Result per schema produced: one top-level resource schema per CRD
// version, plus one additional schema per extracted nested object.
//
// Non-CRD documents (any document whose apiVersion/kind does not match
// apiextensions.k8s.io/v1 CustomResourceDefinition) are skipped. If the
// stream contains zero CRDs after filtering, Convert fails: a source
// declared as a CRD file that defines no CRD is a configuration
// mistake, not an empty-but-valid result.
func Convert(data []byte) ([]Result, error) {
	docs, err := decodeDocuments(data)
	if err != nil {
		return nil, err
	}

	crds := make([]map[string]interface{}, 0, len(docs))
	for _, doc := range docs {
		if stringField(doc, "apiVersion") == crdAPIVersion && stringField(doc, "kind") == crdKind {
			crds = append(crds, doc)
		}
	}
	if len(crds) == 0 {
		return nil, errkind.New(errkind.Fetch, "crdconvert", "no CustomResourceDefinition document found in CRD source")
	}

	var results []Result
	for _, crd := range crds {
		groups, err := convertOne(crd)
		if err != nil {
			return nil, err
		}
		for _, g := range groups {
			results = append(results, g.Results...)
		}
	}
	return results, nil
}

// ConvertGrouped is Convert but preserves, for each CRD version, the
// group/version/kind it was produced from (see Group).
func ConvertGrouped(data []byte) ([]Group, error) {
	docs, err := decodeDocuments(data)
	if err != nil {
		return nil, err
	}

	crds := make([]map[string]interface{}, 0, len(docs))
	for _, doc := range docs {
		if stringField(doc, "apiVersion") == crdAPIVersion && stringField(doc, "kind") == crdKind {
			crds = append(crds, doc)
		}
	}
	if len(crds) == 0 {
		return nil, errkind.New(errkind.Fetch, "crdconvert", "no CustomResourceDefinition document found in CRD source")
	}

	var groups []Group
	for _, crd := range crds {
		g, err := convertOne(crd)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g...)
	}
	return groups, nil
}

func decodeDocuments(data []byte) ([]map[string]interface{}, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var docs []map[string]interface{}
	for {
		var doc map[string]interface{}
		err := dec.Decode(&doc)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errkind.Wrap(errkind.Fetch, "crdconvert", "parsing CRD YAML document", err)
		}
		if doc == nil {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func convertOne(crd map[string]interface{}) ([]Group, error) {
	spec, _ := crd["spec"].(map[string]interface{})
	if spec == nil {
		return nil, errkind.New(errkind.Fetch, "crdconvert", "CustomResourceDefinition has no spec")
	}
	group := stringField(spec, "group")
	names, _ := spec["names"].(map[string]interface{})
	kind := stringField(names, "kind")
	if group == "" || kind == "" {
		return nil, errkind.New(errkind.Fetch, "crdconvert", "CustomResourceDefinition spec is missing group or names.kind")
	}
	prefix := reverseGroup(group)

	versions, _ := spec["versions"].([]interface{})
	var groups []Group
	for _, v := range versions {
		vm, _ := v.(map[string]interface{})
		if vm == nil {
			continue
		}
		version := stringField(vm, "name")
		schemaBlock, _ := vm["schema"].(map[string]interface{})
		openAPIV3, _ := schemaBlock["openAPIV3Schema"].(map[string]interface{})
		if version == "" || openAPIV3 == nil {
			continue
		}

		extracted := map[string]map[string]interface{}{}
		root := deepCopyMap(openAPIV3)
		liftNested(root, prefix, version, kind, nil, extracted)
		injectResourceFields(root, group, version, kind)

		rootName := fmt.Sprintf("%s.%s.%s", prefix, version, kind)
		results := []Result{{Name: rootName, Schema: root}}
		for name, lifted := range extracted {
			results = append(results, Result{Name: name, Schema: lifted})
		}
		groups = append(groups, Group{Group: group, Version: version, Kind: kind, Results: results})
	}
	return groups, nil
}

// liftNested walks node's "properties" map, replacing every extractable
// child (an object with populated properties, or an array whose items
// are such an object) with a $ref into extracted, recursing into the
// lifted schema's own properties so the extraction is transitive.
func liftNested(node map[string]interface{}, prefix, version, kind string, path []string, extracted map[string]map[string]interface{}) {
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

		if isExtractableObject(child) {
			props[propName] = liftObject(child, prefix, version, kind, childPath, extracted)
			continue
		}
		if isArrayOfExtractableObjects(child) {
			props[propName] = liftArray(child, prefix, version, kind, childPath, extracted)
			continue
		}
	}
}

func liftObject(child map[string]interface{}, prefix, version, kind string, path []string, extracted map[string]map[string]interface{}) map[string]interface{} {
	name := extractedName(prefix, version, kind, path)
	lifted := deepCopyMap(child)
	liftNested(lifted, prefix, version, kind, path, extracted)
	extracted[name] = lifted
	return refWithDescription(name, child)
}

func liftArray(child map[string]interface{}, prefix, version, kind string, path []string, extracted map[string]map[string]interface{}) map[string]interface{} {
	items, _ := child["items"].(map[string]interface{})
	name := extractedName(prefix, version, kind, path)
	lifted := deepCopyMap(items)
	liftNested(lifted, prefix, version, kind, path, extracted)
	extracted[name] = lifted

	out := deepCopyMap(child)
	out["items"] = refWithDescription(name, items)
	return out
}

func refWithDescription(name string, original map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{"$ref": "#/components/schemas/" + name}
	if desc, ok := original["description"].(string); ok && desc != "" {
		out["description"] = desc
	}
	return out
}

func isExtractableObject(s map[string]interface{}) bool {
	if stringField(s, "type") != "object" {
		return false
	}
	props, _ := s["properties"].(map[string]interface{})
	return len(props) > 0
}

func isArrayOfExtractableObjects(s map[string]interface{}) bool {
	if stringField(s, "type") != "array" {
		return false
	}
	items, _ := s["items"].(map[string]interface{})
	return items != nil && isExtractableObject(items)
}

// extractedName builds "<prefix>.<version>.<Kind><PascalCase(path)>".
// path is the chain of raw property names from the resource root to
// this lift site; joined with "_" before PascalCase so that multi-word
// camelCase property names still split correctly at segment
// boundaries (spec §4.2).
func extractedName(prefix, version, kind string, path []string) string {
	suffix := hschema.PascalCase(strings.Join(path, "_"))
	return fmt.Sprintf("%s.%s.%s%s", prefix, version, kind, suffix)
}

// injectResourceFields adds the standard apiVersion/kind/metadata
// properties every Kubernetes resource (native or CRD-defined) carries,
// plus the x-kubernetes-group-version-kind extension the classifier
// uses to place the schema under its group/version regardless of the
// name it was given (spec §3's GVK-reclassification invariant).
func injectResourceFields(root map[string]interface{}, group, version, kind string) {
	props, _ := root["properties"].(map[string]interface{})
	if props == nil {
		props = map[string]interface{}{}
	}
	props["apiVersion"] = map[string]interface{}{"type": "string"}
	props["kind"] = map[string]interface{}{"type": "string"}
	props["metadata"] = map[string]interface{}{"$ref": "#/components/schemas/" + objectMetaRef}
	root["properties"] = props
	root["type"] = "object"
	root["x-kubernetes-group-version-kind"] = []interface{}{
		map[string]interface{}{"group": group, "version": version, "kind": kind},
	}
}

// reverseGroup turns "cert-manager.io" into "io.cert-manager", matching
// the reversed-DNS convention the Kubernetes OpenAPI document uses for
// every schema name (spec §4.2).
func reverseGroup(group string) string {
	parts := strings.Split(group, ".")
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}

func stringField(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
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

// SortedNames returns the Results sorted by Name, for deterministic
// downstream processing (schema store builds and golden-file tests
// both depend on stable ordering).
func SortedNames(results []Result) []Result {
	out := append([]Result{}, results...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
