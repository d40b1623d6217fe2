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

import (
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// Dialect distinguishes the two schema families the emitter handles:
// Kubernetes OpenAPI ($ref -> #/components/schemas/Name) and Helm
// values.schema.json JSON Schema ($ref -> #/$defs/Name or
// #/definitions/Name, with oneOf/anyOf/enum collapsing — spec §4.3).
type Dialect int

const (
	DialectKubernetes Dialect = iota
	DialectHelm
)

// PropertyTypeOf maps an OpenAPI/JSON-Schema property schema ref to a
// PropertyType following the strict priority order of spec §4.3:
//
//  1. $ref -> Ref(last path segment)
//  2. x-kubernetes-int-or-string: true -> IntOrString
//  3. type: string/integer|number/boolean -> String/Number/Boolean
//  4. type: array -> Array(type-of-items)
//  5. type: object with additionalProperties -> Map(type-of-value)
//  6. type: object with only properties -> Any
//  7. anything else -> Any
//
// For DialectHelm: ref is a JSON-Schema $ref, enum on a string collapses
// to String (no literal union), oneOf/anyOf collapse to Any, and a
// boolean additionalProperties: true collapses to Map(Any).
func PropertyTypeOf(ref *openapi3.SchemaRef, dialect Dialect) PropertyType {
	if ref == nil {
		return PropertyType{Kind: KindAny}
	}
	if ref.Ref != "" {
		return PropertyType{Kind: KindRef, RefName: refName(ref.Ref, dialect)}
	}
	s := ref.Value
	if s == nil {
		return PropertyType{Kind: KindAny}
	}

	if dialect == DialectHelm && (len(s.OneOf) > 0 || len(s.AnyOf) > 0) {
		return PropertyType{Kind: KindAny}
	}

	if isIntOrString(s) {
		return PropertyType{Kind: KindIntOrString}
	}

	switch {
	case s.Type != nil && s.Type.Is("string"):
		return PropertyType{Kind: KindString}
	case s.Type != nil && (s.Type.Is("integer") || s.Type.Is("number")):
		return PropertyType{Kind: KindNumber}
	case s.Type != nil && s.Type.Is("boolean"):
		return PropertyType{Kind: KindBoolean}
	case s.Type != nil && s.Type.Is("array"):
		elem := PropertyTypeOf(s.Items, dialect)
		return PropertyType{Kind: KindArray, Elem: &elem}
	case s.Type != nil && s.Type.Is("object"):
		return objectPropertyType(s, dialect)
	default:
		return PropertyType{Kind: KindAny}
	}
}

func objectPropertyType(s *openapi3.Schema, dialect Dialect) PropertyType {
	if s.AdditionalProperties.Has != nil {
		if *s.AdditionalProperties.Has {
			// boolean additionalProperties: true -> Map(Any), both dialects.
			any := PropertyType{Kind: KindAny}
			return PropertyType{Kind: KindMap, Elem: &any}
		}
	}
	if s.AdditionalProperties.Schema != nil {
		elem := PropertyTypeOf(s.AdditionalProperties.Schema, dialect)
		return PropertyType{Kind: KindMap, Elem: &elem}
	}
	// Object with only properties (or no constraints at all): opaque at
	// this level. Inline extraction is handled upstream (CRD converter
	// for K8s, codegen extraction for Helm).
	return PropertyType{Kind: KindAny}
}

func isIntOrString(s *openapi3.Schema) bool {
	if s.Extensions == nil {
		return false
	}
	v, ok := s.Extensions["x-kubernetes-int-or-string"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

func refName(ref string, dialect Dialect) string {
	prefixes := []string{"#/components/schemas/"}
	if dialect == DialectHelm {
		prefixes = []string{"#/$defs/", "#/definitions/"}
	}
	for _, p := range prefixes {
		if strings.HasPrefix(ref, p) {
			return strings.TrimPrefix(ref, p)
		}
	}
	if idx := strings.LastIndex(ref, "/"); idx >= 0 {
		return ref[idx+1:]
	}
	return ref
}

// HasEnumLiteral reports whether a string-typed schema has an enum that
// should be preserved as a literal union. Under DialectHelm, enum on
// strings always collapses to plain String (spec §4.3); under
// DialectKubernetes husako does not emit literal unions at all, so this
// always returns false there too. Nothing in the module calls it.
func HasEnumLiteral(_ *openapi3.Schema, _ Dialect) bool {
	return false
}
