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

// Package schema holds husako's in-memory representation of an OpenAPI
// (or CRD-derived) schema tree, the property-type mapping, and the
// classifier that assigns each schema a code-generation location.
//
// Schema trees are large, effectively-immutable values that move through
// the pipeline by ownership transfer: the resolver produces a
// map[DiscoveryKey]Bundle, the merge phase combines the bundles into one
// map[string]Bundle and flattens that into a []Named list, and the
// classifier/emitter consume that in turn. No stage retains a mutable reference into a
// prior stage's map (Design Notes §9, "ownership of schema trees").
package schema

import "github.com/getkin/kin-openapi/openapi3"

// GVK identifies a Kubernetes resource type.
type GVK struct {
	Group   string
	Version string
	Kind    string
}

// Named pairs a schema name with its OpenAPI schema and optional GVK,
// the unit the classifier and emitter operate on.
type Named struct {
	Name   string
	Schema *openapi3.Schema
	GVK    *GVK
}

// Bundle is what a single source-resolver strategy produces for one
// DiscoveryKey: every schema declared by that group-version's OpenAPI
// document, keyed by schema name.
type Bundle map[string]*openapi3.Schema

// Location is the code-generation destination assigned to a schema by
// the classifier (spec §3).
type Location int

const (
	// LocationOther means the schema is not emitted as a module.
	LocationOther Location = iota
	// LocationCommon means the schema belongs to the shared
	// apimachinery module.
	LocationCommon
	// LocationGroupVersion means the schema belongs to a per
	// group-version module.
	LocationGroupVersion
)

func (l Location) String() string {
	switch l {
	case LocationCommon:
		return "common"
	case LocationGroupVersion:
		return "group-version"
	default:
		return "other"
	}
}

// Classified is a schema together with its assigned Location and (for
// LocationGroupVersion) the group/version it was filed under.
type Classified struct {
	Named
	Location Location
	Group    string
	Version  string
}

// PropertyKind is one of the property types described in spec §3.
type PropertyKind int

const (
	KindAny PropertyKind = iota
	KindString
	KindNumber
	KindBoolean
	KindIntOrString
	KindArray
	KindMap
	KindRef
)

// PropertyType is the resolved type of a single schema property:
// String, Number, Boolean, IntOrString, Array(T), Map(T), Ref(Name), or Any.
type PropertyType struct {
	Kind PropertyKind
	// Elem is the element/value type for Array and Map.
	Elem *PropertyType
	// RefName is the target schema name for Ref.
	RefName string
}

func (t PropertyType) String() string {
	switch t.Kind {
	case KindString:
		return "String"
	case KindNumber:
		return "Number"
	case KindBoolean:
		return "Boolean"
	case KindIntOrString:
		return "IntOrString"
	case KindArray:
		return "Array<" + t.Elem.String() + ">"
	case KindMap:
		return "Map<" + t.Elem.String() + ">"
	case KindRef:
		return "Ref(" + t.RefName + ")"
	default:
		return "Any"
	}
}

// IsRefLike reports whether t is Ref(_) or Array(Ref(_)), the builder
// heuristic's trigger condition (spec §4.3).
func (t PropertyType) IsRefLike() bool {
	if t.Kind == KindRef {
		return true
	}
	if t.Kind == KindArray && t.Elem != nil && t.Elem.Kind == KindRef {
		return true
	}
	return false
}
