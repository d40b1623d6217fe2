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

// Package codegen turns classified OpenAPI schemas into the TypeScript
// declaration and JavaScript builder source the render pipeline's
// module resolver serves under "k8s/" and "helm/" (spec §4.3).
package codegen

import "github.com/getkin/kin-openapi/openapi3"

import hschema "husako/pkg/schema"

// skipSpecProperty/skipTopLevelProperty are the per-property method
// skip lists (spec §4.3): fields a builder exposes structurally (via
// its constructor or a dedicated accessor) rather than through a
// generated chainable setter.
var skipSpecProperty = map[string]bool{
	"apiVersion": true,
	"kind":       true,
	"metadata":   true,
	"status":     true,
}

var skipTopLevelProperty = map[string]bool{
	"apiVersion": true,
	"kind":       true,
	"metadata":   true,
	"spec":       true,
	"status":     true,
}

// HasBuilder reports whether s clears the builder heuristic: at least
// one property whose type is Ref(_) or Array(Ref(_)). Schemas with only
// primitives, maps, or arrays of primitives stay plain interfaces (spec
// §4.3).
func HasBuilder(s *openapi3.Schema, dialect hschema.Dialect) bool {
	if s == nil {
		return false
	}
	for _, propRef := range s.Properties {
		if hschema.PropertyTypeOf(propRef, dialect).IsRefLike() {
			return true
		}
	}
	return false
}

// podTemplateRefSuffix is the schema name suffix the pod-template
// shortcut looks for on a resource's spec.template property.
const podTemplateRefSuffix = "PodTemplateSpec"
