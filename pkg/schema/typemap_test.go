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
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
)

func TestPropertyTypeOfRefTakesPriority(t *testing.T) {
	ref := openapi3.NewSchemaRef("#/components/schemas/io.k8s.api.core.v1.PodSpec", openapi3.NewObjectSchema())
	pt := PropertyTypeOf(ref, DialectKubernetes)
	assert.Equal(t, KindRef, pt.Kind)
	assert.Equal(t, "io.k8s.api.core.v1.PodSpec", pt.RefName)
}

func TestPropertyTypeOfIntOrString(t *testing.T) {
	s := openapi3.NewStringSchema()
	s.Extensions = map[string]interface{}{"x-kubernetes-int-or-string": true}
	pt := PropertyTypeOf(openapi3.NewSchemaRef("", s), DialectKubernetes)
	assert.Equal(t, KindIntOrString, pt.Kind)
}

func TestPropertyTypeOfPrimitives(t *testing.T) {
	cases := []struct {
		s    *openapi3.Schema
		kind PropertyKind
	}{
		{openapi3.NewStringSchema(), KindString},
		{openapi3.NewIntegerSchema(), KindNumber},
		{openapi3.NewFloat64Schema(), KindNumber},
		{openapi3.NewBoolSchema(), KindBoolean},
	}
	for _, c := range cases {
		pt := PropertyTypeOf(openapi3.NewSchemaRef("", c.s), DialectKubernetes)
		assert.Equal(t, c.kind, pt.Kind)
	}
}

func TestPropertyTypeOfArray(t *testing.T) {
	arr := openapi3.NewArraySchema()
	arr.Items = openapi3.NewSchemaRef("", openapi3.NewStringSchema())
	pt := PropertyTypeOf(openapi3.NewSchemaRef("", arr), DialectKubernetes)
	assert.Equal(t, KindArray, pt.Kind)
	assert.Equal(t, KindString, pt.Elem.Kind)
}

func TestPropertyTypeOfArrayOfRefIsRefLike(t *testing.T) {
	arr := openapi3.NewArraySchema()
	arr.Items = openapi3.NewSchemaRef("#/components/schemas/io.k8s.api.core.v1.Container", nil)
	pt := PropertyTypeOf(openapi3.NewSchemaRef("", arr), DialectKubernetes)
	assert.True(t, pt.IsRefLike())
}

func TestPropertyTypeOfMapViaAdditionalProperties(t *testing.T) {
	obj := openapi3.NewObjectSchema()
	obj.AdditionalProperties = openapi3.AdditionalProperties{
		Schema: openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
	}
	pt := PropertyTypeOf(openapi3.NewSchemaRef("", obj), DialectKubernetes)
	assert.Equal(t, KindMap, pt.Kind)
	assert.Equal(t, KindString, pt.Elem.Kind)
}

func TestPropertyTypeOfBooleanAdditionalPropertiesIsMapAny(t *testing.T) {
	obj := openapi3.NewObjectSchema()
	yes := true
	obj.AdditionalProperties = openapi3.AdditionalProperties{Has: &yes}
	pt := PropertyTypeOf(openapi3.NewSchemaRef("", obj), DialectHelm)
	assert.Equal(t, KindMap, pt.Kind)
	assert.Equal(t, KindAny, pt.Elem.Kind)
}

func TestPropertyTypeOfObjectWithOnlyPropertiesIsAny(t *testing.T) {
	obj := openapi3.NewObjectSchema()
	obj.Properties = openapi3.Schemas{"foo": openapi3.NewSchemaRef("", openapi3.NewStringSchema())}
	pt := PropertyTypeOf(openapi3.NewSchemaRef("", obj), DialectKubernetes)
	assert.Equal(t, KindAny, pt.Kind)
}

func TestPropertyTypeOfHelmRefPrefixes(t *testing.T) {
	for _, prefix := range []string{"#/$defs/", "#/definitions/"} {
		pt := PropertyTypeOf(openapi3.NewSchemaRef(prefix+"Values", nil), DialectHelm)
		assert.Equal(t, KindRef, pt.Kind)
		assert.Equal(t, "Values", pt.RefName)
	}
}

func TestPropertyTypeOfHelmOneOfCollapsesToAny(t *testing.T) {
	s := &openapi3.Schema{
		OneOf: openapi3.SchemaRefs{openapi3.NewSchemaRef("", openapi3.NewStringSchema())},
	}
	pt := PropertyTypeOf(openapi3.NewSchemaRef("", s), DialectHelm)
	assert.Equal(t, KindAny, pt.Kind)
}
