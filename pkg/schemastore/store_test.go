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

package schemastore

import (
	"encoding/json"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hschema "husako/pkg/schema"
)

func schemaWithRef(refTarget string) *openapi3.Schema {
	objType := openapi3.Types{"object"}
	return &openapi3.Schema{
		Type: &objType,
		Properties: openapi3.Schemas{
			"metadata": {Ref: "#/components/schemas/" + refTarget},
		},
	}
}

func TestBuildRewritesRefsToBareNames(t *testing.T) {
	classified := []hschema.Classified{
		{Named: hschema.Named{Name: "io.k8s.api.apps.v1.Deployment", Schema: schemaWithRef("io.k8s.apimachinery.pkg.apis.meta.v1.ObjectMeta")},
			Location: hschema.LocationGroupVersion, Group: "apps", Version: "v1"},
	}
	store, err := Build(classified)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(store.Schemas["io.k8s.api.apps.v1.Deployment"], &raw))
	metadata := raw["properties"].(map[string]interface{})["metadata"].(map[string]interface{})
	assert.Equal(t, "io.k8s.apimachinery.pkg.apis.meta.v1.ObjectMeta", metadata["$ref"])
}

func TestBuildIndexesGVKWithCoreGroupOmitted(t *testing.T) {
	classified := []hschema.Classified{
		{
			Named:    hschema.Named{Name: "io.k8s.api.core.v1.Pod", Schema: &openapi3.Schema{}, GVK: &hschema.GVK{Group: "", Version: "v1", Kind: "Pod"}},
			Location: hschema.LocationGroupVersion, Group: "core", Version: "v1",
		},
		{
			Named:    hschema.Named{Name: "io.k8s.api.apps.v1.Deployment", Schema: &openapi3.Schema{}, GVK: &hschema.GVK{Group: "apps", Version: "v1", Kind: "Deployment"}},
			Location: hschema.LocationGroupVersion, Group: "apps", Version: "v1",
		},
	}
	store, err := Build(classified)
	require.NoError(t, err)
	assert.Equal(t, "io.k8s.api.core.v1.Pod", store.GVKIndex["v1:Pod"])
	assert.Equal(t, "io.k8s.api.apps.v1.Deployment", store.GVKIndex["apps/v1:Deployment"])
}

func TestBuildAnnotatesQuantityWithFormat(t *testing.T) {
	classified := []hschema.Classified{
		{Named: hschema.Named{Name: quantitySchemaName, Schema: &openapi3.Schema{}}, Location: hschema.LocationCommon},
	}
	store, err := Build(classified)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(store.Schemas[quantitySchemaName], &raw))
	assert.Equal(t, "quantity", raw["format"])
}

func TestMarshalLoadRoundTrip(t *testing.T) {
	classified := []hschema.Classified{
		{Named: hschema.Named{Name: "io.k8s.api.core.v1.Pod", Schema: &openapi3.Schema{}}, Location: hschema.LocationGroupVersion, Group: "core", Version: "v1"},
	}
	store, err := Build(classified)
	require.NoError(t, err)

	data, err := store.Marshal()
	require.NoError(t, err)

	loaded, err := Load(data)
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, loaded.FormatVersion)
	assert.Contains(t, loaded.SortedNames(), "io.k8s.api.core.v1.Pod")
}

func TestLoadRejectsWrongFormatVersion(t *testing.T) {
	_, err := Load([]byte(`{"version": 1, "gvk_index": {}, "schemas": {}}`))
	assert.Error(t, err)
}
