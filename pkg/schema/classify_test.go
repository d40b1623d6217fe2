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

	"github.com/stretchr/testify/assert"
)

func TestClassifyCommon(t *testing.T) {
	got := Classify([]Named{{Name: "io.k8s.apimachinery.pkg.apis.meta.v1.ObjectMeta"}})
	assert.Equal(t, LocationCommon, got[0].Location)
}

func TestClassifyGroupVersionByName(t *testing.T) {
	got := Classify([]Named{{Name: "io.k8s.api.apps.v1.Deployment"}})
	assert.Equal(t, LocationGroupVersion, got[0].Location)
	assert.Equal(t, "apps", got[0].Group)
	assert.Equal(t, "v1", got[0].Version)
}

func TestClassifyCoreGroupVersionByName(t *testing.T) {
	got := Classify([]Named{{Name: "io.k8s.api.core.v1.Pod"}})
	assert.Equal(t, LocationGroupVersion, got[0].Location)
	assert.Equal(t, "core", got[0].Group)
}

func TestClassifyOther(t *testing.T) {
	got := Classify([]Named{{Name: "io.cnpg.postgresql.v1.Cluster"}})
	assert.Equal(t, LocationOther, got[0].Location)
}

func TestClassifyGVKReclassifiesNonStandardName(t *testing.T) {
	// The critical invariant: a CRD schema named outside io.k8s.api.
	// but carrying a GVK must become LocationGroupVersion, not Other.
	got := Classify([]Named{{
		Name: "io.cnpg.postgresql.v1.Cluster",
		GVK:  &GVK{Group: "postgresql.cnpg.io", Version: "v1", Kind: "Cluster"},
	}})
	assert.Equal(t, LocationGroupVersion, got[0].Location)
	assert.Equal(t, "postgresql.cnpg.io", got[0].Group)
	assert.Equal(t, "v1", got[0].Version)
}

func TestClassifyGVKDefaultsGroupToCore(t *testing.T) {
	got := Classify([]Named{{
		Name: "some.other.name",
		GVK:  &GVK{Group: "", Version: "v1", Kind: "Widget"},
	}})
	assert.Equal(t, "core", got[0].Group)
}

func TestExtractGVKFromMapExtension(t *testing.T) {
	gvk := ExtractGVK(map[string]interface{}{
		"x-kubernetes-group-version-kind": map[string]interface{}{
			"group": "apps", "version": "v1", "kind": "Deployment",
		},
	})
	assert.NotNil(t, gvk)
	assert.Equal(t, "apps", gvk.Group)
}

func TestExtractGVKFromListExtension(t *testing.T) {
	gvk := ExtractGVK(map[string]interface{}{
		"x-kubernetes-group-version-kind": []interface{}{
			map[string]interface{}{"group": "apps", "version": "v1", "kind": "Deployment"},
		},
	})
	assert.NotNil(t, gvk)
	assert.Equal(t, "Deployment", gvk.Kind)
}

func TestExtractGVKAbsent(t *testing.T) {
	assert.Nil(t, ExtractGVK(nil))
	assert.Nil(t, ExtractGVK(map[string]interface{}{}))
}
