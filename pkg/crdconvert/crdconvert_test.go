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

package crdconvert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const clusterCRD = `
apiVersion: apiextensions.k8s.io/v1
kind: CustomResourceDefinition
metadata:
  name: clusters.postgresql.cnpg.io
spec:
  group: postgresql.cnpg.io
  names:
    kind: Cluster
  versions:
    - name: v1
      schema:
        openAPIV3Schema:
          type: object
          properties:
            spec:
              type: object
              properties:
                instances:
                  type: integer
                template:
                  type: object
                  properties:
                    metadata:
                      type: object
                      properties:
                        labels:
                          type: object
                          additionalProperties:
                            type: string
            status:
              type: object
              properties:
                conditions:
                  type: array
                  items:
                    type: object
                    properties:
                      type:
                        type: string
                      status:
                        type: string
`

func TestConvertRejectsNonCRDDocuments(t *testing.T) {
	_, err := Convert([]byte("apiVersion: v1\nkind: ConfigMap\n"))
	require.Error(t, err)
}

func TestConvertReversesGroupIntoPrefix(t *testing.T) {
	results, err := Convert([]byte(clusterCRD))
	require.NoError(t, err)

	var root *Result
	for i := range results {
		if results[i].Name == "io.cnpg.postgresql.v1.Cluster" {
			root = &results[i]
		}
	}
	require.NotNil(t, root, "expected root schema io.cnpg.postgresql.v1.Cluster among %v", names(results))
}

func TestConvertInjectsResourceFields(t *testing.T) {
	results, err := Convert([]byte(clusterCRD))
	require.NoError(t, err)

	root := find(t, results, "io.cnpg.postgresql.v1.Cluster")
	props, _ := root.Schema["properties"].(map[string]interface{})
	require.NotNil(t, props)
	assert.Contains(t, props, "apiVersion")
	assert.Contains(t, props, "kind")
	assert.Contains(t, props, "metadata")

	gvkList, ok := root.Schema["x-kubernetes-group-version-kind"].([]interface{})
	require.True(t, ok)
	gvk := gvkList[0].(map[string]interface{})
	assert.Equal(t, "postgresql.cnpg.io", gvk["group"])
	assert.Equal(t, "v1", gvk["version"])
	assert.Equal(t, "Cluster", gvk["kind"])
}

func TestConvertLiftsTopLevelSpecAndStatus(t *testing.T) {
	results, err := Convert([]byte(clusterCRD))
	require.NoError(t, err)

	root := find(t, results, "io.cnpg.postgresql.v1.Cluster")
	props, _ := root.Schema["properties"].(map[string]interface{})

	specRef, ok := props["spec"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "#/components/schemas/io.cnpg.postgresql.v1.ClusterSpec", specRef["$ref"])

	statusRef, ok := props["status"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "#/components/schemas/io.cnpg.postgresql.v1.ClusterStatus", statusRef["$ref"])

	require.Contains(t, names(results), "io.cnpg.postgresql.v1.ClusterSpec")
	require.Contains(t, names(results), "io.cnpg.postgresql.v1.ClusterStatus")
}

func TestConvertLiftsNestedObjectsTransitively(t *testing.T) {
	results, err := Convert([]byte(clusterCRD))
	require.NoError(t, err)

	specTemplate := find(t, results, "io.cnpg.postgresql.v1.ClusterSpecTemplate")
	props, _ := specTemplate.Schema["properties"].(map[string]interface{})
	metaRef, ok := props["metadata"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "#/components/schemas/io.cnpg.postgresql.v1.ClusterSpecTemplateMetadata", metaRef["$ref"])

	meta := find(t, results, "io.cnpg.postgresql.v1.ClusterSpecTemplateMetadata")
	metaProps, _ := meta.Schema["properties"].(map[string]interface{})
	// labels has additionalProperties, not populated properties: it is
	// not itself extractable and stays inline.
	labels, ok := metaProps["labels"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "object", labels["type"])
}

func TestConvertLiftsArrayOfObjectItems(t *testing.T) {
	results, err := Convert([]byte(clusterCRD))
	require.NoError(t, err)

	status := find(t, results, "io.cnpg.postgresql.v1.ClusterStatus")
	props, _ := status.Schema["properties"].(map[string]interface{})
	conditions, ok := props["conditions"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "array", conditions["type"])
	items, ok := conditions["items"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "#/components/schemas/io.cnpg.postgresql.v1.ClusterStatusConditions", items["$ref"])

	require.Contains(t, names(results), "io.cnpg.postgresql.v1.ClusterStatusConditions")
}

func TestReverseGroupSingleSegment(t *testing.T) {
	assert.Equal(t, "io", reverseGroup("io"))
	assert.Equal(t, "io.cert-manager", reverseGroup("cert-manager.io"))
}

func find(t *testing.T, results []Result, name string) Result {
	t.Helper()
	for _, r := range results {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("schema %q not found among %v", name, names(results))
	return Result{}
}

func names(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Name
	}
	return out
}
