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

package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"husako/pkg/core/config"
)

const testCRD = `
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
`

func writeProject(t *testing.T, crd string) (string, *config.Project) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "crd.yaml"), []byte(crd), 0o644))
	p := config.New()
	p.Resources["cnpg"] = config.ResourceSource{Source: config.ResourceFile, Path: "crd.yaml"}
	return root, p
}

func TestGenerateWritesK8sModulesAndSchemaStore(t *testing.T) {
	root, p := writeProject(t, testCRD)

	result, err := Generate(context.Background(), p, Options{Root: root, HusakoVersion: "0.1.0"})
	require.NoError(t, err)
	assert.False(t, result.SkippedK8s)

	schemaPath := filepath.Join(root, ".husako", "types", "k8s", "_schema.json")
	assert.FileExists(t, schemaPath)

	moduleDTS := filepath.Join(root, ".husako", "types", "k8s", "postgresql.cnpg.io", "v1.d.ts")
	assert.FileExists(t, moduleDTS)

	assert.FileExists(t, filepath.Join(root, ".husako", "types", "husako", "test.d.ts"))
	assert.FileExists(t, filepath.Join(root, ".husako", "types", "husako", "_base.d.ts"))
	assert.FileExists(t, filepath.Join(root, "tsconfig.json"))

	lockPath := filepath.Join(root, "husako.lock")
	assert.FileExists(t, lockPath)
}

func TestGenerateSecondRunSkipsUnchangedK8s(t *testing.T) {
	root, p := writeProject(t, testCRD)

	_, err := Generate(context.Background(), p, Options{Root: root, HusakoVersion: "0.1.0"})
	require.NoError(t, err)

	result, err := Generate(context.Background(), p, Options{Root: root, HusakoVersion: "0.1.0"})
	require.NoError(t, err)
	assert.True(t, result.SkippedK8s)
}

func TestGenerateRegeneratesWhenCRDContentChanges(t *testing.T) {
	root, p := writeProject(t, testCRD)

	_, err := Generate(context.Background(), p, Options{Root: root, HusakoVersion: "0.1.0"})
	require.NoError(t, err)

	changed := testCRD + "\n# a trailing comment changing the file's bytes\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "crd.yaml"), []byte(changed), 0o644))

	result, err := Generate(context.Background(), p, Options{Root: root, HusakoVersion: "0.1.0"})
	require.NoError(t, err)
	assert.False(t, result.SkippedK8s)
}

func TestGenerateSkipK8sFlagPreservesLockEntries(t *testing.T) {
	root, p := writeProject(t, testCRD)

	_, err := Generate(context.Background(), p, Options{Root: root, HusakoVersion: "0.1.0"})
	require.NoError(t, err)

	result, err := Generate(context.Background(), p, Options{Root: root, HusakoVersion: "0.1.0", SkipK8s: true})
	require.NoError(t, err)
	assert.True(t, result.SkippedK8s)
}

func TestGenerateNoIncrementalAlwaysRegenerates(t *testing.T) {
	root, p := writeProject(t, testCRD)

	_, err := Generate(context.Background(), p, Options{Root: root, HusakoVersion: "0.1.0"})
	require.NoError(t, err)

	result, err := Generate(context.Background(), p, Options{Root: root, HusakoVersion: "0.1.0", NoIncremental: true})
	require.NoError(t, err)
	assert.False(t, result.SkippedK8s)
}
