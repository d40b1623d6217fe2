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

package validate

import (
	"strings"
	"testing"
)

type fakeStore struct {
	schemas map[string]map[string]interface{}
	gvk     map[string]string
}

func (f *fakeStore) Schema(name string) (map[string]interface{}, bool) {
	s, ok := f.schemas[name]
	return s, ok
}

func (f *fakeStore) SchemaForGVK(apiVersion, kind string) (map[string]interface{}, bool) {
	name, ok := f.gvk[apiVersion+":"+kind]
	if !ok {
		return nil, false
	}
	return f.Schema(name)
}

func podSchemaStore() *fakeStore {
	podSpec := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"replicas": map[string]interface{}{"type": "number"},
			"name":     map[string]interface{}{"type": "string", "pattern": "^[a-z]+$"},
			"resources": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"requests": map[string]interface{}{
						"type": "object",
						"additionalProperties": map[string]interface{}{
							"format": "quantity",
						},
					},
				},
			},
		},
		"required": []interface{}{"name"},
	}
	pod := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"apiVersion": map[string]interface{}{"type": "string"},
			"kind":       map[string]interface{}{"type": "string"},
			"spec":       podSpec,
		},
	}
	return &fakeStore{
		schemas: map[string]map[string]interface{}{"Pod": pod},
		gvk:     map[string]string{"v1:Pod": "Pod"},
	}
}

func TestDocumentAcceptsValidResource(t *testing.T) {
	store := podSchemaStore()
	doc := map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "Pod",
		"spec": map[string]interface{}{
			"replicas": float64(3),
			"name":     "web",
			"resources": map[string]interface{}{
				"requests": map[string]interface{}{"cpu": "100m", "memory": float64(1024)},
			},
		},
	}
	if err := Document(doc, store); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestDocumentRejectsBadPattern(t *testing.T) {
	store := podSchemaStore()
	doc := map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "Pod",
		"spec": map[string]interface{}{
			"name": "BAD-NAME",
		},
	}
	err := Document(doc, store)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "does not match pattern") {
		t.Fatalf("expected pattern mismatch error, got %v", err)
	}
}

func TestDocumentRejectsBadQuantity(t *testing.T) {
	store := podSchemaStore()
	doc := map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "Pod",
		"spec": map[string]interface{}{
			"name": "web",
			"resources": map[string]interface{}{
				"requests": map[string]interface{}{"cpu": "not-a-quantity"},
			},
		},
	}
	err := Document(doc, store)
	if err == nil || !strings.Contains(err.Error(), "not a valid quantity") {
		t.Fatalf("expected quantity error, got %v", err)
	}
}

func TestDocumentFallsBackWhenGVKNotIndexed(t *testing.T) {
	store := podSchemaStore()
	doc := map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "Unknown",
		"resources": map[string]interface{}{
			"requests": map[string]interface{}{"cpu": "bad quantity string"},
		},
	}
	err := Document(doc, store)
	if err == nil || !strings.Contains(err.Error(), "not a valid quantity") {
		t.Fatalf("expected fallback quantity error, got %v", err)
	}
}

func TestDocumentsAccumulatesAcrossDocuments(t *testing.T) {
	store := podSchemaStore()
	docs := []interface{}{
		map[string]interface{}{"apiVersion": "v1", "kind": "Pod", "spec": map[string]interface{}{}},
		map[string]interface{}{"apiVersion": "v1", "kind": "Pod", "spec": map[string]interface{}{}},
	}
	err := Documents(docs, store)
	if err == nil {
		t.Fatal("expected errors from both documents")
	}
	if !strings.Contains(err.Error(), "doc[0]") || !strings.Contains(err.Error(), "doc[1]") {
		t.Fatalf("expected errors labeled by document index, got %v", err)
	}
}
