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

package yamlemit

import (
	"strings"
	"testing"
)

func TestDocumentsEmitsMultiDocumentStream(t *testing.T) {
	docs := []interface{}{
		map[string]interface{}{"kind": "ConfigMap", "data": map[string]interface{}{"a": "1"}},
		map[string]interface{}{"kind": "Secret"},
	}
	out, err := Documents(docs)
	if err != nil {
		t.Fatalf("Documents: %v", err)
	}
	if strings.Count(out, "---") != 1 {
		t.Fatalf("expected exactly one document separator, got:\n%s", out)
	}
	if !strings.Contains(out, "kind: ConfigMap") || !strings.Contains(out, "kind: Secret") {
		t.Fatalf("expected both documents rendered, got:\n%s", out)
	}
}

func TestDocumentsEmptyListProducesEmptyOutput(t *testing.T) {
	out, err := Documents(nil)
	if err != nil {
		t.Fatalf("Documents: %v", err)
	}
	if out != "" {
		t.Fatalf("expected empty output, got %q", out)
	}
}
