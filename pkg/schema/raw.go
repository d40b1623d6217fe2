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
	"encoding/json"

	"github.com/getkin/kin-openapi/openapi3"
)

// FromRawJSON round-trips a schema expressed as a generic
// map[string]interface{} (the shape both the CRD converter and the Helm
// inline-object extractor produce) into a *openapi3.Schema, the typed
// form the classifier and codegen operate on.
func FromRawJSON(raw map[string]interface{}) (*openapi3.Schema, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var s openapi3.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ToRawJSON is FromRawJSON's inverse: it renders a *openapi3.Schema back
// into a generic map[string]interface{}, the shape the schema store
// builder walks to rewrite $ref targets into bare schema names (spec
// §4.4).
func ToRawJSON(s *openapi3.Schema) (map[string]interface{}, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
