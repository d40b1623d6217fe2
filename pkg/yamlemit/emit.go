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

// Package yamlemit implements husako's YAML Emitter (spec §4.10): a
// schema-unaware renderer turning a list of captured document trees
// into a multi-document YAML stream.
package yamlemit

import (
	"bytes"

	"gopkg.in/yaml.v3"

	"husako/pkg/errkind"
)

// Documents renders docs as a multi-document YAML stream, one `---`
// separated document per entry in insertion order.
func Documents(docs []interface{}) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	for _, doc := range docs {
		if err := enc.Encode(doc); err != nil {
			return "", errkind.Wrap(errkind.Runtime, "", "encoding document to YAML", err)
		}
	}
	if err := enc.Close(); err != nil {
		return "", errkind.Wrap(errkind.Runtime, "", "closing YAML encoder", err)
	}
	return buf.String(), nil
}
