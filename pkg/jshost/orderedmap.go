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

package jshost

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

func jsonMarshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// OrderedMap is a JSON/YAML object that remembers the insertion order
// of its keys, since captureBuilt walks JS objects in their own
// enumeration order (spec §4.10: "keys are preserved in insertion
// order") and a plain Go map would discard that on re-encoding.
type OrderedMap struct {
	keys   []string
	values map[string]interface{}
}

func newOrderedMap() *OrderedMap {
	return &OrderedMap{values: make(map[string]interface{})}
}

func (m *OrderedMap) set(key string, value interface{}) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Keys returns the object's keys in original insertion order.
func (m *OrderedMap) Keys() []string {
	return m.keys
}

// Get returns the value stored for key.
func (m *OrderedMap) Get(key string) (interface{}, bool) {
	v, ok := m.values[key]
	return v, ok
}

// MarshalYAML renders the map as an explicit ordered mapping node so
// gopkg.in/yaml.v3 preserves key order instead of sorting or using Go
// map iteration order.
func (m *OrderedMap) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, key := range m.keys {
		keyNode := &yaml.Node{}
		if err := keyNode.Encode(key); err != nil {
			return nil, err
		}
		valueNode := &yaml.Node{}
		if err := valueNode.Encode(m.values[key]); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, keyNode, valueNode)
	}
	return node, nil
}

// ToPlain recursively converts an *OrderedMap tree (as returned by
// Host.Built) into plain map[string]interface{}/[]interface{} values,
// for consumers like pkg/validate that only care about structure, not
// key order.
func ToPlain(v interface{}) interface{} {
	switch val := v.(type) {
	case *OrderedMap:
		out := make(map[string]interface{}, len(val.keys))
		for _, key := range val.keys {
			out[key] = ToPlain(val.values[key])
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = ToPlain(item)
		}
		return out
	default:
		return v
	}
}

// MarshalJSON preserves the same ordering contract for callers that
// need JSON instead of YAML (e.g. schemastore round-tripping).
func (m *OrderedMap) MarshalJSON() ([]byte, error) {
	var buf []byte
	buf = append(buf, '{')
	for i, key := range m.keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		encodedKey, err := jsonMarshal(key)
		if err != nil {
			return nil, err
		}
		encodedValue, err := jsonMarshal(m.values[key])
		if err != nil {
			return nil, err
		}
		buf = append(buf, encodedKey...)
		buf = append(buf, ':')
		buf = append(buf, encodedValue...)
	}
	buf = append(buf, '}')
	return buf, nil
}
