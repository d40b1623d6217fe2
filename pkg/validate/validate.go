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

// Package validate implements husako's Validator (spec §4.8): a
// schema-store-driven walk over each rendered document, falling back
// to a resources.requests/.limits-only heuristic when no schema store
// is available or a document's GVK is not indexed.
package validate

import (
	"fmt"
	"regexp"

	"github.com/hashicorp/go-multierror"

	"husako/pkg/errkind"
	"husako/pkg/schemastore"
	"husako/pkg/validate/quantity"
)

const maxDepth = 64

// Store is the subset of *schemastore.Store the validator needs,
// narrowed to an interface so tests can supply a fake.
type Store interface {
	Schema(name string) (map[string]interface{}, bool)
	SchemaForGVK(apiVersion, kind string) (map[string]interface{}, bool)
}

var _ Store = (*schemastore.Store)(nil)

// Documents validates a full render output: one tree per YAML
// document. Errors from every document are accumulated and returned
// together (spec §4.8: "no short-circulating at the validator
// boundary"); each is labeled "doc[N] at PATH: MESSAGE".
func Documents(docs []interface{}, store Store) error {
	var errs *multierror.Error
	for i, doc := range docs {
		if err := Document(doc, store); err != nil {
			for _, e := range flatten(err) {
				errs = multierror.Append(errs, errkind.New(errkind.Validation, "", fmt.Sprintf("doc[%d] at %s", i, e.Error())))
			}
		}
	}
	return errs.ErrorOrNil()
}

func flatten(err error) []error {
	if merr, ok := err.(*multierror.Error); ok {
		return merr.Errors
	}
	return []error{err}
}

// Document validates a single top-level document: it resolves the
// document's schema via its apiVersion/kind against store's gvk_index,
// falling back to the resources.requests/.limits heuristic when the
// document or its GVK isn't indexed.
func Document(doc interface{}, store Store) error {
	m, ok := doc.(map[string]interface{})
	if !ok {
		return fallbackWalk(doc, "$")
	}
	if store == nil {
		return fallbackWalk(doc, "$")
	}
	apiVersion, _ := m["apiVersion"].(string)
	kind, _ := m["kind"].(string)
	if apiVersion == "" || kind == "" {
		return fallbackWalk(doc, "$")
	}
	schema, ok := store.SchemaForGVK(apiVersion, kind)
	if !ok {
		return fallbackWalk(doc, "$")
	}
	return walkSchema(doc, schema, store, "$", 0)
}

// walkSchema implements the per-node walk order of spec §4.8. The
// depth, null, $ref, allOf, int-or-string, quantity and type-mismatch
// rules each end the walk of the node; the enum, bound, pattern, object
// and array checks that follow all apply and their errors accumulate.
func walkSchema(value interface{}, schema map[string]interface{}, store Store, path string, depth int) error {
	if depth > maxDepth {
		return nil
	}
	if value == nil {
		return nil
	}

	if ref, ok := schema["$ref"].(string); ok {
		resolved, ok := store.Schema(ref)
		if !ok {
			return errkind.New(errkind.Validation, path, fmt.Sprintf("unresolved $ref %q", ref))
		}
		return walkSchema(value, resolved, store, path, depth+1)
	}

	if allOf, ok := schema["allOf"].([]interface{}); ok {
		var errs *multierror.Error
		for _, sub := range allOf {
			subSchema, ok := sub.(map[string]interface{})
			if !ok {
				continue
			}
			if err := walkSchema(value, subSchema, store, path, depth+1); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
		return errs.ErrorOrNil()
	}

	if intOrString, _ := schema["x-kubernetes-int-or-string"].(bool); intOrString {
		switch value.(type) {
		case float64, string:
			return nil
		default:
			return errkind.New(errkind.Validation, path, "expected a number or string (int-or-string)")
		}
	}

	if format, _ := schema["format"].(string); format == "quantity" {
		return validateQuantity(value, path)
	}

	if typ, ok := schema["type"].(string); ok {
		if err := checkType(value, typ, path); err != nil {
			return err
		}
	}

	var errs *multierror.Error

	if enum, ok := schema["enum"].([]interface{}); ok {
		if s, isString := value.(string); isString {
			if !enumContains(enum, s) {
				errs = multierror.Append(errs, errkind.New(errkind.Validation, path, fmt.Sprintf("value %q is not one of the allowed enum values", s)))
			}
		}
	}

	if num, isNumber := value.(float64); isNumber {
		if min, ok := numberField(schema, "minimum"); ok && num < min {
			errs = multierror.Append(errs, errkind.New(errkind.Validation, path, fmt.Sprintf("%v is less than minimum %v", num, min)))
		}
		if max, ok := numberField(schema, "maximum"); ok && num > max {
			errs = multierror.Append(errs, errkind.New(errkind.Validation, path, fmt.Sprintf("%v is greater than maximum %v", num, max)))
		}
	}

	if pattern, ok := schema["pattern"].(string); ok {
		if s, isString := value.(string); isString {
			if re, err := regexp.Compile(pattern); err == nil {
				if !re.MatchString(s) {
					errs = multierror.Append(errs, errkind.New(errkind.Validation, path, fmt.Sprintf("value %q does not match pattern %q", s, pattern)))
				}
			}
		}
	}

	if obj, isObject := value.(map[string]interface{}); isObject {
		if err := walkObject(obj, schema, store, path, depth); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if arr, isArray := value.([]interface{}); isArray {
		if err := walkArray(arr, schema, store, path, depth); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	return errs.ErrorOrNil()
}

func walkObject(obj map[string]interface{}, schema map[string]interface{}, store Store, path string, depth int) error {
	var errs *multierror.Error

	if required, ok := schema["required"].([]interface{}); ok {
		for _, r := range required {
			name, ok := r.(string)
			if !ok {
				continue
			}
			if _, present := obj[name]; !present {
				errs = multierror.Append(errs, errkind.New(errkind.Validation, path, fmt.Sprintf("missing required field %q", name)))
			}
		}
	}

	properties, _ := schema["properties"].(map[string]interface{})
	for name, value := range obj {
		propSchema, ok := properties[name].(map[string]interface{})
		if !ok {
			if additional, ok := schema["additionalProperties"].(map[string]interface{}); ok {
				propSchema = additional
			} else {
				continue
			}
		}
		if err := walkSchema(value, propSchema, store, fmt.Sprintf("%s.%s", path, name), depth+1); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	return errs.ErrorOrNil()
}

func walkArray(arr []interface{}, schema map[string]interface{}, store Store, path string, depth int) error {
	items, ok := schema["items"].(map[string]interface{})
	if !ok {
		return nil
	}
	var errs *multierror.Error
	for i, item := range arr {
		if err := walkSchema(item, items, store, fmt.Sprintf("%s[%d]", path, i), depth+1); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func checkType(value interface{}, typ, path string) error {
	switch typ {
	case "string":
		if _, ok := value.(string); !ok {
			return typeMismatch(path, typ, value)
		}
	case "number", "integer":
		if _, ok := value.(float64); !ok {
			return typeMismatch(path, typ, value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return typeMismatch(path, typ, value)
		}
	case "object":
		if _, ok := value.(map[string]interface{}); !ok {
			return typeMismatch(path, typ, value)
		}
	case "array":
		if _, ok := value.([]interface{}); !ok {
			return typeMismatch(path, typ, value)
		}
	}
	return nil
}

func typeMismatch(path, typ string, value interface{}) error {
	return errkind.New(errkind.Validation, path, fmt.Sprintf("expected type %q, got %T", typ, value))
}

func enumContains(enum []interface{}, s string) bool {
	for _, v := range enum {
		if v == s {
			return true
		}
	}
	return false
}

func numberField(schema map[string]interface{}, key string) (float64, bool) {
	v, ok := schema[key].(float64)
	return v, ok
}

func validateQuantity(value interface{}, path string) error {
	switch v := value.(type) {
	case float64:
		return nil
	case string:
		if !quantity.Match(v) {
			return errkind.New(errkind.Validation, path, fmt.Sprintf("%q is not a valid quantity", v))
		}
		return nil
	default:
		return errkind.New(errkind.Validation, path, fmt.Sprintf("expected a quantity (number or string), got %T", v))
	}
}

// fallbackWalk implements the GVK-less heuristic: descend the document
// looking for "resources" objects and validate their requests/limits
// leaves as quantities (spec §4.8).
func fallbackWalk(value interface{}, path string) error {
	var errs *multierror.Error
	switch v := value.(type) {
	case map[string]interface{}:
		if resources, ok := v["resources"].(map[string]interface{}); ok {
			if err := validateResourcesBlock(resources, path+".resources"); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
		for key, child := range v {
			if key == "resources" {
				continue
			}
			if err := fallbackWalk(child, fmt.Sprintf("%s.%s", path, key)); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
	case []interface{}:
		for i, child := range v {
			if err := fallbackWalk(child, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
	}
	return errs.ErrorOrNil()
}

func validateResourcesBlock(resources map[string]interface{}, path string) error {
	var errs *multierror.Error
	for _, bucket := range []string{"requests", "limits"} {
		block, ok := resources[bucket].(map[string]interface{})
		if !ok {
			continue
		}
		for name, leaf := range block {
			leafPath := fmt.Sprintf("%s.%s.%s", path, bucket, name)
			switch v := leaf.(type) {
			case nil:
			case float64:
			case string:
				if !quantity.Match(v) {
					errs = multierror.Append(errs, errkind.New(errkind.Validation, leafPath, fmt.Sprintf("%q is not a valid quantity", v)))
				}
			default:
				errs = multierror.Append(errs, errkind.New(errkind.Validation, leafPath, fmt.Sprintf("expected a quantity (number, null, or string), got %T", v)))
			}
		}
	}
	return errs.ErrorOrNil()
}
