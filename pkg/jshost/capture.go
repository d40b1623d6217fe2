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
	"fmt"
	"math/big"

	"github.com/dop251/goja"

	"husako/pkg/errkind"
)

// captureBuilt converts the value passed to husako.build(...) into a
// list of plain document trees, per spec §4.7: a single builder-like
// value (having _render()) or an array of such. _render() is called on
// each, and the result of each call is walked through the strict-JSON
// capture contract before being accepted.
func captureBuilt(vm *goja.Runtime, value goja.Value) ([]interface{}, error) {
	if value == nil || goja.IsUndefined(value) {
		return nil, errkind.New(errkind.Validation, "$", "husako.build(...) received no value")
	}

	obj, isObject := value.(*goja.Object)
	if isObject && obj.ClassName() == "Array" {
		length := int(obj.Get("length").ToInteger())
		docs := make([]interface{}, 0, length)
		for i := 0; i < length; i++ {
			item := obj.Get(fmt.Sprint(i))
			rendered, err := renderOne(vm, item)
			if err != nil {
				return nil, err
			}
			tree, err := walk(vm, rendered, fmt.Sprintf("$[%d]", i), i, make(map[*goja.Object]bool))
			if err != nil {
				return nil, err
			}
			docs = append(docs, tree)
		}
		return docs, nil
	}

	rendered, err := renderOne(vm, value)
	if err != nil {
		return nil, err
	}
	tree, err := walk(vm, rendered, "$", -1, make(map[*goja.Object]bool))
	if err != nil {
		return nil, err
	}
	return []interface{}{tree}, nil
}

// renderOne requires value to be builder-like (have a callable
// _render() method) and invokes it.
func renderOne(vm *goja.Runtime, value goja.Value) (goja.Value, error) {
	obj, ok := value.(*goja.Object)
	if !ok {
		return nil, errkind.New(errkind.Validation, "$", "husako.build(...) value is not an object with _render()")
	}
	renderFn, ok := goja.AssertFunction(obj.Get("_render"))
	if !ok {
		return nil, errkind.New(errkind.Validation, "$", "value has no callable _render() method")
	}
	result, err := renderFn(obj)
	if err != nil {
		return nil, errkind.Wrap(errkind.Validation, "$", "calling _render()", err)
	}
	return result, nil
}

// walk recursively validates value against the strict-JSON capture
// contract and converts it into a Go tree (*OrderedMap, []interface{},
// string, int64, float64, bool, or nil). docIndex is -1 unless
// capturing one of several documents from an array build.
func walk(vm *goja.Runtime, value goja.Value, path string, docIndex int, seen map[*goja.Object]bool) (interface{}, error) {
	if value == nil || goja.IsUndefined(value) {
		return nil, captureError(path, docIndex, "undefined")
	}
	if goja.IsNull(value) {
		return nil, nil
	}

	if _, isBig := value.Export().(*big.Int); isBig {
		return nil, captureError(path, docIndex, "bigint")
	}

	if _, isSymbol := value.(*goja.Symbol); isSymbol {
		return nil, captureError(path, docIndex, "symbol")
	}

	obj, isObject := value.(*goja.Object)
	if !isObject {
		switch exported := value.Export().(type) {
		case string, bool, int64, float64:
			return exported, nil
		default:
			return exported, nil
		}
	}

	switch obj.ClassName() {
	case "Symbol":
		return nil, captureError(path, docIndex, "symbol")
	case "Function", "GeneratorFunction", "AsyncFunction":
		return nil, captureError(path, docIndex, "function")
	case "Date":
		return nil, captureError(path, docIndex, "Date")
	case "RegExp":
		return nil, captureError(path, docIndex, "RegExp")
	case "Map":
		return nil, captureError(path, docIndex, "Map")
	case "Set":
		return nil, captureError(path, docIndex, "Set")
	}

	if seen[obj] {
		return nil, captureError(path, docIndex, "cyclic reference")
	}
	seen[obj] = true
	defer delete(seen, obj)

	if obj.ClassName() == "Array" {
		length := int(obj.Get("length").ToInteger())
		items := make([]interface{}, 0, length)
		for i := 0; i < length; i++ {
			child, err := walk(vm, obj.Get(fmt.Sprint(i)), fmt.Sprintf("%s[%d]", path, i), docIndex, seen)
			if err != nil {
				return nil, err
			}
			items = append(items, child)
		}
		return items, nil
	}

	if !isPlainObject(vm, obj) {
		return nil, captureError(path, docIndex, "class instance")
	}

	out := newOrderedMap()
	for _, key := range obj.Keys() {
		child, err := walk(vm, obj.Get(key), fmt.Sprintf("%s.%s", path, key), docIndex, seen)
		if err != nil {
			return nil, err
		}
		out.set(key, child)
	}
	return out, nil
}

// isPlainObject reports whether obj's prototype is Object.prototype
// (or null), i.e. it was not constructed via `new SomeClass()`.
func isPlainObject(vm *goja.Runtime, obj *goja.Object) bool {
	proto := obj.Prototype()
	if proto == nil {
		return true
	}
	objectProto, ok := vm.GlobalObject().Get("Object").(*goja.Object)
	if !ok {
		return true
	}
	protoValue, ok := objectProto.Get("prototype").(*goja.Object)
	if !ok {
		return true
	}
	return proto == protoValue
}

func captureError(path string, docIndex int, kind string) error {
	if docIndex >= 0 {
		return errkind.New(errkind.Validation, path, fmt.Sprintf("document %d: value of kind %q is not representable as JSON", docIndex, kind))
	}
	return errkind.New(errkind.Validation, path, fmt.Sprintf("value of kind %q is not representable as JSON", kind))
}
