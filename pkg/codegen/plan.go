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

package codegen

import (
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	hschema "husako/pkg/schema"
)

// PropertyPlan is one property an emitted interface field or builder
// method is generated for.
type PropertyPlan struct {
	Name    string
	Type    hschema.PropertyType
	TSType  string
	ViaSpec bool // method writes through .spec.<name> rather than the top-level field directly
}

// SchemaPlan is one schema's code-generation plan within a module.
type SchemaPlan struct {
	FullName  string
	ClassName string
	GVK       *hschema.GVK

	// APIVersion/Kind are precomputed from GVK for resource builder
	// constructors ("apps/v1"/"Deployment", or just "v1" for core).
	APIVersion string
	Kind       string

	// SpecFields lists every property (unfiltered by the method skip
	// list) for the "Spec interfaces" emission step.
	SpecFields []PropertyPlan

	// Methods lists the chainable-method-bearing properties (skip list
	// applied, spec properties merged in with ViaSpec=true for resource
	// builders) for the builder-class emission step.
	Methods []PropertyPlan

	HasBuilder          bool
	PodTemplateShortcut bool
}

// ModulePlan is everything codegen needs to emit one group-version (or
// the shared common) module's .d.ts and .js pair (spec §4.3).
type ModulePlan struct {
	Group    string
	Version  string
	IsCommon bool

	CommonImports []string

	ResourceBuilders []SchemaPlan
	SchemaBuilders   []SchemaPlan
	PlainInterfaces  []SchemaPlan

	EmitJS bool
}

// ModuleKey is the import specifier suffix a module plan is addressed
// by under "k8s/" or "helm/" (spec §4.5): "common", or "<group>/<version>"
// (the core group, named "" or "core", is addressed as "core/<version>").
func (m ModulePlan) ModuleKey() string {
	if m.IsCommon {
		return "common"
	}
	if m.Group == "" || m.Group == "core" {
		return "core/" + m.Version
	}
	return m.Group + "/" + m.Version
}

// BuildModulePlans groups classified into one ModulePlan per
// group-version plus one "common" module, computing the builder
// heuristic, spec/top-level method sets, the pod-template shortcut, and
// cross-module import tracking for each schema (spec §4.3).
func BuildModulePlans(classified []hschema.Classified, dialect hschema.Dialect) []ModulePlan {
	byName := make(map[string]hschema.Classified, len(classified))
	for _, c := range classified {
		byName[c.Name] = c
	}

	type bucketKey struct{ group, version string }
	buckets := map[bucketKey][]hschema.Classified{}
	var commonBucket []hschema.Classified
	var order []bucketKey

	for _, c := range classified {
		switch c.Location {
		case hschema.LocationCommon:
			commonBucket = append(commonBucket, c)
		case hschema.LocationGroupVersion:
			k := bucketKey{c.Group, c.Version}
			if _, ok := buckets[k]; !ok {
				order = append(order, k)
			}
			buckets[k] = append(buckets[k], c)
		}
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].group != order[j].group {
			return order[i].group < order[j].group
		}
		return order[i].version < order[j].version
	})

	var plans []ModulePlan
	if len(commonBucket) > 0 {
		plans = append(plans, buildOneModule(ModulePlan{IsCommon: true}, commonBucket, byName, dialect))
	}
	for _, k := range order {
		plans = append(plans, buildOneModule(ModulePlan{Group: k.group, Version: k.version}, buckets[k], byName, dialect))
	}
	return plans
}

func buildOneModule(base ModulePlan, members []hschema.Classified, byName map[string]hschema.Classified, dialect hschema.Dialect) ModulePlan {
	imports := map[string]bool{}
	for _, c := range members {
		plan := buildSchemaPlan(c, byName, dialect, imports)
		switch {
		case c.GVK != nil:
			base.ResourceBuilders = append(base.ResourceBuilders, plan)
		case plan.HasBuilder:
			base.SchemaBuilders = append(base.SchemaBuilders, plan)
		default:
			base.PlainInterfaces = append(base.PlainInterfaces, plan)
		}
	}
	sortPlans(base.ResourceBuilders)
	sortPlans(base.SchemaBuilders)
	sortPlans(base.PlainInterfaces)

	base.CommonImports = make([]string, 0, len(imports))
	for name := range imports {
		base.CommonImports = append(base.CommonImports, name)
	}
	sort.Strings(base.CommonImports)

	base.EmitJS = len(base.ResourceBuilders) > 0 || len(base.SchemaBuilders) > 0
	return base
}

// BuildHelmModulePlan builds the single module plan for one chart's
// extracted values schemas. Helm schemas carry no GVK and never match
// Classify's "io.k8s.*" name prefixes, so every entry classifies as
// LocationOther; unlike BuildModulePlans there is no group/version
// bucketing to do, since a chart's module key is simply "helm/<chart>"
// (spec §4.3: inline extraction replaces the CRD converter step, but the
// one-module-per-source shape is the same as a single group-version
// module).
func BuildHelmModulePlan(named []hschema.Named) ModulePlan {
	byName := make(map[string]hschema.Classified, len(named))
	classified := make([]hschema.Classified, 0, len(named))
	for _, n := range named {
		c := hschema.Classified{Named: n}
		byName[n.Name] = c
		classified = append(classified, c)
	}
	sort.Slice(classified, func(i, j int) bool { return classified[i].Name < classified[j].Name })
	return buildOneModule(ModulePlan{}, classified, byName, hschema.DialectHelm)
}

func sortPlans(plans []SchemaPlan) {
	sort.Slice(plans, func(i, j int) bool { return plans[i].ClassName < plans[j].ClassName })
}

func buildSchemaPlan(c hschema.Classified, byName map[string]hschema.Classified, dialect hschema.Dialect, imports map[string]bool) SchemaPlan {
	plan := SchemaPlan{
		FullName:   c.Name,
		ClassName:  localName(c.Name),
		GVK:        c.GVK,
		HasBuilder: HasBuilder(c.Schema, dialect),
	}
	if c.GVK != nil {
		plan.Kind = c.GVK.Kind
		if c.GVK.Group == "" || c.GVK.Group == "core" {
			plan.APIVersion = c.GVK.Version
		} else {
			plan.APIVersion = c.GVK.Group + "/" + c.GVK.Version
		}
	}

	plan.SpecFields = propertyPlans(c.Schema, nil, dialect, byName, imports)

	isResource := c.GVK != nil
	skip := skipTopLevelProperty
	if !isResource {
		skip = map[string]bool{}
	}
	methods := propertyPlans(c.Schema, skip, dialect, byName, imports)

	if isResource {
		if specRef, ok := c.Schema.Properties["spec"]; ok {
			specType := hschema.PropertyTypeOf(specRef, dialect)
			if specType.Kind == hschema.KindRef {
				if specClassified, ok := byName[specType.RefName]; ok {
					specMethods := propertyPlans(specClassified.Schema, skipSpecProperty, dialect, byName, imports)
					for i := range specMethods {
						specMethods[i].ViaSpec = true
					}
					methods = append(methods, specMethods...)
					plan.PodTemplateShortcut = hasPodTemplateProperty(specClassified.Schema, dialect)
				}
			}
		}
	}
	plan.Methods = methods

	return plan
}

func propertyPlans(s *openapi3.Schema, skip map[string]bool, dialect hschema.Dialect, byName map[string]hschema.Classified, imports map[string]bool) []PropertyPlan {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		if skip != nil && skip[name] {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]PropertyPlan, 0, len(names))
	for _, name := range names {
		pt := hschema.PropertyTypeOf(s.Properties[name], dialect)
		trackImport(pt, byName, imports)
		out = append(out, PropertyPlan{Name: name, Type: pt, TSType: tsType(pt)})
	}
	return out
}

// trackImport records a cross-module import when a Ref(_)/Array(Ref(_))
// property points at a schema classified into the shared common module
// (spec §4.3's "Import common types used" emission step).
func trackImport(pt hschema.PropertyType, byName map[string]hschema.Classified, imports map[string]bool) {
	ref := &pt
	if ref.Kind == hschema.KindArray {
		ref = ref.Elem
	}
	if ref == nil || ref.Kind != hschema.KindRef {
		return
	}
	if target, ok := byName[ref.RefName]; ok && target.Location == hschema.LocationCommon {
		imports[localName(ref.RefName)] = true
	}
}

func hasPodTemplateProperty(s *openapi3.Schema, dialect hschema.Dialect) bool {
	if s == nil {
		return false
	}
	tmplRef, ok := s.Properties["template"]
	if !ok {
		return false
	}
	pt := hschema.PropertyTypeOf(tmplRef, dialect)
	return pt.Kind == hschema.KindRef && strings.HasSuffix(pt.RefName, podTemplateRefSuffix)
}

// localName returns the last "."-separated segment of a fully-qualified
// schema name ("io.k8s.apimachinery.pkg.apis.meta.v1.ObjectMeta" ->
// "ObjectMeta"), the class/interface name codegen emits.
func localName(fullName string) string {
	if idx := strings.LastIndex(fullName, "."); idx >= 0 {
		return fullName[idx+1:]
	}
	return fullName
}

// tsType renders a PropertyType as a TypeScript type expression.
// Ref(_) resolves to the referenced schema's local class/interface name;
// every other kind maps onto a built-in TS type.
func tsType(pt hschema.PropertyType) string {
	switch pt.Kind {
	case hschema.KindString:
		return "string"
	case hschema.KindNumber:
		return "number"
	case hschema.KindBoolean:
		return "boolean"
	case hschema.KindIntOrString:
		return "number | string"
	case hschema.KindArray:
		return tsType(*pt.Elem) + "[]"
	case hschema.KindMap:
		return "Record<string, " + tsType(*pt.Elem) + ">"
	case hschema.KindRef:
		return localName(pt.RefName)
	default:
		return "any"
	}
}
