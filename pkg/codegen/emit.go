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
	"fmt"

	"husako/pkg/errkind"
	"husako/pkg/templating"
)

// Emitted is the rendered output for one module plan: a .d.ts source
// always, a .js source iff the plan clears the "has at least one GVK or
// builder-heuristic schema" rule (spec §4.3).
type Emitted struct {
	ModuleKey string
	DTS       string
	JS        string
	HasJS     bool
}

// Emitter renders ModulePlans into TypeScript declaration and
// JavaScript builder source, reusing the ingress controller's Jinja2
// template engine for an entirely different purpose: generating code
// instead of HAProxy configuration.
type Emitter struct {
	engine *templating.TemplateEngine
}

// blankControlLines strips the blank lines gonja's {% for %}/{% if %}
// control tags leave behind in the rendered .d.ts/.js output, one per
// template since both carry their own indentation conventions.
var blankControlLines = []templating.PostProcessorConfig{{
	Type:   templating.PostProcessorTypeRegexReplace,
	Params: map[string]string{"pattern": `(?m)^[ \t]+\n`, "replace": ""},
}}

// NewEmitter compiles the two module templates once; reused across every
// module a single `husako generate` run emits.
func NewEmitter() (*Emitter, error) {
	engine, err := templating.New(templating.EngineTypeGonja, map[string]string{
		dtsTemplateName: dtsTemplate,
		jsTemplateName:  jsTemplate,
	}, nil, nil, map[string][]templating.PostProcessorConfig{
		dtsTemplateName: blankControlLines,
		jsTemplateName:  blankControlLines,
	})
	if err != nil {
		return nil, errkind.Wrap(errkind.TypeGen, "codegen", "compiling module templates", err)
	}
	return &Emitter{engine: engine}, nil
}

// Emit renders one module's .d.ts (always) and .js (iff plan.EmitJS).
func (e *Emitter) Emit(plan ModulePlan) (Emitted, error) {
	ctx := map[string]interface{}{"Module": plan}

	dts, err := e.engine.Render(dtsTemplateName, ctx)
	if err != nil {
		return Emitted{}, errkind.Wrap(errkind.TypeGen, plan.ModuleKey(), e.renderErrMessage(dtsTemplateName, err), err)
	}

	out := Emitted{ModuleKey: plan.ModuleKey(), DTS: dts}
	if plan.EmitJS {
		js, err := e.engine.Render(jsTemplateName, ctx)
		if err != nil {
			return Emitted{}, errkind.Wrap(errkind.TypeGen, plan.ModuleKey(), e.renderErrMessage(jsTemplateName, err), err)
		}
		out.JS = js
		out.HasJS = true
	}
	return out, nil
}

// renderErrMessage turns a template render failure into a one-line,
// line/column-pinpointed diagnostic; falls back to FormatRenderErrorShort
// if the raw template source can't be recovered for full context.
func (e *Emitter) renderErrMessage(templateName string, err error) string {
	raw, rawErr := e.engine.GetRawTemplate(templateName)
	if rawErr != nil {
		return templating.FormatRenderErrorShort(err, templateName)
	}
	return templating.FormatRenderError(err, templateName, raw)
}

// EmitAll renders every module plan in order, failing fast on the first
// error (spec §4.3 gives no partial-success contract for codegen).
func (e *Emitter) EmitAll(plans []ModulePlan) ([]Emitted, error) {
	out := make([]Emitted, 0, len(plans))
	for _, p := range plans {
		em, err := e.Emit(p)
		if err != nil {
			return nil, fmt.Errorf("emitting module %q: %w", p.ModuleKey(), err)
		}
		out = append(out, em)
	}
	return out, nil
}
