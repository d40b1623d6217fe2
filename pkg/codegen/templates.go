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

// dtsTemplateName/jsTemplateName are the template names registered with
// the templating engine (spec §4.3's "Emission contract per
// group-version module" ordering: imports, spec interfaces, resource
// builders, schema builders, plain interfaces).
const (
	dtsTemplateName = "module.d.ts"
	jsTemplateName  = "module.js"
)

const dtsTemplate = `// Code generated by husako. DO NOT EDIT.
{% for name in Module.CommonImports %}
import type { {{ name }} } from "husako_common";
{% endfor %}

{% for s in Module.ResourceBuilders %}
export interface {{ s.ClassName }}Spec {
{% for f in s.SpecFields %}
  {{ f.Name }}?: {{ f.TSType }};
{% endfor %}
}
{% endfor %}
{% for s in Module.SchemaBuilders %}
export interface {{ s.ClassName }}Spec {
{% for f in s.SpecFields %}
  {{ f.Name }}?: {{ f.TSType }};
{% endfor %}
}
{% endfor %}

{% for s in Module.ResourceBuilders %}
export declare class {{ s.ClassName }} {
  constructor();
{% for m in s.Methods %}
  {{ m.Name }}(value: {{ m.TSType }}): this;
{% endfor %}
{% if s.PodTemplateShortcut %}
  containers(value: unknown[]): this;
  initContainers(value: unknown[]): this;
{% endif %}
  _render(): unknown;
}
{% endfor %}

{% for s in Module.SchemaBuilders %}
export declare class {{ s.ClassName }} {
  constructor();
{% for m in s.Methods %}
  {{ m.Name }}(value: {{ m.TSType }}): this;
{% endfor %}
  _render(): unknown;
}
{% endfor %}

{% for s in Module.PlainInterfaces %}
export interface {{ s.ClassName }} {
{% for f in s.SpecFields %}
  {{ f.Name }}?: {{ f.TSType }};
{% endfor %}
}
{% endfor %}
`

const jsTemplate = `// Code generated by husako. DO NOT EDIT.
import { Builder } from "husako/_base";

{% for s in Module.ResourceBuilders %}
export class {{ s.ClassName }} extends Builder {
  constructor() {
    super({ apiVersion: "{{ s.APIVersion }}", kind: "{{ s.Kind }}" });
  }
{% for m in s.Methods %}
  {{ m.Name }}(value) {
{% if m.ViaSpec %}
    this._setSpec("{{ m.Name }}", value);
{% else %}
    this._setTopLevel("{{ m.Name }}", value);
{% endif %}
    return this;
  }
{% endfor %}
{% if s.PodTemplateShortcut %}
  containers(value) {
    this._setPath(["spec", "template", "spec", "containers"], value);
    return this;
  }
  initContainers(value) {
    this._setPath(["spec", "template", "spec", "initContainers"], value);
    return this;
  }
{% endif %}
}
{% endfor %}
{% for s in Module.SchemaBuilders %}
export class {{ s.ClassName }} extends Builder {
  constructor() {
    super({});
  }
{% for m in s.Methods %}
  {{ m.Name }}(value) {
    this._setTopLevel("{{ m.Name }}", value);
    return this;
  }
{% endfor %}
}
{% endfor %}
`
