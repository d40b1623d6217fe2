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

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"husako/pkg/errkind"
)

// FileName is the fixed name of the project configuration file.
const FileName = "husako.toml"

// Parse decodes TOML bytes into a Project. It does not validate
// invariants; call Validate separately (LoadProject does both).
func Parse(data []byte) (*Project, error) {
	var p Project
	if _, err := toml.Decode(string(data), &p); err != nil {
		return nil, errkind.Wrap(errkind.Config, FileName, "failed to parse TOML", err)
	}
	if p.Entries == nil {
		p.Entries = map[string]string{}
	}
	if p.Resources == nil {
		p.Resources = map[string]ResourceSource{}
	}
	if p.Charts == nil {
		p.Charts = map[string]ChartSource{}
	}
	if p.Plugins == nil {
		p.Plugins = map[string]PluginSource{}
	}
	return &p, nil
}

// LoadProject reads and parses husako.toml from root, then validates it.
func LoadProject(root string) (*Project, error) {
	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errkind.Wrap(errkind.Config, path, "failed to read project file", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Encode renders p as TOML bytes. BurntSushi/toml's encoder sorts map
// keys and emits a stable field order derived from the struct
// definition, so encoding the same Project twice is always
// byte-identical — the round-trip property spec.md §8 asks for holds
// for any Project produced by Parse, provided the file carries no
// hand-written comments (BurntSushi/toml does not preserve a comment
// CST; see DESIGN.md).
func Encode(p *Project) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(p); err != nil {
		return nil, errkind.Wrap(errkind.Config, FileName, "failed to encode TOML", err)
	}
	return buf.Bytes(), nil
}

// Save writes p to <root>/husako.toml.
func Save(root string, p *Project) error {
	data, err := Encode(p)
	if err != nil {
		return err
	}
	path := filepath.Join(root, FileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errkind.Wrap(errkind.Config, path, "failed to write project file", err)
	}
	return nil
}

// FindProjectRoot walks up from start looking for husako.toml, returning
// the directory that contains it.
func FindProjectRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", errkind.Wrap(errkind.Config, start, "failed to resolve path", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errkind.New(errkind.Config, start, fmt.Sprintf("no %s found in %s or any parent directory", FileName, start)).
				WithSuggestion("run 'husako init' to create one")
		}
		dir = parent
	}
}
