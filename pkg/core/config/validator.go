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
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"

	"husako/pkg/errkind"
)

// Validate checks the data-model invariants of spec.md §3:
//   - dependency-entry paths must be relative to project root
//   - cluster references must resolve to a known cluster entry
//   - a project declares either [cluster] or [clusters], never both
func Validate(p *Project) error {
	var errs *multierror.Error

	if p.Cluster != nil && len(p.Clusters) > 0 {
		errs = multierror.Append(errs, errkind.New(errkind.Config, "cluster", "both [cluster] and [clusters] declared; a project must use exactly one"))
	}

	for alias, path := range p.Entries {
		if filepath.IsAbs(path) {
			errs = multierror.Append(errs, errkind.New(errkind.Config, fmt.Sprintf("entries.%s", alias), "entry path must be relative to project root"))
		}
	}

	for name, r := range p.Resources {
		loc := fmt.Sprintf("resources.%s", name)
		if err := validateResourcePaths(loc, r); err != nil {
			errs = multierror.Append(errs, err)
		}
		if r.Source == ResourceCluster {
			if err := validateClusterRef(p, loc, r.Cluster); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
	}

	for name, c := range p.Charts {
		loc := fmt.Sprintf("charts.%s", name)
		if err := validateChartPaths(loc, c); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	for name, pl := range p.Plugins {
		loc := fmt.Sprintf("plugins.%s", name)
		if pl.Path != "" && filepath.IsAbs(pl.Path) {
			errs = multierror.Append(errs, errkind.New(errkind.Config, loc, "path must be relative to project root"))
		}
	}

	return errs.ErrorOrNil()
}

func validateResourcePaths(loc string, r ResourceSource) error {
	switch r.Source {
	case ResourceGit:
		if r.Path != "" && filepath.IsAbs(r.Path) {
			return errkind.New(errkind.Config, loc, "path must be relative to project root")
		}
	case ResourceFile:
		if filepath.IsAbs(r.Path) {
			return errkind.New(errkind.Config, loc, "path must be relative to project root")
		}
	}
	return nil
}

func validateChartPaths(loc string, c ChartSource) error {
	switch c.Source {
	case ChartGit:
		if c.Path != "" && filepath.IsAbs(c.Path) {
			return errkind.New(errkind.Config, loc, "path must be relative to project root")
		}
	case ChartFile:
		if filepath.IsAbs(c.Path) {
			return errkind.New(errkind.Config, loc, "path must be relative to project root")
		}
	}
	return nil
}

func validateClusterRef(p *Project, loc, clusterName string) error {
	if clusterName == "" {
		if p.Cluster == nil {
			return errkind.New(errkind.Config, loc, "references the unnamed [cluster] entry, but none is declared")
		}
		return nil
	}
	if _, ok := p.Clusters[clusterName]; !ok {
		known := make([]string, 0, len(p.Clusters))
		for k := range p.Clusters {
			known = append(known, k)
		}
		sort.Strings(known)
		return errkind.New(errkind.Config, loc, fmt.Sprintf("references unknown cluster %q (known: %s)", clusterName, strings.Join(known, ", ")))
	}
	return nil
}
