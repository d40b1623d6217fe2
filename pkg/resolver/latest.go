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

package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"husako/pkg/errkind"
)

// releaseTagsURL is the GitHub tags API endpoint used to discover the
// newest published Kubernetes release. Overridable in tests.
var releaseTagsURL = "https://api.github.com/repos/kubernetes/kubernetes/tags"

type githubTag struct {
	Name string `json:"name"`
}

// LatestK8sRelease reports the newest "X.Y" Kubernetes release available
// from the same upstream the Release resource strategy resolves
// against, for `husako outdated`/`husako update` (spec §3's
// supplemented "outdated"/"update" operations).
func LatestK8sRelease(ctx context.Context, client *http.Client) (string, error) {
	data, err := httpGetBytes(ctx, client, releaseTagsURL)
	if err != nil {
		return "", err
	}
	var tags []githubTag
	if err := json.Unmarshal(data, &tags); err != nil {
		return "", errkind.Wrap(errkind.Fetch, releaseTagsURL, "parsing tag listing", err)
	}

	var best *semver.Version
	for _, t := range tags {
		name := strings.TrimPrefix(t.Name, "v")
		v, err := semver.NewVersion(name)
		if err != nil || v.Prerelease() != "" {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
		}
	}
	if best == nil {
		return "", errkind.New(errkind.Fetch, releaseTagsURL, "no stable release tags found")
	}
	return fmt.Sprintf("%d.%d", best.Major(), best.Minor()), nil
}

// LatestChartRegistryVersion reports the newest version of chart
// published in the index.yaml at repo, for a Registry chart source.
func LatestChartRegistryVersion(ctx context.Context, client *http.Client, repo, chart string) (string, error) {
	data, err := httpGetBytes(ctx, client, strings.TrimRight(repo, "/")+"/index.yaml")
	if err != nil {
		return "", err
	}
	var idx indexYAML
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return "", errkind.Wrap(errkind.Fetch, repo, "parsing chart index.yaml", err)
	}
	entries, ok := idx.Entries[chart]
	if !ok || len(entries) == 0 {
		return "", errkind.New(errkind.Fetch, repo, "chart not found in index")
	}

	var best *semver.Version
	var bestRaw string
	for _, e := range entries {
		v, err := semver.NewVersion(e.Version)
		if err != nil {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
			bestRaw = e.Version
		}
	}
	if best == nil {
		return "", errkind.New(errkind.Fetch, repo, "no valid semantic versions found in index")
	}
	return bestRaw, nil
}
