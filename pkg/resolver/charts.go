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
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"gopkg.in/yaml.v3"
	"oras.land/oras-go/pkg/content"
	"oras.land/oras-go/pkg/oras"

	"husako/pkg/core/config"
	"husako/pkg/errkind"
)

// resolveChart dispatches a single chart dependency to its strategy
// (spec §4.1). cacheRoot is ".husako/cache"; httpClient is reused
// across all non-kubeconfig-authenticated HTTP strategies.
func resolveChart(ctx context.Context, httpClient *http.Client, cacheRoot string, dep ChartDependency) (json.RawMessage, error) {
	src := dep.Source
	switch src.Source {
	case config.ChartRegistry:
		return resolveChartRegistry(ctx, httpClient, cacheRoot, src.Repo, src.Chart, src.Version)
	case config.ChartArtifactHub:
		return resolveChartArtifactHub(ctx, httpClient, cacheRoot, src.Package, src.Version)
	case config.ChartOci:
		return resolveChartOCI(ctx, cacheRoot, src.Reference, src.Version)
	case config.ChartGit:
		return resolveChartGit(ctx, src.Repo, src.Tag, src.Path)
	case config.ChartFile:
		return resolveChartFile(src.Path)
	default:
		return nil, errkind.New(errkind.Config, dep.Name, fmt.Sprintf("unknown chart source %q", src.Source))
	}
}

// indexYAML is the shape of a Helm chart repository's index.yaml.
type indexYAML struct {
	Entries map[string][]indexEntry `yaml:"entries"`
}

type indexEntry struct {
	Version string `yaml:"version"`
	URLs    []string `yaml:"urls"`
}

func resolveChartRegistry(ctx context.Context, client *http.Client, cacheRoot, repo, chart, version string) (json.RawMessage, error) {
	cachePath := helmCacheDir(cacheRoot, "registry", repo+"/"+chart, version)
	var cached json.RawMessage
	if ok, err := readCachedJSON(cachePath, &cached); err != nil {
		return nil, err
	} else if ok {
		return cached, nil
	}

	data, err := httpGetBytes(ctx, client, strings.TrimRight(repo, "/")+"/index.yaml")
	if err != nil {
		return nil, err
	}
	var idx indexYAML
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return nil, errkind.Wrap(errkind.Fetch, repo, "parsing chart index.yaml", err)
	}
	entries, ok := idx.Entries[chart]
	if !ok || len(entries) == 0 {
		return nil, errkind.New(errkind.Fetch, repo, fmt.Sprintf("chart %q not found in index", chart))
	}
	entry, err := selectChartVersion(entries, version)
	if err != nil {
		return nil, err
	}
	if len(entry.URLs) == 0 {
		return nil, errkind.New(errkind.Fetch, repo, fmt.Sprintf("chart %q version %q has no download URL", chart, entry.Version))
	}

	tgz, err := httpGetBytes(ctx, client, entry.URLs[0])
	if err != nil {
		return nil, err
	}
	schema, err := extractValuesSchema(tgz)
	if err != nil {
		return nil, err
	}
	if err := writeCachedJSON(cachePath, json.RawMessage(schema)); err != nil {
		return nil, err
	}
	return schema, nil
}

func selectChartVersion(entries []indexEntry, want string) (indexEntry, error) {
	wantVer, err := semver.NewVersion(want)
	if err != nil {
		for _, e := range entries {
			if e.Version == want {
				return e, nil
			}
		}
		return indexEntry{}, errkind.New(errkind.Fetch, want, "not a valid semantic version and no exact match found")
	}
	for _, e := range entries {
		if v, err := semver.NewVersion(e.Version); err == nil && v.Equal(wantVer) {
			return e, nil
		}
	}
	return indexEntry{}, errkind.New(errkind.Fetch, want, "version not found in chart index")
}

type artifactHubPackage struct {
	ValuesSchema json.RawMessage `json:"values_schema"`
	Repository   struct {
		URL  string `json:"url"`
		Kind string `json:"kind"`
	} `json:"repository"`
	Name string `json:"name"`
}

func resolveChartArtifactHub(ctx context.Context, client *http.Client, cacheRoot, pkg, version string) (json.RawMessage, error) {
	url := fmt.Sprintf("https://artifacthub.io/api/v1/packages/helm/%s", pkg)
	if version != "" {
		url += "/" + version
	}
	data, err := httpGetBytes(ctx, client, url)
	if err != nil {
		return nil, err
	}
	var pkgInfo artifactHubPackage
	if err := json.Unmarshal(data, &pkgInfo); err != nil {
		return nil, errkind.Wrap(errkind.Fetch, url, "parsing ArtifactHub package", err)
	}
	if len(pkgInfo.ValuesSchema) > 0 {
		return pkgInfo.ValuesSchema, nil
	}
	if pkgInfo.Repository.Kind == "oci" {
		return resolveChartOCI(ctx, cacheRoot, pkgInfo.Repository.URL, version)
	}
	return resolveChartRegistry(ctx, client, cacheRoot, pkgInfo.Repository.URL, pkgInfo.Name, version)
}

// resolveChartOCI implements the OCI (chart) strategy: anonymous
// bearer-token auth against the registry's realm challenge (handled by
// oras-go's default docker resolver), then a pull of the chart
// artifact into an in-memory store, from which the chart tarball layer
// is extracted exactly as with the Registry strategy (spec §4.1).
func resolveChartOCI(ctx context.Context, cacheRoot, reference, version string) (json.RawMessage, error) {
	ref := reference
	if version != "" {
		ref = reference + ":" + version
	}
	cachePath := helmCacheDir(cacheRoot, "oci", reference, version)
	var cached json.RawMessage
	if ok, err := readCachedJSON(cachePath, &cached); err != nil {
		return nil, err
	} else if ok {
		return cached, nil
	}

	resolver := content.NewResolver("")
	store := content.NewMemory()
	desc, err := oras.Copy(ctx, resolver, ref, store, ref)
	if err != nil {
		return nil, errkind.Wrap(errkind.Fetch, ref, "pulling OCI chart artifact", err)
	}
	_, tgz, ok := store.Get(desc)
	if !ok {
		return nil, errkind.New(errkind.Fetch, ref, "OCI chart artifact missing from pulled content")
	}

	schema, err := extractValuesSchema(tgz)
	if err != nil {
		return nil, err
	}
	if err := writeCachedJSON(cachePath, json.RawMessage(schema)); err != nil {
		return nil, err
	}
	return schema, nil
}

func resolveChartGit(ctx context.Context, repo, tag, path string) (json.RawMessage, error) {
	scratch, err := os.MkdirTemp("", "husako-chart-git-*")
	if err != nil {
		return nil, errkind.Wrap(errkind.Fetch, repo, "creating scratch directory", err)
	}
	defer os.RemoveAll(scratch)

	if _, err := git.PlainCloneContext(ctx, scratch, false, &git.CloneOptions{
		URL:           repo,
		ReferenceName: plumbing.NewTagReferenceName(tag),
		SingleBranch:  true,
		Depth:         1,
	}); err != nil {
		return nil, errkind.Wrap(errkind.Fetch, repo, "cloning chart repository at tag "+tag, err)
	}
	return resolveChartFile(filepath.Join(scratch, path, "values.schema.json"))
}

func resolveChartFile(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errkind.Wrap(errkind.Fetch, path, "reading chart values schema", err)
	}
	return json.RawMessage(data), nil
}

// extractValuesSchema decompresses a chart .tgz archive and returns the
// values.schema.json file found at the chart's top directory
// ("<chart>/values.schema.json").
func extractValuesSchema(tgz []byte) (json.RawMessage, error) {
	gz, err := gzip.NewReader(bytes.NewReader(tgz))
	if err != nil {
		return nil, errkind.Wrap(errkind.Fetch, "chart archive", "opening gzip stream", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errkind.Wrap(errkind.Fetch, "chart archive", "reading tar stream", err)
		}
		parts := strings.SplitN(hdr.Name, "/", 2)
		if len(parts) == 2 && parts[1] == "values.schema.json" {
			data, err := io.ReadAll(tr)
			if err != nil {
				return nil, errkind.Wrap(errkind.Fetch, hdr.Name, "reading values.schema.json", err)
			}
			return json.RawMessage(data), nil
		}
	}
	return nil, errkind.New(errkind.Fetch, "chart archive", "values.schema.json not found in chart")
}
