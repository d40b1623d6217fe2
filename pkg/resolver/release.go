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
	"io"
	"net/http"
	"path/filepath"

	"github.com/getkin/kin-openapi/openapi3"

	"husako/pkg/errkind"
	"husako/pkg/schema"
)

// releaseRepoContentsURL is the GitHub contents API endpoint for the
// upstream Kubernetes OpenAPI v3 spec directory. Overridable in tests.
var releaseRepoContentsURL = "https://api.github.com/repos/kubernetes/kubernetes/contents/api/openapi-spec/v3"

type githubContentEntry struct {
	Name        string `json:"name"`
	DownloadURL string `json:"download_url"`
}

// releaseTag forms the upstream git tag for a "1.35"-style version
// string, e.g. "1.35" -> "v1.35.0" (spec §4.1 Release strategy).
func releaseTag(version string) string {
	return fmt.Sprintf("v%s.0", version)
}

// resolveRelease implements the K8s Release strategy: read from cache
// if a manifest exists, otherwise fetch the upstream directory listing,
// download each file, and rebuild the manifest.
func resolveRelease(ctx context.Context, client *http.Client, cacheRoot, version string) (map[string]schema.Bundle, error) {
	tag := releaseTag(version)
	dir := filepath.Join(cacheRoot, "release", tag)

	manifest, ok, err := readReleaseManifest(dir)
	if err != nil {
		return nil, err
	}
	if !ok {
		manifest, err = fetchReleaseManifest(ctx, client, dir, tag)
		if err != nil {
			return nil, err
		}
	}

	out := make(map[string]schema.Bundle, len(manifest.Files))
	for key, filename := range manifest.Files {
		bundle, err := loadBundleFile(filepath.Join(dir, filename))
		if err != nil {
			return nil, err
		}
		out[key] = bundle
	}
	return out, nil
}

func fetchReleaseManifest(ctx context.Context, client *http.Client, dir, tag string) (*releaseManifest, error) {
	entries, err := listReleaseDirectory(ctx, client, tag)
	if err != nil {
		return nil, err
	}

	manifest := &releaseManifest{Files: map[string]string{}}
	for _, entry := range entries {
		key, ok := discoveryKeyFromFilename(entry.Name)
		if !ok {
			continue
		}
		data, err := httpGetBytes(ctx, client, entry.DownloadURL)
		if err != nil {
			return nil, err
		}
		if err := writeCacheFile(filepath.Join(dir, entry.Name), data); err != nil {
			return nil, err
		}
		manifest.Files[key] = entry.Name
	}
	if err := writeReleaseManifest(dir, manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

func listReleaseDirectory(ctx context.Context, client *http.Client, tag string) ([]githubContentEntry, error) {
	url := fmt.Sprintf("%s?ref=%s", releaseRepoContentsURL, tag)
	data, err := httpGetBytes(ctx, client, url)
	if err != nil {
		return nil, err
	}
	var entries []githubContentEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errkind.Wrap(errkind.Fetch, url, "parsing release directory listing", err)
	}
	return entries, nil
}

func httpGetBytes(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errkind.Wrap(errkind.Fetch, url, "building request", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errkind.Wrap(errkind.Fetch, url, "fetching", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, errkind.New(errkind.Fetch, url, fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errkind.Wrap(errkind.Fetch, url, "reading response body", err)
	}
	return body, nil
}

// loadBundleFile parses a release/registry-shaped OpenAPI v3 document
// (top-level {"components": {"schemas": {...}}}) into a Bundle.
func loadBundleFile(path string) (schema.Bundle, error) {
	data, err := readCacheFile(path)
	if err != nil {
		return nil, err
	}
	return parseBundle(path, data)
}

func parseBundle(location string, data []byte) (schema.Bundle, error) {
	var doc struct {
		Components struct {
			Schemas map[string]*openapi3.Schema `json:"schemas"`
		} `json:"components"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errkind.Wrap(errkind.Fetch, location, "parsing OpenAPI document", err)
	}
	return schema.Bundle(doc.Components.Schemas), nil
}
