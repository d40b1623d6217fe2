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
	"encoding/json"
	"os"
	"path/filepath"

	"husako/pkg/cachekey"
	"husako/pkg/errkind"
)

// releaseManifest lists the files a cached K8s release directory holds,
// keyed by DiscoveryKey, mapping to the filename under the same
// directory (spec §4.1 Release strategy).
type releaseManifest struct {
	Files map[string]string `json:"files"`
}

func readReleaseManifest(dir string) (*releaseManifest, bool, error) {
	path := filepath.Join(dir, "_manifest.json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errkind.Wrap(errkind.Fetch, path, "reading release manifest", err)
	}
	var m releaseManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false, errkind.Wrap(errkind.Fetch, path, "parsing release manifest", err)
	}
	return &m, true, nil
}

func writeReleaseManifest(dir string, m *releaseManifest) error {
	path := filepath.Join(dir, "_manifest.json")
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errkind.Wrap(errkind.Fetch, path, "encoding release manifest", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errkind.Wrap(errkind.Fetch, dir, "creating cache directory", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errkind.Wrap(errkind.Fetch, path, "writing release manifest", err)
	}
	return nil
}

// gitCacheDir returns the cache directory for a K8s CRD git source,
// keyed by a DJB2 hash of the repo URL (spec §4.1 Git (K8s CRDs)).
func gitCacheDir(cacheRoot, repo, tag string) string {
	return filepath.Join(cacheRoot, "git", cachekey.Hash(repo), tag)
}

// helmCacheDir returns the cache file path ("<version>.json") for a Helm
// chart source.
func helmCacheDir(cacheRoot, kind, hashInput, version string) string {
	return filepath.Join(cacheRoot, "helm", kind, cachekey.Hash(hashInput), version+".json")
}

func readCachedJSON(path string, out interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errkind.Wrap(errkind.Fetch, path, "reading cache entry", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, errkind.Wrap(errkind.Fetch, path, "parsing cache entry", err)
	}
	return true, nil
}

func readCacheFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errkind.Wrap(errkind.Fetch, path, "reading cache file", err)
	}
	return data, nil
}

func writeCacheFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errkind.Wrap(errkind.Fetch, filepath.Dir(path), "creating cache directory", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errkind.Wrap(errkind.Fetch, path, "writing cache file", err)
	}
	return nil
}

func writeCachedJSON(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errkind.Wrap(errkind.Fetch, path, "encoding cache entry", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errkind.Wrap(errkind.Fetch, filepath.Dir(path), "creating cache directory", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errkind.Wrap(errkind.Fetch, path, "writing cache entry", err)
	}
	return nil
}
