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
	"os"
	"path/filepath"

	"github.com/getkin/kin-openapi/openapi3"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"husako/pkg/crdconvert"
	"husako/pkg/errkind"
	"husako/pkg/schema"
)

// resolveGitCRD implements the Git (K8s CRDs) strategy (spec §4.1): a
// shallow clone at the given tag, converted and bucketed by
// DiscoveryKey, with the scratch clone deleted afterward.
func resolveGitCRD(ctx context.Context, cacheRoot, repo, tag, path string) (map[string]schema.Bundle, error) {
	dir := gitCacheDir(cacheRoot, repo, tag)
	if bundles, ok, err := readCachedGitBundles(dir); ok || err != nil {
		return bundles, err
	}

	scratch, err := os.MkdirTemp("", "husako-git-crd-*")
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
		return nil, errkind.Wrap(errkind.Fetch, repo, "cloning repository at tag "+tag, err)
	}

	groups, err := convertYAMLTree(filepath.Join(scratch, path))
	if err != nil {
		return nil, err
	}
	bundles := bucketGroups(groups)
	if err := writeGitBundleCache(dir, bundles); err != nil {
		return nil, err
	}
	return bundles, nil
}

func readCachedGitBundles(dir string) (map[string]schema.Bundle, bool, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errkind.Wrap(errkind.Fetch, dir, "reading cache directory", err)
	}
	out := map[string]schema.Bundle{}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		key := keyFromCacheFilename(e.Name())
		var raw map[string]*openapi3.Schema
		if ok, err := readCachedJSON(filepath.Join(dir, e.Name()), &raw); err != nil {
			return nil, false, err
		} else if ok {
			out[key] = schema.Bundle(raw)
		}
	}
	if len(out) == 0 {
		return nil, false, nil
	}
	return out, true, nil
}

func writeGitBundleCache(dir string, bundles map[string]schema.Bundle) error {
	for key, bundle := range bundles {
		path := filepath.Join(dir, cacheFilenameFromKey(key))
		if err := writeCachedJSON(path, bundle); err != nil {
			return err
		}
	}
	return nil
}

// cacheFilenameFromKey/keyFromCacheFilename round-trip a DiscoveryKey
// through a flat filename (DiscoveryKeys contain "/", which filenames
// must not), using the same "__" separator convention as release
// manifests.
func cacheFilenameFromKey(key string) string {
	return releaseFilenameFor(key)
}

func keyFromCacheFilename(name string) string {
	key, _ := discoveryKeyFromFilename(name)
	return key
}

// convertYAMLTree reads every .yaml/.yml file under root (a file or a
// directory) and feeds it to the CRD converter, concatenating the
// resulting version groups.
func convertYAMLTree(root string) ([]crdconvert.Group, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errkind.Wrap(errkind.Fetch, root, "reading CRD source", err)
	}

	var files []string
	if info.IsDir() {
		err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := filepath.Ext(path)
			if ext == ".yaml" || ext == ".yml" {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, errkind.Wrap(errkind.Fetch, root, "walking CRD source directory", err)
		}
	} else {
		files = []string{root}
	}

	var groups []crdconvert.Group
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, errkind.Wrap(errkind.Fetch, f, "reading CRD file", err)
		}
		g, err := crdconvert.ConvertGrouped(data)
		if err != nil {
			return nil, errkind.Wrap(errkind.Fetch, f, "converting CRD", err)
		}
		groups = append(groups, g...)
	}
	return groups, nil
}

// bucketGroups assigns every result produced from a CRD version to the
// DiscoveryKey bucket for that version's group/version (spec §4.1: "group
// the resulting schemas by GVK into synthetic DiscoveryKeys").
func bucketGroups(groups []crdconvert.Group) map[string]schema.Bundle {
	out := map[string]schema.Bundle{}
	for _, g := range groups {
		key := discoveryKey(g.Group, g.Version)
		bundle := out[key]
		if bundle == nil {
			bundle = schema.Bundle{}
			out[key] = bundle
		}
		for _, r := range g.Results {
			if s, err := schemaFromRaw(r.Schema); err == nil {
				bundle[r.Name] = s
			}
		}
	}
	return out
}

func schemaFromRaw(raw map[string]interface{}) (*openapi3.Schema, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var s openapi3.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
