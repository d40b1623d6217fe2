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

// Package config provides data models for husako.toml, the project
// configuration file that declares entries, dependency sources, and
// cluster connection details.
//
// Dependency sources (ResourceSource, ChartSource, PluginSource) are
// closed tagged unions keyed by a "source" discriminant field, per the
// Design Notes on tagged unions vs. runtime dispatch: fields not used by
// a given Source value are simply left zero, and callers switch on
// Source rather than relying on structural typing.
package config

// Project is the root structure of husako.toml.
type Project struct {
	// Entries maps an alias to a relative path, e.g. main = "src/main.ts".
	Entries map[string]string `toml:"entries"`

	// Cluster is the single unnamed cluster entry. Mutually exclusive
	// with Clusters.
	Cluster *ClusterConfig `toml:"cluster,omitempty"`

	// Clusters is a map of named cluster entries. Mutually exclusive
	// with Cluster.
	Clusters map[string]ClusterConfig `toml:"clusters,omitempty"`

	// Resources declares Kubernetes/CRD schema sources, keyed by name.
	Resources map[string]ResourceSource `toml:"resources"`

	// Charts declares Helm chart value-schema sources, keyed by chart name.
	Charts map[string]ChartSource `toml:"charts"`

	// Plugins declares plugin sources, keyed by plugin name.
	Plugins map[string]PluginSource `toml:"plugins"`
}

// ClusterConfig describes how to reach a Kubernetes API server for the
// Cluster resource source.
type ClusterConfig struct {
	// Server is the API server URL used to locate a matching kubeconfig
	// cluster entry.
	Server string `toml:"server"`

	// Token, if set, is used directly instead of kubeconfig credential
	// resolution.
	Token string `toml:"token,omitempty"`
}

// ResourceSourceKind is the discriminant of ResourceSource.
type ResourceSourceKind string

const (
	ResourceRelease ResourceSourceKind = "release"
	ResourceGit     ResourceSourceKind = "git"
	ResourceFile    ResourceSourceKind = "file"
	ResourceCluster ResourceSourceKind = "cluster"
)

// ResourceSource is a tagged union over the four K8s resource source
// kinds: Release{version}, Git{repo,tag,path}, File{path},
// Cluster{cluster_name?}.
type ResourceSource struct {
	Source ResourceSourceKind `toml:"source"`

	// Version is used by Release, e.g. "1.35".
	Version string `toml:"version,omitempty"`

	// Repo is used by Git.
	Repo string `toml:"repo,omitempty"`

	// Tag is used by Git.
	Tag string `toml:"tag,omitempty"`

	// Path is used by Git (subdirectory) and File (file or directory).
	Path string `toml:"path,omitempty"`

	// Cluster optionally names a clusters.<name> entry; empty means the
	// unnamed [cluster] entry. Used by Cluster.
	Cluster string `toml:"cluster,omitempty"`
}

// ChartSourceKind is the discriminant of ChartSource.
type ChartSourceKind string

const (
	ChartRegistry   ChartSourceKind = "registry"
	ChartArtifactHub ChartSourceKind = "artifacthub"
	ChartGit        ChartSourceKind = "git"
	ChartFile       ChartSourceKind = "file"
	ChartOci        ChartSourceKind = "oci"
)

// ChartSource is a tagged union over the five Helm chart source kinds:
// Registry{repo,chart,version}, ArtifactHub{package,version},
// Git{repo,tag,path}, File{path}, Oci{reference,version}.
type ChartSource struct {
	Source ChartSourceKind `toml:"source"`

	// Repo is used by Registry (index.yaml base URL) and Git.
	Repo string `toml:"repo,omitempty"`

	// Chart is the chart name within a Registry index.
	Chart string `toml:"chart,omitempty"`

	// Version pins the chart version. Used by Registry, ArtifactHub, Oci.
	Version string `toml:"version,omitempty"`

	// Package is the ArtifactHub package slug ("<repo>/<chart>").
	Package string `toml:"package,omitempty"`

	// Tag is used by Git.
	Tag string `toml:"tag,omitempty"`

	// Path is used by Git (subdirectory) and File.
	Path string `toml:"path,omitempty"`

	// Reference is the OCI image reference, used by Oci.
	Reference string `toml:"reference,omitempty"`
}

// PluginSourceKind is the discriminant of PluginSource.
type PluginSourceKind string

const (
	PluginGit  PluginSourceKind = "git"
	PluginPath PluginSourceKind = "path"
)

// PluginSource is a tagged union over Git{url,path?} and Path{path}.
type PluginSource struct {
	Source PluginSourceKind `toml:"source"`

	// URL is the git remote. Used by Git.
	URL string `toml:"url,omitempty"`

	// Path is a sparse-checkout subdirectory for Git, or the local
	// directory to copy for Path.
	Path string `toml:"path,omitempty"`
}

// New returns an empty Project with initialized maps, ready to be
// populated and saved (used by `husako new`/`husako init`).
func New() *Project {
	return &Project{
		Entries:   map[string]string{},
		Resources: map[string]ResourceSource{},
		Charts:    map[string]ChartSource{},
		Plugins:   map[string]PluginSource{},
	}
}
