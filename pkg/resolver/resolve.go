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
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"husako/pkg/core/config"
	"husako/pkg/errkind"
	"husako/pkg/schema"
)

// Options configures a Resolver's shared environment: where the
// project lives, where its cache is, and where kubeconfigs are looked
// up from (overridable in tests; defaults to ~/.kube in production).
type Options struct {
	Root       string
	CacheDir   string
	KubeDir    string
	HTTPClient *http.Client
}

// Resolver runs the Source Resolver's three entry points (spec §4.1)
// over a parallel fan-out with one goroutine per entry; concurrency is
// not capped.
type Resolver struct {
	opts Options
}

// New returns a Resolver. A nil HTTPClient defaults to a client with a
// 30s per-request timeout (spec §5's documented default range).
func New(opts Options) *Resolver {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.CacheDir == "" {
		opts.CacheDir = filepath.Join(opts.Root, ".husako", "cache")
	}
	return &Resolver{opts: opts}
}

// ResolveAll resolves every K8s resource dependency in parallel and
// merges the results by DiscoveryKey, later entries (callers pass deps
// pre-sorted into their intended precedence order, since Go map
// iteration order is not an ordering a caller can rely on) overriding
// earlier ones.
//
// project supplies the [cluster]/[clusters] table a Cluster
// ResourceSource's name (or lack of one) refers to.
//
// A single entry's failure aborts the remaining in-flight entries and
// is returned (spec §5: "A partial failure fails the whole call").
func (r *Resolver) ResolveAll(ctx context.Context, deps []ResourceDependency, project *config.Project) (map[string]schema.Bundle, error) {
	results := make([]map[string]schema.Bundle, len(deps))

	g, gctx := errgroup.WithContext(ctx)
	for i, dep := range deps {
		i, dep := i, dep
		g.Go(func() error {
			bundles, err := r.resolveOne(gctx, dep, project)
			if err != nil {
				return fmt.Errorf("resolving resource %q: %w", dep.Name, err)
			}
			results[i] = bundles
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := map[string]schema.Bundle{}
	for _, bundles := range results {
		merged = mergeBundles(merged, bundles)
	}
	return merged, nil
}

func (r *Resolver) resolveOne(ctx context.Context, dep ResourceDependency, project *config.Project) (map[string]schema.Bundle, error) {
	src := dep.Source
	switch src.Source {
	case config.ResourceRelease:
		return resolveRelease(ctx, r.opts.HTTPClient, r.opts.CacheDir, src.Version)
	case config.ResourceGit:
		return resolveGitCRD(ctx, r.opts.CacheDir, src.Repo, src.Tag, src.Path)
	case config.ResourceFile:
		return resolveFileCRD(filepath.Join(r.opts.Root, src.Path))
	case config.ResourceCluster:
		cc, err := clusterConfigFromProject(project, src.Cluster)
		if err != nil {
			return nil, err
		}
		return resolveCluster(ctx, r.opts.KubeDir, cc.Server, cc.Token)
	default:
		return nil, errkind.New(errkind.Config, dep.Name, fmt.Sprintf("unknown resource source %q", src.Source))
	}
}

func clusterConfigFromProject(project *config.Project, name string) (config.ClusterConfig, error) {
	if name == "" {
		if project.Cluster == nil {
			return config.ClusterConfig{}, errkind.New(errkind.Config, "cluster", "resource source references the unnamed [cluster] entry, but none is declared")
		}
		return *project.Cluster, nil
	}
	cc, ok := project.Clusters[name]
	if !ok {
		return config.ClusterConfig{}, errkind.New(errkind.Config, name, fmt.Sprintf("resource source references unknown cluster %q", name))
	}
	return cc, nil
}

// ResolveAllCharts resolves every chart dependency in parallel.
func (r *Resolver) ResolveAllCharts(ctx context.Context, deps []ChartDependency) (map[string]json.RawMessage, error) {
	var mu sync.Mutex
	out := map[string]json.RawMessage{}

	g, gctx := errgroup.WithContext(ctx)
	for _, dep := range deps {
		dep := dep
		g.Go(func() error {
			s, err := resolveChart(gctx, r.opts.HTTPClient, r.opts.CacheDir, dep)
			if err != nil {
				return fmt.Errorf("resolving chart %q: %w", dep.Name, err)
			}
			mu.Lock()
			out[dep.Name] = s
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// InstallPlugins installs every plugin dependency in parallel.
func (r *Resolver) InstallPlugins(ctx context.Context, deps []PluginDependency) ([]InstalledPlugin, error) {
	results := make([]InstalledPlugin, len(deps))

	g, gctx := errgroup.WithContext(ctx)
	for i, dep := range deps {
		i, dep := i, dep
		g.Go(func() error {
			installed, err := installPlugin(gctx, r.opts.Root, dep)
			if err != nil {
				return fmt.Errorf("installing plugin %q: %w", dep.Name, err)
			}
			results[i] = installed
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
