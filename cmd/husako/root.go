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

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"husako/pkg/core/config"
	"husako/pkg/errkind"
	"husako/pkg/runmetrics"
)

// rootFlags are shared across every subcommand.
var rootFlags struct {
	root string
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "husako",
		Short:         "A TypeScript manifest builder for Kubernetes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&rootFlags.root, "root", "", "project root (default: nearest ancestor containing husako.toml)")

	root.AddCommand(
		newGenerateCmd(),
		newRenderCmd(),
		newNewCmd(),
		newInitCmd(),
		newAddCmd(),
		newRemoveCmd(),
		newListCmd(),
		newInfoCmd(),
		newOutdatedCmd(),
		newUpdateCmd(),
		newPluginCmd(),
		newValidateCmd(),
		newTestCmd(),
		newCleanCmd(),
		newDebugCmd(),
		newVersionCmd(),
	)
	return root
}

// projectRoot resolves rootFlags.root, falling back to the nearest
// ancestor directory containing husako.toml.
func projectRoot() (string, error) {
	if rootFlags.root != "" {
		return rootFlags.root, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", errkind.Wrap(errkind.Unexpected, "", "resolving working directory", err)
	}
	return config.FindProjectRoot(cwd)
}

// loadProject resolves the project root and loads+validates husako.toml.
func loadProject() (string, *config.Project, error) {
	root, err := projectRoot()
	if err != nil {
		return "", nil, err
	}
	p, err := config.LoadProject(root)
	if err != nil {
		return "", nil, err
	}
	return root, p, nil
}

// sharedHTTPClient is the default HTTP client every network-touching
// subcommand uses, matching pkg/resolver's own per-request timeout
// discipline (spec §5).
func sharedHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// maybeServeMetrics starts m's Prometheus endpoint on addr in the
// background when addr is non-empty; the returned func stops it and
// must be deferred regardless of whether serving was started.
func maybeServeMetrics(cmd *cobra.Command, m *runmetrics.Collector, addr string) func() {
	if addr == "" {
		return func() {}
	}
	ctx, cancel := context.WithCancel(cmd.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := m.Serve(ctx, addr); err != nil {
			slog.Warn("metrics server stopped", "error", err)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
