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
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"husako/pkg/orchestrator"
	"husako/pkg/runmetrics"
)

var generateFlags struct {
	skipK8s       bool
	noIncremental bool
	metricsAddr   string
}

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "generate",
		Aliases: []string{"gen"},
		Short:   "Resolve dependencies and regenerate .husako/types",
		RunE:    runGenerate,
	}
	cmd.Flags().BoolVar(&generateFlags.skipK8s, "skip-k8s", false, "skip K8s schema resolution/codegen, preserving the existing lock entries")
	cmd.Flags().BoolVar(&generateFlags.noIncremental, "no-incremental", false, "ignore the lock and regenerate everything")
	cmd.Flags().StringVar(&generateFlags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while generating (e.g. :9090)")
	return cmd
}

func runGenerate(cmd *cobra.Command, args []string) error {
	root, project, err := loadProject()
	if err != nil {
		return err
	}

	m := runmetrics.New()
	stopMetrics := maybeServeMetrics(cmd, m, generateFlags.metricsAddr)
	defer stopMetrics()

	start := time.Now()
	result, err := orchestrator.Generate(cmd.Context(), project, orchestrator.Options{
		Root:          root,
		HusakoVersion: Version,
		SkipK8s:       generateFlags.skipK8s,
		NoIncremental: generateFlags.noIncremental,
		HTTPClient:    sharedHTTPClient(),
	})
	m.ObserveGenerate(time.Since(start), err)
	if err != nil {
		return err
	}

	logGenerateResult(result)
	return nil
}

func logGenerateResult(result *orchestrator.Result) {
	slog.Info("generate complete",
		"skipped_k8s", result.SkippedK8s,
		"generated_charts", result.GeneratedCharts,
		"skipped_charts", result.SkippedCharts,
		"installed_plugins", result.InstalledPlugins,
		"skipped_plugins", result.SkippedPlugins)
	if result.LockWriteWarning != "" {
		slog.Warn("lock file not written", "reason", result.LockWriteWarning)
	}
}
