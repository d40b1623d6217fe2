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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"husako/pkg/orchestrator"
	"husako/pkg/render"
	"husako/pkg/runmetrics"
)

var renderFlags struct {
	out              string
	timeout          time.Duration
	allowOutsideRoot bool
	metricsAddr      string
}

func newRenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render <entry>",
		Short: "Compile, execute, validate, and emit YAML for one entry file",
		Args:  cobra.ExactArgs(1),
		RunE:  runRender,
	}
	cmd.Flags().StringVar(&renderFlags.out, "out", "", "write YAML to this path instead of stdout")
	cmd.Flags().DurationVar(&renderFlags.timeout, "timeout", 30*time.Second, "JS execution wall-clock budget")
	cmd.Flags().BoolVar(&renderFlags.allowOutsideRoot, "allow-outside-root", false, "disable the module resolver's project-root boundary check")
	cmd.Flags().StringVar(&renderFlags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while rendering (e.g. :9090)")
	return cmd
}

func runRender(cmd *cobra.Command, args []string) error {
	root, project, err := loadProject()
	if err != nil {
		return err
	}

	m := runmetrics.New()
	stopMetrics := maybeServeMetrics(cmd, m, renderFlags.metricsAddr)
	defer stopMetrics()

	if !typesPresent(root) {
		slog.Info("no generated types found, running generate first")
		if _, err := orchestrator.Generate(cmd.Context(), project, orchestrator.Options{
			Root:          root,
			HusakoVersion: Version,
			HTTPClient:    sharedHTTPClient(),
		}); err != nil {
			return err
		}
	}

	start := time.Now()
	result, err := render.Render(cmd.Context(), project, render.Options{
		Root:             root,
		Entry:            args[0],
		Timeout:          renderFlags.timeout,
		AllowOutsideRoot: renderFlags.allowOutsideRoot,
		WritePath:        renderFlags.out,
	})
	m.ObserveRender(time.Since(start), err)
	if err != nil {
		return err
	}
	m.AddDocuments(result.DocumentCount)

	if renderFlags.out == "" {
		fmt.Print(result.YAML)
	} else {
		slog.Info("render complete", "run_id", result.RunID, "documents", result.DocumentCount, "out", renderFlags.out)
	}
	return nil
}

// typesPresent reports whether generate has ever produced a K8s schema
// store, the signal Render's auto-generate fallback keys off (spec
// §4.13: "If types are absent, the CLI must auto-run generate before
// render").
func typesPresent(root string) bool {
	_, err := os.Stat(filepath.Join(root, ".husako", "types", "k8s", "_schema.json"))
	return err == nil
}

func newValidateCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "validate [entry-or-alias]",
		Short: "Compile, execute, and validate one or every declared entry without emitting YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var entry string
			if len(args) == 1 {
				entry = args[0]
			}
			return runValidate(cmd, entry, timeout)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "JS execution wall-clock budget per entry")
	return cmd
}

// runValidate drives render.Render for validation's sake only: a
// successful call means the entry compiled, ran, and validated clean
// against the schema store, but no YAML is ever printed or written.
// With no argument it checks every alias in husako.toml's [entries]
// table, which is what a CI job wants to run on every push.
func runValidate(cmd *cobra.Command, entry string, timeout time.Duration) error {
	root, project, err := loadProject()
	if err != nil {
		return err
	}

	if !typesPresent(root) {
		if _, err := orchestrator.Generate(cmd.Context(), project, orchestrator.Options{
			Root:          root,
			HusakoVersion: Version,
			HTTPClient:    sharedHTTPClient(),
		}); err != nil {
			return err
		}
	}

	entries := []string{entry}
	if entry == "" {
		entries = sortedKeys(project.Entries)
	}
	if len(entries) == 0 {
		slog.Warn("no entries declared in husako.toml")
		return nil
	}

	for _, name := range entries {
		if _, err := render.Render(cmd.Context(), project, render.Options{
			Root:    root,
			Entry:   name,
			Timeout: timeout,
		}); err != nil {
			return err
		}
		slog.Info("entry valid", "entry", name)
	}
	return nil
}
