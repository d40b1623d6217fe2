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
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"husako/pkg/core/config"
	"husako/pkg/errkind"
)

const starterMainTS = `import { build } from "husako";

build([
  // Add your resources here, e.g.:
  // configMap("example").data({ key: "value" }),
]);
`

const gitignoreContents = ".husako/\n"

func newNewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new <dir>",
		Short: "Scaffold a new husako project directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return errkind.Wrap(errkind.Config, dir, "creating project directory", err)
			}
			if err := scaffoldProject(dir); err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(dir, "main.ts"), []byte(starterMainTS), 0o644); err != nil {
				return errkind.Wrap(errkind.Config, dir, "writing starter main.ts", err)
			}
			if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(gitignoreContents), 0o644); err != nil {
				return errkind.Wrap(errkind.Config, dir, "writing .gitignore", err)
			}
			slog.Info("scaffolded husako project", "dir", dir)
			return nil
		},
	}
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write husako.toml in the current directory if absent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.Getwd()
			if err != nil {
				return errkind.Wrap(errkind.Unexpected, "", "resolving working directory", err)
			}
			path := filepath.Join(dir, config.FileName)
			if _, err := os.Stat(path); err == nil {
				slog.Info("husako.toml already exists, leaving it in place", "path", path)
				return nil
			}
			if err := scaffoldProject(dir); err != nil {
				return err
			}
			slog.Info("initialized husako.toml", "dir", dir)
			return nil
		},
	}
}

// scaffoldProject writes husako.toml with a starter [entries] alias,
// unless one already exists.
func scaffoldProject(dir string) error {
	path := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(path); err == nil {
		return errkind.New(errkind.Config, path, "husako.toml already exists").
			WithSuggestion("remove it first if you want to start over")
	}
	p := config.New()
	p.Entries["main"] = "main.ts"
	return config.Save(dir, p)
}
