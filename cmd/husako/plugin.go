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
	"github.com/spf13/cobra"
)

// newPluginCmd groups the plugin-specific convenience aliases over
// `add --kind plugin`/`remove --kind plugin`/`list` (spec.md §3).
func newPluginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugin",
		Short: "Manage plugin dependencies",
	}
	cmd.AddCommand(newPluginAddCmd(), newPluginRemoveCmd(), newPluginListCmd())
	return cmd
}

func newPluginAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a plugin dependency and regenerate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addFlags.kind = "plugin"
			return runAdd(cmd, args)
		},
	}
	cmd.Flags().StringVar(&addFlags.source, "source", "", "git or path")
	cmd.Flags().StringVar(&addFlags.url, "url", "", "plugin git remote URL")
	cmd.Flags().StringVar(&addFlags.path, "path", "", "sparse-checkout subdirectory (git) or local directory (path)")
	return cmd
}

func newPluginRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a plugin dependency and regenerate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd, args[0], "plugin")
		},
	}
}

func newPluginListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List declared plugin dependencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, project, err := loadProject()
			if err != nil {
				return err
			}
			printDepTable("plugins", pluginNames(project))
			return nil
		},
	}
}
