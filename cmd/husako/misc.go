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
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"husako/pkg/core/config"
	"husako/pkg/errkind"
	"husako/pkg/jshost"
	"husako/pkg/lock"
	"husako/pkg/render"
	"husako/pkg/schemastore"
)

var cleanFlags struct {
	cache bool
	types bool
	lock  bool
	all   bool
}

func newCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove generated state",
		Args:  cobra.NoArgs,
		RunE:  runClean,
	}
	cmd.Flags().BoolVar(&cleanFlags.cache, "cache", false, "remove .husako/cache")
	cmd.Flags().BoolVar(&cleanFlags.types, "types", false, "remove .husako/types")
	cmd.Flags().BoolVar(&cleanFlags.lock, "lock", false, "remove husako.lock")
	cmd.Flags().BoolVar(&cleanFlags.all, "all", false, "also remove .husako/plugins (user-installed content)")
	return cmd
}

func runClean(cmd *cobra.Command, args []string) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}

	removeAny := cleanFlags.cache || cleanFlags.types || cleanFlags.lock || cleanFlags.all
	if !removeAny {
		// No flags given: default to the safe, fully-reversible subset
		// (cache + types), never the lock or plugins.
		cleanFlags.cache = true
		cleanFlags.types = true
	}
	if cleanFlags.all {
		cleanFlags.cache = true
		cleanFlags.types = true
		cleanFlags.lock = true
	}

	if cleanFlags.cache {
		if err := removeDir(filepath.Join(root, ".husako", "cache")); err != nil {
			return err
		}
	}
	if cleanFlags.types {
		if err := removeDir(filepath.Join(root, ".husako", "types")); err != nil {
			return err
		}
	}
	if cleanFlags.lock {
		if err := os.Remove(filepath.Join(root, lock.FileName)); err != nil && !os.IsNotExist(err) {
			return errkind.Wrap(errkind.Config, root, "removing lock file", err)
		}
	}
	if cleanFlags.all {
		if err := removeDir(filepath.Join(root, ".husako", "plugins")); err != nil {
			return err
		}
	}
	return nil
}

func removeDir(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return errkind.Wrap(errkind.Config, path, "removing directory", err)
	}
	return nil
}

var debugFlags struct {
	schema string
}

func newDebugCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "debug",
		Short: "Print resolved project paths, loaded config, and lock state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, project, err := loadProject()
			if err != nil {
				return err
			}
			l, err := lock.Load(root)
			if err != nil {
				return err
			}
			fmt.Printf("root: %s\n", root)
			fmt.Printf("config: %s\n", filepath.Join(root, config.FileName))
			fmt.Printf("husako_version (lock): %s\n", l.HusakoVersion)
			printDepTable("resources", resourceNames(project))
			printDepTable("charts", chartNames(project))
			printDepTable("plugins", pluginNames(project))

			if debugFlags.schema != "" {
				return printSchemaYAML(root, debugFlags.schema)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&debugFlags.schema, "schema", "", "also print the named K8s schema from .husako/types/k8s/_schema.json as YAML")
	return cmd
}

func printSchemaYAML(root, name string) error {
	data, err := os.ReadFile(filepath.Join(root, ".husako", "types", "k8s", "_schema.json"))
	if err != nil {
		return errkind.Wrap(errkind.Config, root, "no schema store found; run husako generate first", err)
	}
	store, err := schemastore.Load(data)
	if err != nil {
		return err
	}
	out, err := store.SchemaYAML(name)
	if err != nil {
		return err
	}
	fmt.Printf("--- %s ---\n%s", name, out)
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the husako version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(Version)
			return nil
		},
	}
}

func newTestCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "test <entry>",
		Short: "Run the embedded validation tests in an entry file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(cmd, args[0], timeout)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "JS execution wall-clock budget")
	return cmd
}

func runTest(cmd *cobra.Command, entry string, timeout time.Duration) error {
	root, project, err := loadProject()
	if err != nil {
		return err
	}
	entryPath, err := render.ResolveEntryPath(project, root, entry)
	if err != nil {
		return err
	}
	modResolver, err := render.NewModuleResolver(root, false)
	if err != nil {
		return err
	}

	host := jshost.New(modResolver, jshost.Limits{Timeout: timeout})
	if err := host.LoadForTest(cmd.Context(), entryPath, jshost.Limits{Timeout: timeout}); err != nil {
		return err
	}
	result, err := host.RunAllTests(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Println(result)
	return nil
}
