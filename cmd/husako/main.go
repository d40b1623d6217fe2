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

// Package main provides the CLI entrypoint for husako, the TypeScript
// manifest builder.
//
// husako compiles a TypeScript builder DSL through an embedded JS
// engine, validates the result against Kubernetes OpenAPI schemas, and
// emits YAML. Run `husako --help` for the full command list.
package main

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"runtime"
	"runtime/debug"

	_ "github.com/KimMachineGun/automemlimit"

	"husako/pkg/errkind"
)

// Version is the semantic version baked in at build time via -ldflags
// (spec.md §3's "husako version" operation); unset builds fall back to
// this literal.
var Version = "0.1.0"

func main() {
	logLevel := slog.LevelInfo
	switch os.Getenv("VERBOSE") {
	case "0":
		logLevel = slog.LevelWarn
	case "2":
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	gomaxprocs := runtime.GOMAXPROCS(0)
	var gomemlimit string
	if limit := debug.SetMemoryLimit(-1); limit != math.MaxInt64 {
		gomemlimit = fmt.Sprintf("%d bytes (%.2f MiB)", limit, float64(limit)/(1024*1024))
	} else {
		gomemlimit = "unlimited"
	}
	logger.Debug("husako starting", "version", Version, "gomaxprocs", gomaxprocs, "gomemlimit", gomemlimit)

	root := newRootCmd()
	if err := root.Execute(); err != nil {
		logger.Error(err.Error())
		os.Exit(errkind.ExitCode(err))
	}
}
