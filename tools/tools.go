//go:build tools
// +build tools

// Package tools tracks tool dependencies for the project.
// This ensures that `go mod tidy` doesn't remove tool dependencies.
package tools

import (
	_ "github.com/golangci/golangci-lint/cmd/golangci-lint"
	_ "golang.org/x/vuln/cmd/govulncheck"
)
