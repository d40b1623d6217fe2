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

// Package errkind implements husako's closed error taxonomy and its
// mapping to stable process exit codes (spec §7).
package errkind

import (
	"errors"
	"fmt"
)

// Kind is one of the seven abstract error categories husako ever reports.
type Kind int

const (
	// Unexpected covers I/O and other unforeseen failures.
	Unexpected Kind = iota
	// Config covers TOML parse errors, bad paths, dangling references.
	Config
	// Compile covers TypeScript syntax/type-strip failures.
	Compile
	// Runtime covers module resolution, uncaught JS errors, timeouts, heap caps.
	Runtime
	// TypeGen covers emitter and schema-store build failures.
	TypeGen
	// Fetch covers network, auth, tag/chart-not-found, git-clone, kubeconfig errors.
	Fetch
	// Validation covers strict-JSON violations, build-call-count violations,
	// schema validation failures, and fallback-quantity failures.
	Validation
)

// ExitCode returns the stable exit code for k, per spec §6.
func (k Kind) ExitCode() int {
	switch k {
	case Unexpected:
		return 1
	case Config:
		return 2
	case Compile:
		return 3
	case Runtime:
		return 4
	case TypeGen:
		return 5
	case Fetch:
		return 6
	case Validation:
		return 7
	default:
		return 1
	}
}

func (k Kind) String() string {
	switch k {
	case Config:
		return "config"
	case Compile:
		return "compile"
	case Runtime:
		return "runtime"
	case TypeGen:
		return "typegen"
	case Fetch:
		return "fetch"
	case Validation:
		return "validation"
	default:
		return "unexpected"
	}
}

// Error is a husako error carrying a Kind (for exit-code mapping), a
// Location (file path, JSON path, dependency name, or document index —
// whichever applies), and an optional actionable Suggestion.
type Error struct {
	Kind       Kind
	Location   string
	Message    string
	Suggestion string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Location != "" {
		msg = fmt.Sprintf("%s: %s", e.Location, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Suggestion != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Suggestion)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error of the given kind.
func New(kind Kind, location, message string) *Error {
	return &Error{Kind: kind, Location: location, Message: message}
}

// Wrap constructs an Error of the given kind wrapping err.
func Wrap(kind Kind, location, message string, err error) *Error {
	return &Error{Kind: kind, Location: location, Message: message, Err: err}
}

// WithSuggestion returns a copy of e with Suggestion set.
func (e *Error) WithSuggestion(s string) *Error {
	c := *e
	c.Suggestion = s
	return &c
}

// ExitCode extracts the exit code from err, defaulting to Unexpected's
// code (1) if err is not an *Error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind.ExitCode()
	}
	return Unexpected.ExitCode()
}
