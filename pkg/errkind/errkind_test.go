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

package errkind

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCodes(t *testing.T) {
	cases := map[Kind]int{
		Unexpected: 1,
		Config:     2,
		Compile:    3,
		Runtime:    4,
		TypeGen:    5,
		Fetch:      6,
		Validation: 7,
	}
	for kind, code := range cases {
		assert.Equal(t, code, kind.ExitCode())
	}
}

func TestExitCodeFromWrappedError(t *testing.T) {
	base := New(Validation, "$.spec.foo", "strict-JSON violation")
	wrapped := fmt.Errorf("render failed: %w", base)
	assert.Equal(t, 7, ExitCode(wrapped))
}

func TestExitCodeDefaultsToUnexpected(t *testing.T) {
	assert.Equal(t, 1, ExitCode(fmt.Errorf("plain error")))
}
