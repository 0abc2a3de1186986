// Copyright 2021 FerretDB Inc.
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

package lazyerrors

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrors(t *testing.T) {
	t.Parallel()

	err := New("table is locked")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "[lazyerrors_test.go:"), err.Error())
	assert.True(t, strings.HasSuffix(err.Error(), " lazyerrors.TestErrors] table is locked"), err.Error())

	wrapped := Errorf("upsert failed: %w", err)
	assert.Contains(t, wrapped.Error(), "upsert failed: [lazyerrors_test.go:")
	assert.ErrorIs(t, wrapped, err)
	assert.Equal(t, err, errors.Unwrap(errors.Unwrap(wrapped)))
}

func TestError(t *testing.T) {
	t.Parallel()

	err := Error(io.EOF)
	assert.ErrorIs(t, err, io.EOF)
	assert.NotEqual(t, io.EOF, err)
	assert.Equal(t, io.EOF, errors.Unwrap(err))

	assert.Panics(t, func() { _ = Error(nil) })
}

func TestErrorsAs(t *testing.T) {
	t.Parallel()

	type custom struct{ error }

	err := Error(&custom{io.ErrUnexpectedEOF})

	var target *custom
	require.True(t, errors.As(err, &target))
	assert.ErrorIs(t, target.error, io.ErrUnexpectedEOF)
}
