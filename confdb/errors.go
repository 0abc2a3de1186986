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

package confdb

import (
	"errors"
	"fmt"

	"github.com/FerretDB/confdb/internal/backend"
)

var (
	// ErrConnection is returned by Attach when the database could not be opened.
	ErrConnection = backend.ErrConnection

	// ErrNonExistent is matched by every *NonExistentError.
	ErrNonExistent = errors.New("key does not exist")

	// ErrInvalidName is returned for empty section names and keys.
	ErrInvalidName = errors.New("invalid name")

	// ErrSectionDropped is returned by operations on a section deleted by Storage.Delete.
	ErrSectionDropped = errors.New("section was dropped")

	// ErrNotReady is returned by operations on a section that was not loaded.
	ErrNotReady = errors.New("section is not ready")

	// ErrClosed is returned for operations submitted after Client.Close.
	ErrClosed = errors.New("client is closed")
)

// NonExistentError is returned when the requested key is absent and no default was given.
type NonExistentError struct {
	Section string
	Key     string
}

// Error implements error interface.
func (e *NonExistentError) Error() string {
	return fmt.Sprintf("key %q does not exist in %s", e.Key, e.Section)
}

// Is makes errors.Is(err, ErrNonExistent) work.
func (e *NonExistentError) Is(target error) bool {
	return target == ErrNonExistent
}

// check interfaces
var (
	_ error = (*NonExistentError)(nil)
)
