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

package backend

import "errors"

var (
	// ErrConnection is returned (wrapped) when the backend could not be opened or reached.
	ErrConnection = errors.New("backend: connection failed")

	// ErrInvalidTableName is returned (wrapped) when the table name can't be used by the backend.
	ErrInvalidTableName = errors.New("backend: invalid table name")
)
