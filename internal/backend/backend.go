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

import (
	"context"
	"time"
)

// Row is a single key of a table with its JSON-encoded value.
type Row struct {
	Key   string
	Value string

	// CreatedAt is set only when the row is inserted for the first time.
	// Zero value on Upsert means "do not set".
	CreatedAt time.Time

	UpdatedAt time.Time
}

// Backend is a connection to the storage engine.
type Backend interface {
	// Tables returns a sorted list of existing table names.
	Tables(ctx context.Context) ([]string, error)

	// CreateTable creates a table with the given name.
	// Creating an existing table is not an error.
	// Table names are case-insensitive for ASCII letters.
	CreateTable(ctx context.Context, name string) error

	// Table returns a handle for the table with the given name.
	// The table may not exist yet; it is not checked.
	Table(name string) Table

	// Close closes the connection.
	Close() error
}

// Table is a handle for a single table.
type Table interface {
	// Name returns the table name.
	Name() string

	// Scan returns all rows of the table.
	Scan(ctx context.Context) ([]Row, error)

	// Upsert inserts a new row or updates the existing row with the same key.
	// CreatedAt of the existing row is never changed.
	Upsert(ctx context.Context, row Row) error

	// Delete deletes the row with the given key.
	// It is not an error if such row does not exist.
	Delete(ctx context.Context, key string) error

	// Drop removes the table entirely.
	// It is not an error if the table does not exist.
	Drop(ctx context.Context) error
}
