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
	"fmt"
)

// BackendContract wraps Backend and enforces its contract.
//
// Users of backend implementations should wrap them with that function.
// The returned Backend panics on contract violations by the caller
// and rejects invalid table names before they reach the implementation.
func BackendContract(b Backend) Backend {
	return &backendContract{
		b: b,
	}
}

// backendContract implements Backend interface.
type backendContract struct {
	b Backend
}

// Tables implements Backend interface.
func (bc *backendContract) Tables(ctx context.Context) ([]string, error) {
	return bc.b.Tables(ctx)
}

// CreateTable implements Backend interface.
func (bc *backendContract) CreateTable(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidTableName)
	}

	return bc.b.CreateTable(ctx, name)
}

// Table implements Backend interface.
func (bc *backendContract) Table(name string) Table {
	if name == "" {
		panic("backend.Table: empty table name")
	}

	return &tableContract{
		t: bc.b.Table(name),
	}
}

// Close implements Backend interface.
func (bc *backendContract) Close() error {
	return bc.b.Close()
}

// tableContract implements Table interface.
type tableContract struct {
	t Table
}

// Name implements Table interface.
func (tc *tableContract) Name() string {
	return tc.t.Name()
}

// Scan implements Table interface.
func (tc *tableContract) Scan(ctx context.Context) ([]Row, error) {
	return tc.t.Scan(ctx)
}

// Upsert implements Table interface.
func (tc *tableContract) Upsert(ctx context.Context, row Row) error {
	if row.Key == "" {
		panic("backend.Table.Upsert: empty key")
	}

	if row.UpdatedAt.IsZero() {
		panic("backend.Table.Upsert: zero UpdatedAt")
	}

	return tc.t.Upsert(ctx, row)
}

// Delete implements Table interface.
func (tc *tableContract) Delete(ctx context.Context, key string) error {
	if key == "" {
		panic("backend.Table.Delete: empty key")
	}

	return tc.t.Delete(ctx, key)
}

// Drop implements Table interface.
func (tc *tableContract) Drop(ctx context.Context) error {
	return tc.t.Drop(ctx)
}

// check interfaces
var (
	_ Backend = (*backendContract)(nil)
	_ Table   = (*tableContract)(nil)
)
