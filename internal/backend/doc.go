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

// Package backend provides the contract between the configuration store and its storage engine.
//
// # Design principles
//
//  1. Backend is a thin, table-level interface: list, create and drop tables;
//     scan, upsert and delete rows by key. There is no query language.
//  2. Implementations are not required to be safe for concurrent use.
//     The caller serializes every call on a single goroutine.
//  3. Contexts are per-operation and should not be stored.
//  4. A table holds rows of the same shape, see [Row]. Key is the primary key.
package backend
