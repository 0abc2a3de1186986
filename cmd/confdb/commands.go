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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/FerretDB/confdb/confdb"
	"github.com/FerretDB/confdb/internal/util/lazyerrors"
)

// Supported output formats.
var formats = []string{"json", "yaml"}

// getParams represents `confdb get` parameters.
type getParams struct {
	Section string `arg:"" help:"Section name."`
	Key     string `arg:"" help:"Key."`
	Default string `help:"Value (JSON) to print if the key does not exist." env:"-"`
}

// setParams represents `confdb set` parameters.
type setParams struct {
	Section string `arg:"" help:"Section name."`
	Key     string `arg:"" help:"Key."`
	Value   string `arg:"" help:"Value (JSON)."`
	String  bool   `help:"Treat value as a plain string, not JSON." env:"-"`
}

// delParams represents `confdb del` parameters.
type delParams struct {
	Section string `arg:"" help:"Section name."`
	Key     string `arg:"" help:"Key."`
}

// listParams represents `confdb list` parameters.
type listParams struct {
	Section string `arg:"" help:"Section name."`
	Format  string `default:"json" help:"${help_format}" enum:"${enum_format}" env:"-"`
}

// dropParams represents `confdb drop` parameters.
type dropParams struct {
	Section string `arg:"" help:"Section name."`
}

// exportParams represents `confdb export` parameters.
type exportParams struct {
	Format string `default:"yaml" help:"${help_format}"             enum:"${enum_format}" env:"-"`
	Output string `default:"-"    help:"Output file, '-' for stdout." env:"-"`
}

// importParams represents `confdb import` parameters.
type importParams struct {
	File string `arg:"" help:"YAML or JSON file with sections as top-level keys." type:"existingfile"`
}

// write writes v to w in the given format.
func write(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(v)

	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		if err := enc.Encode(v); err != nil {
			return lazyerrors.Error(err)
		}

		return enc.Close()

	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// parseValue parses JSON value keeping numbers as is.
func parseValue(s string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON value %q (use --string for plain strings): %w", s, err)
	}

	if dec.More() {
		return nil, fmt.Errorf("invalid JSON value %q: unexpected data after the value", s)
	}

	return v, nil
}

// get implements `confdb get`.
func get(ctx context.Context, st *confdb.Storage, p *getParams, w io.Writer) error {
	s, err := st.Get(ctx, p.Section)
	if err != nil {
		return err
	}

	var v any

	if p.Default == "" {
		v, err = s.Get(p.Key)
	} else {
		var def any
		if def, err = parseValue(p.Default); err != nil {
			return err
		}

		v, err = s.GetDefault(p.Key, def)
	}

	if err != nil {
		return err
	}

	return write(w, "json", v)
}

// set implements `confdb set`.
func set(ctx context.Context, st *confdb.Storage, p *setParams) error {
	s, err := st.Get(ctx, p.Section)
	if err != nil {
		return err
	}

	var v any = p.Value

	if !p.String {
		if v, err = parseValue(p.Value); err != nil {
			return err
		}
	}

	pending, err := s.Set(p.Key, v)
	if err != nil {
		return err
	}

	return pending.Wait(ctx)
}

// del implements `confdb del`.
func del(ctx context.Context, st *confdb.Storage, p *delParams) error {
	s, err := st.Get(ctx, p.Section)
	if err != nil {
		return err
	}

	pending, err := s.Delete(p.Key)
	if err != nil {
		return err
	}

	return pending.Wait(ctx)
}

// list implements `confdb list`.
func list(ctx context.Context, st *confdb.Storage, p *listParams, w io.Writer) error {
	s, err := st.Get(ctx, p.Section)
	if err != nil {
		return err
	}

	all, err := s.GetAll()
	if err != nil {
		return err
	}

	return write(w, p.Format, all)
}

// sections implements `confdb sections`.
func sections(ctx context.Context, st *confdb.Storage, w io.Writer) error {
	tables, err := st.Tables(ctx)
	if err != nil {
		return err
	}

	for _, t := range tables {
		if _, err = fmt.Fprintln(w, t); err != nil {
			return err
		}
	}

	return nil
}

// export implements `confdb export`.
func export(ctx context.Context, st *confdb.Storage, p *exportParams, w io.Writer) (err error) {
	tables, err := st.Tables(ctx)
	if err != nil {
		return err
	}

	res := make(map[string]map[string]any, len(tables))

	for _, t := range tables {
		var s *confdb.Section
		if s, err = st.Get(ctx, t); err != nil {
			return err
		}

		if res[t], err = s.GetAll(); err != nil {
			return err
		}
	}

	if p.Output != "" && p.Output != "-" {
		var f *os.File
		if f, err = os.Create(p.Output); err != nil {
			return err
		}

		defer func() {
			if e := f.Close(); err == nil {
				err = e
			}
		}()

		w = f
	}

	return write(w, p.Format, res)
}

// importFile implements `confdb import`.
//
// The file is parsed as YAML, which is a superset of JSON.
func importFile(ctx context.Context, st *confdb.Storage, p *importParams) error {
	b, err := os.ReadFile(p.File)
	if err != nil {
		return err
	}

	var data map[string]map[string]any
	if err = yaml.Unmarshal(b, &data); err != nil {
		return fmt.Errorf("%s: %w", p.File, err)
	}

	names := maps.Keys(data)
	slices.Sort(names)

	var pendings []*confdb.Pending

	for _, name := range names {
		var s *confdb.Section
		if s, err = st.Get(ctx, name); err != nil {
			return err
		}

		keys := maps.Keys(data[name])
		slices.Sort(keys)

		for _, k := range keys {
			var pending *confdb.Pending
			if pending, err = s.Set(k, data[name][k]); err != nil {
				return fmt.Errorf("%s.%s: %w", name, k, err)
			}

			pendings = append(pendings, pending)
		}
	}

	for _, pending := range pendings {
		if err = pending.Wait(ctx); err != nil {
			return err
		}
	}

	return nil
}
