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

// Package main contains confdb command-line tool.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/FerretDB/confdb/build/version"
	"github.com/FerretDB/confdb/confdb"
	"github.com/FerretDB/confdb/internal/util/ctxutil"
	"github.com/FerretDB/confdb/internal/util/logging"
	"github.com/FerretDB/confdb/internal/util/must"
	"github.com/FerretDB/confdb/internal/util/observability"
)

// The cli struct represents all command-line commands, fields and flags.
// It's used for parsing the user input.
//
//nolint:lll // some tags are long
var cli struct {
	DB string `default:"confdb.sqlite" help:"Database file path or SQLite URI." name:"db"`

	Log struct {
		Level  string `default:"${default_log_level}" help:"${help_log_level}"`
		Format string `default:"console"              help:"${help_log_format}" enum:"${enum_log_format}"`
	} `embed:"" prefix:"log-"`

	OTel struct {
		Traces struct {
			Endpoint string `default:"" help:"OpenTelemetry OTLP/HTTP traces endpoint (host:port)."`
		} `embed:"" prefix:"traces-"`
	} `embed:"" prefix:"otel-"`

	DumpMetrics bool `default:"false" help:"Dump metrics to stderr on exit." hidden:""`

	Get      getParams    `cmd:"" help:"Print value as JSON."`
	Set      setParams    `cmd:"" help:"Set value."`
	Del      delParams    `cmd:"" help:"Delete key."`
	List     listParams   `cmd:"" help:"Print all values of the section."`
	Drop     dropParams   `cmd:"" help:"Delete the section with all values."`
	Sections struct{}     `cmd:"" help:"Print names of all sections."`
	Export   exportParams `cmd:"" help:"Export all sections."`
	Import   importParams `cmd:"" help:"Import sections from YAML or JSON file."`
	Version  struct{}     `cmd:"" help:"Print version."`
}

// Additional variables for the kong parsers.
var (
	logLevels = []string{
		zap.DebugLevel.String(),
		zap.InfoLevel.String(),
		zap.WarnLevel.String(),
		zap.ErrorLevel.String(),
	}

	kongOptions = []kong.Option{
		kong.Vars{
			"default_log_level": zap.WarnLevel.String(),

			"enum_log_format": strings.Join(logging.Formats, ","),
			"enum_format":     strings.Join(formats, ","),

			"help_log_format": fmt.Sprintf("Log format: '%s'.", strings.Join(logging.Formats, "', '")),
			"help_log_level":  fmt.Sprintf("Log level: '%s'.", strings.Join(logLevels, "', '")),
			"help_format":     fmt.Sprintf("Output format: '%s'.", strings.Join(formats, "', '")),
		},
		kong.DefaultEnvars("CONFDB"),
	}
)

func main() {
	kongCtx := kong.Parse(&cli, kongOptions...)

	level, err := zapcore.ParseLevel(cli.Log.Level)
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.Setup(level, cli.Log.Format, false)

	if _, err = maxprocs.Set(maxprocs.Logger(logger.Sugar().Debugf)); err != nil {
		logger.Sugar().Warnf("Failed to set GOMAXPROCS: %s.", err)
	}

	shutdown, err := observability.SetupOtel("confdb", version.Get().Version, cli.OTel.Traces.Endpoint, logger.Named("otel"))
	if err != nil {
		logger.Sugar().Fatalf("Failed to set up OpenTelemetry: %s.", err)
	}

	ctx, stop := ctxutil.SigTerm(context.Background())

	err = run(ctx, kongCtx.Command(), os.Stdout, logger)

	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if e := shutdown(shutdownCtx); e != nil {
		logger.Warn("Failed to flush traces.", zap.Error(e))
	}
	cancel()

	if err != nil {
		logger.Sugar().Fatalf("Command %q failed: %s.", kongCtx.Command(), err)
	}
}

// run attaches to the database and runs the given command.
func run(ctx context.Context, cmd string, w io.Writer, l *zap.Logger) (err error) {
	if cmd == "version" {
		printVersion(w)
		return nil
	}

	c, err := confdb.Attach(ctx, cli.DB, l)
	if err != nil {
		return err
	}

	st := confdb.GetStorage(c)

	reg := prometheus.NewRegistry()
	reg.MustRegister(c, st)

	defer func() {
		if cli.DumpMetrics {
			dumpMetrics(reg)
		}

		if e := c.Close(); err == nil {
			err = e
		}
	}()

	switch cmd {
	case "get <section> <key>":
		return get(ctx, st, &cli.Get, w)
	case "set <section> <key> <value>":
		return set(ctx, st, &cli.Set)
	case "del <section> <key>":
		return del(ctx, st, &cli.Del)
	case "list <section>":
		return list(ctx, st, &cli.List, w)
	case "drop <section>":
		return st.Delete(ctx, cli.Drop.Section)
	case "sections":
		return sections(ctx, st, w)
	case "export":
		return export(ctx, st, &cli.Export, w)
	case "import <file>":
		return importFile(ctx, st, &cli.Import)
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

// printVersion prints build information.
func printVersion(w io.Writer) {
	info := version.Get()

	fmt.Fprintln(w, "version:", info.Version)
	fmt.Fprintln(w, "commit:", info.Commit)
	fmt.Fprintln(w, "dirty:", info.Dirty)
}

// dumpMetrics dumps all gathered metrics to stderr.
func dumpMetrics(g prometheus.Gatherer) {
	mfs := must.NotFail(g.Gather())

	for _, mf := range mfs {
		must.NotFail(expfmt.MetricFamilyToText(os.Stderr, mf))
	}
}
