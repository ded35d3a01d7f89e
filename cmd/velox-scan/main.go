// Copyright 2021 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// velox-scan exercises the columnar scan pipeline from the command
// line: write-demo produces a sample file, scan reads one back with an
// optional pushed-down range filter.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/shenh062326/velox/pkg/config"
	"github.com/shenh062326/velox/pkg/fileservice"
	"github.com/shenh062326/velox/pkg/logutil"
	"github.com/shenh062326/velox/pkg/scan"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	ctx := context.Background()
	var err error
	switch os.Args[1] {
	case "write-demo":
		err = runWriteDemo(ctx, os.Args[2:])
	case "scan":
		err = runScan(ctx, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logutil.Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage:
  velox-scan write-demo [-config file] [-file name] [-rows n]
  velox-scan scan [-config file] [-file name] [-columns a,b] [-batch n]
                  [-filter-col c] [-filter-min v] [-filter-max v]
`)
}

func newLocalFS(ctx context.Context, cfgPath *string, fs *flag.FlagSet, args []string) (*config.Config, *fileservice.LocalFS, error) {
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	var cfg config.Config
	if err := config.ParseTomlFile(ctx, *cfgPath, &cfg); err != nil {
		return nil, nil, err
	}
	logutil.SetupLogger(&cfg.Log)
	lfs, err := fileservice.NewLocalFS(cfg.DataDir, nil)
	if err != nil {
		return nil, nil, err
	}
	return &cfg, lfs, nil
}

func runScan(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	cfgPath := fs.String("config", "", "toml configuration file")
	file := fs.String("file", "demo.vx", "file to scan, relative to data-dir")
	columns := fs.String("columns", "", "comma separated output columns, default all")
	batch := fs.Int("batch", 0, "rows per batch, default from config")
	filterCol := fs.String("filter-col", "", "integer column to filter on")
	filterMin := fs.Int64("filter-min", math.MinInt64, "lower bound, inclusive")
	filterMax := fs.Int64("filter-max", math.MaxInt64, "upper bound, inclusive")

	cfg, lfs, err := newLocalFS(ctx, cfgPath, fs, args)
	if err != nil {
		return err
	}
	defer lfs.Close()
	if *batch <= 0 {
		*batch = cfg.Scan.BatchRows
	}

	schema, err := readSchema(ctx, lfs, *file)
	if err != nil {
		return err
	}
	output := schema
	if *columns != "" {
		if output, err = projectSchema(ctx, schema, strings.Split(*columns, ",")); err != nil {
			return err
		}
	}

	opts := scan.Options{OutputType: output}
	if *filterCol != "" {
		opts.Filter = rangeExpr(*filterCol, *filterMin, *filterMax)
	}
	ds, err := scan.NewDataSource(ctx, lfs, schema, opts)
	if err != nil {
		return err
	}
	defer ds.Close()
	if err := ds.AddSplit(&scan.Split{Path: *file}); err != nil {
		return err
	}

	names := make([]string, 0, len(output.Children))
	for _, f := range output.Children {
		names = append(names, f.Name)
	}
	fmt.Println(strings.Join(names, "\t"))

	total := 0
	for {
		bat, token, err := ds.Next(ctx, *batch)
		if err != nil {
			return err
		}
		if token != nil {
			<-token
			continue
		}
		if bat == nil {
			break
		}
		printBatch(bat, output)
		total += bat.RowCount()
	}

	logutil.Info("scan done", zap.Int("rows", total))
	stats := ds.RuntimeStats()
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(os.Stderr, "%-24s %d\n", k, stats[k])
	}
	return nil
}

func rangeExpr(col string, lo, hi int64) *scan.Expr {
	var conj []*scan.Expr
	if lo != math.MinInt64 {
		v := lo
		conj = append(conj, &scan.Expr{Op: scan.OpGe, Column: col, Int: &v})
	}
	if hi != math.MaxInt64 {
		v := hi
		conj = append(conj, &scan.Expr{Op: scan.OpLe, Column: col, Int: &v})
	}
	switch len(conj) {
	case 0:
		return nil
	case 1:
		return conj[0]
	default:
		return &scan.Expr{Op: scan.OpAnd, Args: conj}
	}
}
