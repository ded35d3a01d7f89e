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

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shenh062326/velox/pkg/common/moerr"
	"github.com/stretchr/testify/require"
)

func TestParseTomlFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cfg.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
data-dir = "/data/velox"

[log]
level = "debug"
filename = "velox.log"

[scan]
batch-rows = 1024
disable-compression = true
`), 0644))

	var cfg Config
	require.NoError(t, ParseTomlFile(ctx, path, &cfg))
	require.Equal(t, "/data/velox", cfg.DataDir)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "velox.log", cfg.Log.Filename)
	require.Equal(t, 1024, cfg.Scan.BatchRows)
	require.True(t, cfg.Scan.DisableCompression)
	// unset knobs keep their defaults
	require.Equal(t, defaultStripeRows, cfg.Scan.StripeRows)
}

func TestParseTomlFileDefaults(t *testing.T) {
	var cfg Config
	require.NoError(t, ParseTomlFile(context.Background(), "", &cfg))
	require.Equal(t, "./velox-data", cfg.DataDir)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, defaultBatchRows, cfg.Scan.BatchRows)
}

func TestParseTomlFileMissing(t *testing.T) {
	var cfg Config
	err := ParseTomlFile(context.Background(), "/no/such/file.toml", &cfg)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidArg))
}
