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

	"github.com/BurntSushi/toml"

	"github.com/shenh062326/velox/pkg/common/moerr"
	"github.com/shenh062326/velox/pkg/logutil"
)

const (
	defaultBatchRows  = 4096
	defaultStripeRows = 8192
)

// ScanConfig holds the knobs of the scan service.
type ScanConfig struct {
	// BatchRows caps the rows produced per DataSource.Next call.
	BatchRows int `toml:"batch-rows"`

	// StripeRows is the row count at which written files cut a stripe.
	StripeRows int `toml:"stripe-rows"`

	// DisableCompression writes file streams raw.
	DisableCompression bool `toml:"disable-compression"`
}

// Config is the root of the toml configuration file.
type Config struct {
	// DataDir is the root directory files are read from and written to.
	DataDir string `toml:"data-dir"`

	Log logutil.LogConfig `toml:"log"`

	Scan ScanConfig `toml:"scan"`
}

func (c *Config) SetDefaultValues() {
	if c.DataDir == "" {
		c.DataDir = "./velox-data"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Scan.BatchRows <= 0 {
		c.Scan.BatchRows = defaultBatchRows
	}
	if c.Scan.StripeRows <= 0 {
		c.Scan.StripeRows = defaultStripeRows
	}
}

// ParseTomlFile loads path into cfg and fills the defaults.  An empty
// path yields the default configuration.
func ParseTomlFile(ctx context.Context, path string, cfg *Config) error {
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return moerr.NewInvalidArg(ctx, "config file", path)
		}
	}
	cfg.SetDefaultValues()
	return nil
}
