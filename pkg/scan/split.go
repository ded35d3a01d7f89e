// Copyright 2022 Matrix Origin
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

package scan

import (
	"context"
	"strconv"

	"github.com/shenh062326/velox/pkg/common/moerr"
	"github.com/shenh062326/velox/pkg/container/types"
	"github.com/shenh062326/velox/pkg/container/vector"
)

// Split names one unit of scan work: a file plus the partition context
// it was found under.  A split is an idempotently retryable read; it
// carries no mutable state.
type Split struct {
	Path string

	// PartitionKeys are materialized as constant columns, never read
	// from the file.  A nil value is a null partition key.
	PartitionKeys map[string]*string

	// SerdeParams are forwarded opaquely to nested-column parsing.
	SerdeParams map[string]string
}

// partitionVector builds the constant column vector for one partition
// key value over n rows.
func partitionVector(ctx context.Context, typ types.Type, value *string, n int) (*vector.Vector, error) {
	if value == nil {
		return vector.NewConstNull(typ, n), nil
	}
	switch typ.Oid {
	case types.T_bool:
		v, err := strconv.ParseBool(*value)
		if err != nil {
			return nil, moerr.NewInvalidArg(ctx, "partition key", *value)
		}
		return vector.NewConstFixed(typ, v, n), nil
	case types.T_int8, types.T_int16, types.T_int32, types.T_int64:
		v, err := strconv.ParseInt(*value, 10, 64)
		if err != nil {
			return nil, moerr.NewInvalidArg(ctx, "partition key", *value)
		}
		switch typ.Oid {
		case types.T_int8:
			return vector.NewConstFixed(typ, int8(v), n), nil
		case types.T_int16:
			return vector.NewConstFixed(typ, int16(v), n), nil
		case types.T_int32:
			return vector.NewConstFixed(typ, int32(v), n), nil
		}
		return vector.NewConstFixed(typ, v, n), nil
	case types.T_float32, types.T_float64:
		v, err := strconv.ParseFloat(*value, 64)
		if err != nil {
			return nil, moerr.NewInvalidArg(ctx, "partition key", *value)
		}
		if typ.Oid == types.T_float32 {
			return vector.NewConstFixed(typ, float32(v), n), nil
		}
		return vector.NewConstFixed(typ, v, n), nil
	case types.T_varchar, types.T_varbinary:
		return vector.NewConstBytes(typ, []byte(*value), n), nil
	}
	return nil, moerr.NewNYI(ctx, "partition key of type %s", typ.Oid)
}
