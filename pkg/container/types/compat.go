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

package types

import (
	"context"

	"github.com/shenh062326/velox/pkg/common/moerr"
)

// intRank orders integer kinds by width for widening checks.
var intRank = map[T]int{
	T_int8:  1,
	T_int16: 2,
	T_int32: 3,
	T_int64: 4,
}

// CheckCompatibility verifies that a column stored as `stored` can be
// read as `requested`.  Integer and float narrow-to-wide promotions are
// allowed, everything else must match kind for kind.  Nested types are
// checked recursively; a requested struct may ask for a prefix subset
// of the stored fields by name.
func CheckCompatibility(ctx context.Context, requested, stored *Field) error {
	rq, st := requested.Type.Oid, stored.Type.Oid
	if rq != st {
		rr, rok := intRank[rq]
		sr, sok := intRank[st]
		widened := rok && sok && rr >= sr
		if !widened && !(rq == T_float64 && st == T_float32) {
			return moerr.NewSchemaMismatch(ctx, requested.Type.String(), stored.Type.String())
		}
	}
	switch st {
	case T_array:
		return CheckCompatibility(ctx, requested.Children[0], stored.Children[0])
	case T_map:
		if err := CheckCompatibility(ctx, requested.Children[0], stored.Children[0]); err != nil {
			return err
		}
		return CheckCompatibility(ctx, requested.Children[1], stored.Children[1])
	case T_row:
		for _, rc := range requested.Children {
			sc := stored.ChildByName(rc.Name)
			if sc == nil {
				return moerr.NewSchemaMismatch(ctx, rc.String(), stored.Type.String())
			}
			if err := CheckCompatibility(ctx, rc, sc); err != nil {
				return err
			}
		}
	}
	return nil
}
