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

	"github.com/shenh062326/velox/pkg/common/moerr"
	"github.com/shenh062326/velox/pkg/container/batch"
)

// Executable is a compiled filter expression.  Run returns one boolean
// per row of the batch.
type Executable interface {
	Run(ctx context.Context, bat *batch.Batch) ([]bool, error)
}

// ExpressionEvaluator compiles filter expressions the scan cannot push
// into the decode path.  The scan uses it only for the remaining
// filter.
type ExpressionEvaluator interface {
	Compile(ctx context.Context, expr *Expr) (Executable, error)
}

// FilterEvalCtx carries the surviving row indices of one remaining
// filter evaluation.  It is populated only when the pass count is
// strictly between zero and the batch size; the all-pass and none-pass
// cases leave it untouched.
type FilterEvalCtx struct {
	SelectedIndices []int64
}

// remainingFilter adapts a compiled expression to the scan loop.  It
// runs on fully materialized batches, after decode-time filtering.
type remainingFilter struct {
	exec    Executable
	evalCtx FilterEvalCtx
}

// evaluate returns the number of rows passing the filter.
func (r *remainingFilter) evaluate(ctx context.Context, bat *batch.Batch) (int, error) {
	passed, err := r.exec.Run(ctx, bat)
	if err != nil {
		return 0, moerr.NewFilterEvaluation(ctx, err)
	}
	n := bat.RowCount()
	if len(passed) != n {
		return 0, moerr.NewFilterEvaluation(ctx,
			moerr.NewInternalError(ctx, "evaluator returned %d bits for %d rows", len(passed), n))
	}
	pass := 0
	for _, ok := range passed {
		if ok {
			pass++
		}
	}
	if pass == 0 || pass == n {
		return pass, nil
	}
	r.evalCtx.SelectedIndices = r.evalCtx.SelectedIndices[:0]
	for i, ok := range passed {
		if ok {
			r.evalCtx.SelectedIndices = append(r.evalCtx.SelectedIndices, int64(i))
		}
	}
	return pass, nil
}
