// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jllopis/allot/pkg/errors"
	"github.com/jllopis/allot/pkg/matrix"
	"github.com/jllopis/allot/pkg/spacer"
	"github.com/jllopis/allot/pkg/telemetry"
)

// RespaceRequest carries binary rows and their original indices, position
// for position.
type RespaceRequest struct {
	Rows    *matrix.Assignment `json:"rows"`
	Indices []int              `json:"original_indices"`
}

// RespaceResponse is the reordered rows and indices.
type RespaceResponse struct {
	Rows    *matrix.Assignment `json:"reordered_rows"`
	Indices []int              `json:"reordered_indices"`
}

// Respace reorders rows so that consecutive rows share as few set cells as
// possible. It does not need the reference table.
func (s *Service) Respace(ctx context.Context, req RespaceRequest) (resp RespaceResponse, err error) {
	ctx, finish := s.start(ctx, OpRespace, attribute.Int(telemetry.AttrRows, len(req.Indices)))
	defer func() { finish(&err) }()

	var cells [][]bool
	if req.Rows != nil {
		cells = req.Rows.Rows()
	}
	rows, err := spacer.FromParallel(cells, req.Indices)
	if err != nil {
		return RespaceResponse{}, err
	}
	out, err := spacer.Respace(rows)
	if err != nil {
		return RespaceResponse{}, err
	}

	grid := make([][]bool, len(out))
	for k, r := range out {
		grid[k] = r.Cells
	}
	reordered, err := matrix.FromRows(grid)
	if err != nil {
		return RespaceResponse{}, errors.New(errors.CodeInternal, "reordered rows are ragged", err)
	}

	s.logger.DebugContext(ctx, "rows respaced", "rows", len(out))
	return RespaceResponse{Rows: reordered, Indices: spacer.Indices(out)}, nil
}
