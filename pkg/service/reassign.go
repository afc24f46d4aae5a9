// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/allot/pkg/errors"
	"github.com/jllopis/allot/pkg/matrix"
	"github.com/jllopis/allot/pkg/swap"
	"github.com/jllopis/allot/pkg/telemetry"
)

// ReassignRequest relieves one agent of its roles. Exactly one of Assignment
// and SessionID must be set.
type ReassignRequest struct {
	Assignment *matrix.Assignment `json:"assignment_matrix,omitempty"`
	SessionID  string             `json:"session_id,omitempty"`
	AgentName  string             `json:"agent_name"`
}

// ReassignResponse carries the updated matrix and the chosen replacement.
type ReassignResponse struct {
	Assignment       *matrix.Assignment `json:"assignment_matrix"`
	ReplacementIndex int                `json:"replacement_index"`
	ReplacementName  string             `json:"replacement_name"`
	Similarity       float64            `json:"similarity"`
	Roles            []string           `json:"roles"`
	SessionID        string             `json:"session_id,omitempty"`
	Fingerprint      string             `json:"fingerprint"`
}

// Reassign hands every role of the named agent to the most similar idle
// agent. When the request names a session, the stored matrix is used and
// replaced by the result.
func (s *Service) Reassign(ctx context.Context, req ReassignRequest) (resp ReassignResponse, err error) {
	if req.SessionID != "" {
		ctx = telemetry.ContextWithSession(ctx, req.SessionID)
	}
	ctx, finish := s.start(ctx, OpReassign)
	defer func() { finish(&err) }()

	name := strings.TrimSpace(req.AgentName)
	if name == "" {
		return ReassignResponse{}, errors.New(errors.CodeInvalidInput, "agent_name is required", nil).
			WithContext("field", "agent_name")
	}
	current, err := s.currentAssignment(ctx, req)
	if err != nil {
		return ReassignResponse{}, err
	}

	tbl, err := s.Table(ctx)
	if err != nil {
		return ReassignResponse{}, err
	}
	agents, roles := tbl.Dims()
	if r, c := current.Dims(); r != agents || c != roles {
		return ReassignResponse{}, errors.Newf(errors.CodeInvalidInput,
			"assignment_matrix is %dx%d, reference table is %dx%d", r, c, agents, roles).
			WithContext("field", "assignment_matrix")
	}
	target, ok := tbl.AgentIndex(name)
	if !ok {
		return ReassignResponse{}, errors.Newf(errors.CodeInvalidInput, "unknown agent %q", name).
			WithContext("field", "agent_name")
	}

	res, err := swap.Reassign(current, tbl.Quality(), target)
	if err != nil {
		if ae := errors.AsAllotError(err); ae.Code == errors.CodeNoCandidate {
			ae.WithContext("agent_name", name)
		}
		return ReassignResponse{}, err
	}

	resp = ReassignResponse{
		Assignment:       res.Assignment,
		ReplacementIndex: res.Replacement,
		ReplacementName:  tbl.Agent(res.Replacement),
		Similarity:       res.Similarity,
		Roles:            make([]string, 0, len(res.Roles)),
		Fingerprint:      res.Assignment.FingerprintHex(),
	}
	for _, j := range res.Roles {
		resp.Roles = append(resp.Roles, tbl.Role(j))
	}
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(telemetry.SwapAttributes(name, resp.ReplacementName, res.Similarity)...)

	if req.SessionID != "" {
		rec, err := s.sessions.Update(ctx, req.SessionID, res.Assignment)
		if err != nil {
			return ReassignResponse{}, err
		}
		resp.SessionID = rec.ID
		span.SetAttributes(telemetry.SessionAttributes(rec.ID, rec.Fingerprint)...)
	}

	s.logger.InfoContext(ctx, "agent reassigned",
		"agent", name,
		"replacement", resp.ReplacementName,
		"similarity", res.Similarity,
		"roles", len(res.Roles),
	)
	return resp, nil
}

func (s *Service) currentAssignment(ctx context.Context, req ReassignRequest) (*matrix.Assignment, error) {
	switch {
	case req.Assignment != nil && req.SessionID != "":
		return nil, errors.New(errors.CodeInvalidInput, "send either assignment_matrix or session_id, not both", nil)
	case req.Assignment != nil:
		return req.Assignment, nil
	case req.SessionID != "":
		if s.sessions == nil {
			return nil, errors.New(errors.CodeInvalidInput, "sessions are disabled", nil).
				WithContext("field", "session_id")
		}
		rec, err := s.sessions.Get(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
		return rec.Assignment, nil
	default:
		return nil, errors.New(errors.CodeInvalidInput, "assignment_matrix or session_id is required", nil).
			WithContext("field", "assignment_matrix")
	}
}
