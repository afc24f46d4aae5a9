// SPDX-License-Identifier: Apache-2.0

package httpjson

import (
	"net/http"

	"github.com/jllopis/allot/pkg/matrix"
	"github.com/jllopis/allot/pkg/service"
	"github.com/jllopis/allot/pkg/solver"
)

// Bodies of the routes served before /api/solve, /api/reassign and
// /api/respace existed. Capacity now comes from the reference table.

type gmraRequest struct {
	L      []int `json:"L"`
	Amount int   `json:"amount"`
}

type gmraResponse struct {
	TMatrix        *matrix.Assignment `json:"T_matrix"`
	Status         solver.Status      `json:"status"`
	ObjectiveValue float64            `json:"objective_value"`
	TPairs         [][2]int           `json:"T_pairs"`
}

type shuffleRequest struct {
	TMatrix    *matrix.Assignment `json:"T_matrix"`
	MuscleName string             `json:"muscle_name"`
}

type shuffleResponse struct {
	TMatrix          *matrix.Assignment `json:"T_matrix"`
	NewExerciseIndex int                `json:"new_exercise_index"`
	NewExerciseName  string             `json:"new_exercise_name"`
}

type spaceoutRequest struct {
	ParsedTMatrix    *matrix.Assignment `json:"parsedTMatrix"`
	UniqueRowIndices []int              `json:"uniqueRowIndices"`
}

type spaceoutResponse struct {
	BalancedTMatrix  *matrix.Assignment `json:"balancedTmatrix"`
	ReorderedIndices []int              `json:"reorderedIndices"`
}

func (s *Server) handleLegacySolve(w http.ResponseWriter, r *http.Request) {
	var req gmraRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	resp, err := s.svc.Solve(r.Context(), service.SolveRequest{RoleDemand: req.L, MaxAgents: req.Amount})
	if err != nil {
		writeError(w, err)
		return
	}
	pairs := make([][2]int, 0, len(resp.Pairs))
	for _, p := range resp.Pairs {
		pairs = append(pairs, [2]int{p.Agent, p.Role})
	}
	setETag(w, resp.Fingerprint)
	writeJSON(w, http.StatusOK, gmraResponse{
		TMatrix:        resp.Assignment,
		Status:         resp.Status,
		ObjectiveValue: resp.Objective,
		TPairs:         pairs,
	})
}

func (s *Server) handleLegacyReassign(w http.ResponseWriter, r *http.Request) {
	var req shuffleRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	resp, err := s.svc.Reassign(r.Context(), service.ReassignRequest{
		Assignment: req.TMatrix,
		AgentName:  req.MuscleName,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	setETag(w, resp.Fingerprint)
	writeJSON(w, http.StatusOK, shuffleResponse{
		TMatrix:          resp.Assignment,
		NewExerciseIndex: resp.ReplacementIndex,
		NewExerciseName:  resp.ReplacementName,
	})
}

func (s *Server) handleLegacyRespace(w http.ResponseWriter, r *http.Request) {
	var req spaceoutRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	resp, err := s.svc.Respace(r.Context(), service.RespaceRequest{
		Rows:    req.ParsedTMatrix,
		Indices: req.UniqueRowIndices,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, spaceoutResponse{
		BalancedTMatrix:  resp.Rows,
		ReorderedIndices: resp.Indices,
	})
}
