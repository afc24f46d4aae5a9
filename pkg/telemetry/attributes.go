// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Span and metric attribute keys.
const (
	AttrOperation    = "allot.operation"
	AttrOutcome      = "allot.outcome"
	AttrErrorCode    = "allot.error.code"
	AttrSessionID    = "allot.session.id"
	AttrFingerprint  = "allot.assignment.fingerprint"
	AttrAgents       = "allot.agents"
	AttrRoles        = "allot.roles"
	AttrMaxAgents    = "allot.max_agents"
	AttrSolverStatus = "allot.solver.status"
	AttrSolverNodes  = "allot.solver.nodes"
	AttrObjective    = "allot.solver.objective"
	AttrAgent        = "allot.swap.agent"
	AttrReplacement  = "allot.swap.replacement"
	AttrSimilarity   = "allot.swap.similarity"
	AttrRows         = "allot.spacer.rows"
)

// ProblemAttributes describes the size of a solve request.
func ProblemAttributes(agents, roles, maxAgents int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrAgents, agents),
		attribute.Int(AttrRoles, roles),
		attribute.Int(AttrMaxAgents, maxAgents),
	}
}

// SolveAttributes describes a finished solve.
func SolveAttributes(status string, nodes int, objective float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSolverStatus, status),
		attribute.Int(AttrSolverNodes, nodes),
		attribute.Float64(AttrObjective, objective),
	}
}

// SwapAttributes describes a finished reassignment.
func SwapAttributes(agent, replacement string, similarity float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrAgent, agent),
		attribute.String(AttrReplacement, replacement),
		attribute.Float64(AttrSimilarity, similarity),
	}
}

// SessionAttributes returns the session id and matrix fingerprint, skipping
// empty values.
func SessionAttributes(sessionID, fingerprint string) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if sessionID != "" {
		attrs = append(attrs, attribute.String(AttrSessionID, sessionID))
	}
	if fingerprint != "" {
		attrs = append(attrs, attribute.String(AttrFingerprint, fingerprint))
	}
	return attrs
}
