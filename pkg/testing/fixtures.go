// SPDX-License-Identifier: Apache-2.0

// Package allottest provides reference-table fixtures and invariant checks
// shared by the allot package tests.
//
//	tbl := allottest.WorkoutTable(t)
//	res, err := svc.Solve(ctx, req)
//	allottest.RequireValidAssignment(t, problem, res.Assignment)
package allottest

import (
	"strings"
	"testing"

	"github.com/jllopis/allot/pkg/reference"
)

// WorkoutCSV is a small exercise × muscle-group table in the CSV layout read
// by reference.ReadCSV.
const WorkoutCSV = `exercise,chest,back,shoulders,biceps,triceps,quads,hamstrings,glutes,core,capacity
bench press,5,0,2,0,3,0,0,0,0,3
push up,4,0,1,0,2,0,0,0,1,3
pull up,0,5,1,3,0,0,0,0,1,3
barbell row,0,4,1,2,0,0,1,0,1,3
overhead press,0,0,5,0,3,0,0,0,1,3
bicep curl,0,0,0,5,0,0,0,0,0,2
tricep dip,2,0,1,0,5,0,0,0,0,2
squat,0,0,0,0,0,5,1,4,2,4
deadlift,0,3,0,0,0,1,5,4,2,4
lunge,0,0,0,0,0,4,2,3,1,3
plank,0,0,1,0,0,0,0,0,5,2
`

// ScenarioACSV is the three-agent, two-role table with Q=[[5,0],[0,3],[4,4]]
// and unit capacities.
const ScenarioACSV = `agent,r0,r1,capacity
a0,5,0,1
a1,0,3,1
a2,4,4,1
`

// WorkoutTable parses WorkoutCSV.
func WorkoutTable(t testing.TB) *reference.Table {
	t.Helper()
	return mustCSV(t, WorkoutCSV)
}

// ScenarioATable parses ScenarioACSV.
func ScenarioATable(t testing.TB) *reference.Table {
	t.Helper()
	return mustCSV(t, ScenarioACSV)
}

func mustCSV(t testing.TB, data string) *reference.Table {
	t.Helper()
	tbl, err := reference.ReadCSV(strings.NewReader(data), reference.DefaultCapacity)
	if err != nil {
		t.Fatalf("fixture table: %v", err)
	}
	return tbl
}
