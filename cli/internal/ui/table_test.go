package ui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BioHazard786/Warproom/cli/internal/document"
	"github.com/BioHazard786/Warproom/cli/internal/execution"
	"github.com/BioHazard786/Warproom/cli/internal/room"
	"github.com/BioHazard786/Warproom/internal/protocol"
)

func TestRunResultView(t *testing.T) {
	view := RunResultView(execution.RunResult{
		Kind: execution.KindCompleted,
		Vectors: []execution.VectorResult{
			{Input: "1 2", Expected: "3", Actual: "3", Passed: true},
			{Input: "2 2", Expected: "4", Actual: "5"},
		},
	})
	assert.Contains(t, view, "Actual")
	assert.Contains(t, view, IconSuccess)
	assert.Contains(t, view, IconError)

	failed := RunResultView(execution.RunResult{Kind: execution.KindInfrastructureFailure, Error: "sandbox down"})
	assert.Contains(t, failed, "sandbox down")
	assert.NotContains(t, failed, "Actual")
}

func TestSubmissionView(t *testing.T) {
	assert.Contains(t, SubmissionView(execution.SubmissionResult{Kind: execution.KindCompleted, Verdict: execution.VerdictAccepted}), "Accepted")

	wa := SubmissionView(execution.SubmissionResult{
		Kind:          execution.KindCompleted,
		Verdict:       execution.VerdictWrongAnswer,
		FailingVector: &execution.VectorResult{Input: "7", Expected: "49", Actual: "14"},
	})
	assert.Contains(t, wa, "wrong-answer")
	assert.Contains(t, wa, "expected 49, got 14")
}

func TestVectorTableView(t *testing.T) {
	assert.Contains(t, VectorTableView(nil), "No test vectors")

	view := VectorTableView([]document.TestVector{{Input: "a\nb", Expected: strings.Repeat("x", 40)}})
	assert.Contains(t, view, "a⏎b")
	assert.Contains(t, view, "…")
}

func TestSessionSummaryView(t *testing.T) {
	view := SessionSummaryView(room.Snapshot{
		Role:       protocol.RoleCandidate,
		RoomID:     "calm-graph-otter",
		Peer:       &protocol.Profile{Name: "Grace"},
		Document:   document.Document{Language: document.CPP},
		LastRun:    &execution.RunResult{Kind: execution.KindCompleted, Vectors: []execution.VectorResult{{Passed: true}, {}}},
		LastSubmit: &execution.SubmissionResult{Kind: execution.KindInfrastructureFailure},
		Violations: 2,
	})
	assert.Contains(t, view, "calm-graph-otter")
	assert.Contains(t, view, "Grace")
	assert.Contains(t, view, "1/2 passed")
	assert.Contains(t, view, "unavailable")
	assert.Contains(t, view, "Proctoring Violations")

	host := SessionSummaryView(room.Snapshot{Role: protocol.RoleHost})
	assert.NotContains(t, host, "Proctoring Violations")
}
