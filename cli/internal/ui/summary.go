package ui

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/BioHazard786/Warproom/cli/internal/execution"
	"github.com/BioHazard786/Warproom/cli/internal/room"
	"github.com/BioHazard786/Warproom/internal/protocol"
)

// SessionSummaryView renders the closing summary printed after the room UI
// exits.
func SessionSummaryView(snap room.Snapshot) string {
	t := table.NewWriter()
	t.SetTitle("📊 Session Summary")
	t.SetStyle(table.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.Style().Color.Header = text.Colors{text.FgCyan, text.Bold}
	t.AppendHeader(table.Row{"Metric", "Value"})

	roomID := snap.RoomID
	if roomID == "" {
		roomID = "-"
	}
	peer := "-"
	if snap.Peer != nil && snap.Peer.Name != "" {
		peer = snap.Peer.Name
	}

	t.AppendRows([]table.Row{
		{"Role", snap.Role},
		{"Room", roomID},
		{"Peer", peer},
		{"Language", snap.Document.Language},
		{"Test Vectors", len(snap.Document.Vectors)},
		{"Last Run", runSummary(snap.LastRun)},
		{"Last Submission", submissionSummary(snap.LastSubmit)},
	})
	if snap.Role == protocol.RoleCandidate {
		t.AppendRow(table.Row{"Proctoring Violations", snap.Violations})
	}
	return t.Render()
}

func RenderSessionSummary(w io.Writer, snap room.Snapshot) {
	fmt.Fprintln(w, SessionSummaryView(snap))
}

func runSummary(res *execution.RunResult) string {
	switch {
	case res == nil:
		return "-"
	case res.Kind == execution.KindInfrastructureFailure:
		return "unavailable"
	}
	return fmt.Sprintf("%d/%d passed", len(res.Vectors)-len(res.Failing()), len(res.Vectors))
}

func submissionSummary(res *execution.SubmissionResult) string {
	switch {
	case res == nil:
		return "-"
	case res.Kind == execution.KindInfrastructureFailure:
		return "unavailable"
	}
	return string(res.Verdict)
}
