package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/BioHazard786/Warproom/cli/internal/document"
	"github.com/BioHazard786/Warproom/cli/internal/execution"
)

const cellWidth = 24

func styledTable(headers []string, rows [][]string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})
}

// VectorTableView renders the shared test vectors.
func VectorTableView(vectors []document.TestVector) string {
	if len(vectors) == 0 {
		return MutedStyle.Render("No test vectors")
	}
	rows := make([][]string, len(vectors))
	for i, v := range vectors {
		rows[i] = []string{fmt.Sprintf("%d", i+1), cell(v.Input), cell(v.Expected)}
	}
	return styledTable([]string{"#", "Input", "Expected"}, rows).Render()
}

// RunResultView renders a run's per-vector outcome, or the reason it
// produced none.
func RunResultView(res execution.RunResult) string {
	if res.Kind == execution.KindInfrastructureFailure {
		return ErrorStyle.Render(fmt.Sprintf("%s Execution unavailable: %s", IconError, res.Error))
	}
	if len(res.Vectors) == 0 {
		return MutedStyle.Render("Run completed with no test vectors")
	}
	rows := make([][]string, len(res.Vectors))
	for i, v := range res.Vectors {
		status := IconSuccess
		if !v.Passed {
			status = IconError
		}
		rows[i] = []string{fmt.Sprintf("%d", i+1), cell(v.Input), cell(v.Expected), cell(v.Actual), status}
	}
	return styledTable([]string{"#", "Input", "Expected", "Actual", ""}, rows).Render()
}

// SubmissionView renders a verdict line with the first failing vector.
func SubmissionView(res execution.SubmissionResult) string {
	switch {
	case res.Kind == execution.KindInfrastructureFailure:
		return ErrorStyle.Render(fmt.Sprintf("%s Execution unavailable: %s", IconError, res.Error))
	case res.Accepted():
		return SuccessStyle.Render(fmt.Sprintf("%s Accepted", IconComplete))
	}
	line := WarningStyle.Render(fmt.Sprintf("%s %s", IconWarning, res.Verdict))
	if v := res.FailingVector; v != nil {
		line += MutedStyle.Render(fmt.Sprintf("  input %s, expected %s, got %s", cell(v.Input), cell(v.Expected), cell(v.Actual)))
	}
	return line
}

type RoomInfo struct {
	RoomID   string
	RoomLink string
}

func NewRoomInfo(roomID, roomLink string) *RoomInfo {
	return &RoomInfo{
		RoomID:   roomID,
		RoomLink: roomLink,
	}
}

func (r *RoomInfo) View() string {
	content := fmt.Sprintf("%s Room Open!\n\n%s Room ID:    %s\n%s Room Link:  %s",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(r.RoomID),
		IconLink, MutedStyle.Render(r.RoomLink),
	)
	return SuccessBoxStyle.Render(content)
}

// cell flattens s to one line and truncates it to cellWidth runes.
func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", "⏎")
	r := []rune(s)
	if len(r) <= cellWidth {
		return s
	}
	return string(r[:cellWidth-1]) + "…"
}
