package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/framelog/lode"
	"github.com/pithecene-io/framelog/store"
)

func renderRecording(data any) string {
	sum, ok := data.(*store.Summary)
	if !ok {
		return "Invalid data type for inspect_recording"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Recording"))
	b.WriteString("\n\n")

	status := RecordingStatus(sum)
	rows := [][2]string{
		{"Path", sum.Path},
		{"Status", status},
		{"Frames", fmt.Sprintf("%d", sum.Frames)},
		{"Frame IDs", fmt.Sprintf("%d .. %d", sum.FirstFrameID, sum.LastFrameID)},
		{"Duration", fmt.Sprintf("%dms", sum.DurationMs)},
		{"Dimensions", fmt.Sprintf("%dx%d", sum.Width, sum.Height)},
		{"Depth bytes", fmt.Sprintf("%d", sum.DepthBytes)},
		{"Color bytes", fmt.Sprintf("%d", sum.ColorBytes)},
		{"File bytes", fmt.Sprintf("%d", sum.FileBytes)},
	}
	if sum.DimensionChanges > 0 {
		rows = append(rows, [2]string{"Size changes", fmt.Sprintf("%d", sum.DimensionChanges)})
	}
	if sum.Problem != "" {
		rows = append(rows, [2]string{"Problem", sum.Problem})
	}

	for _, row := range rows {
		label := LabelStyle.Render(row[0] + ":")
		value := ValueStyle.Render(row[1])
		switch row[0] {
		case "Status":
			value = OutcomeStyle(status).Render(row[1])
		case "Problem":
			value = ErrorStyle.Render(row[1])
		}
		b.WriteString(fmt.Sprintf("%s %s\n", label, value))
	}

	return BoxStyle.Render(b.String())
}

// RecordingStatus classifies a summary as complete, open (empty, not yet
// closed), incomplete (truncated) or corrupt.
func RecordingStatus(sum *store.Summary) string {
	switch {
	case sum.Complete:
		return "complete"
	case sum.Frames == 0 && sum.FileBytes == 0:
		return "open"
	case strings.Contains(sum.Problem, "corrupt"):
		return "corrupt"
	default:
		return "incomplete"
	}
}

func renderSessionStats(data any) string {
	st, ok := data.(*lode.SessionStats)
	if !ok {
		return "Invalid data type for stats_sessions"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Session Statistics"))
	b.WriteString("\n\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		statBox("Total", st.Total, highlightColor),
		statBox("Recordings", st.Recordings, primaryColor),
		statBox("Playbacks", st.Playbacks, primaryColor),
	))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		statBox("Complete", st.Complete, successColor),
		statBox("Stopped", st.Stopped, warningColor),
		statBox("Incomplete", st.Incomplete, warningColor),
		statBox("Failed", st.Failed, errorColor),
	))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Frames:"), ValueStyle.Render(fmt.Sprintf("%d", st.Frames))))
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Archived bytes:"), ValueStyle.Render(fmt.Sprintf("%d", st.SizeBytes))))

	return b.String()
}

func statBox(label string, value int, color lipgloss.Color) string {
	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)
	return StatBoxStyle.BorderForeground(color).Render(lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr))
}
