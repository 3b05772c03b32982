package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"toolbox/internal/dispatch"
	"toolbox/internal/metrics"
)

const maxExceptionLength = 200

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	failedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

// FormatEnterpriseMetrics renders a full multi-line report.
func FormatEnterpriseMetrics(m *metrics.EnterpriseMetrics) string {
	if m == nil {
		return "No metrics available."
	}
	var sb strings.Builder
	sb.WriteString(headerStyle.Render(fmt.Sprintf("Enterprise %s", m.Name)))
	sb.WriteString("\n")
	sb.WriteString("--------------------------------------------------\n")
	sb.WriteString(fmt.Sprintf("- Admission:  %s (closed down=%v)\n", m.Admission, m.ClosedDown))
	sb.WriteString(fmt.Sprintf("- Workers:    %d active / %d wished, %d dismissed, %d hired\n",
		m.ActiveWorkers, m.WishedWorkers, m.DismissedWorkers, m.HiredWorkers))
	sb.WriteString(fmt.Sprintf("- Missions:   %d done, %d buffered\n", m.DoneCount, m.BufferedMissions))
	sb.WriteString(fmt.Sprintf("- Results:    %d produced, expected %s\n", m.ProducedCount, FormatExpectedCount(m.ExpectedCount)))
	if p, ok := m.Progress(); ok {
		sb.WriteString(fmt.Sprintf("- Progress:   %.1f%%\n", p*100))
	}
	sb.WriteString(fmt.Sprintf("- Elapsed:    %s (%.1f missions/s)\n", m.Elapsed.Round(time.Millisecond), m.MissionsPerSec))
	if len(m.Exceptions) > 0 {
		sb.WriteString(failedStyle.Render(fmt.Sprintf("- Exceptions: %d", len(m.Exceptions))))
		sb.WriteString("\n")
	}
	sb.WriteString("--------------------------------------------------")
	return sb.String()
}

// FormatStatusLine renders a one-line progress report for periodic output.
func FormatStatusLine(m *metrics.EnterpriseMetrics) string {
	if m == nil {
		return "[status] no metrics"
	}
	line := fmt.Sprintf("[%s] %s workers=%d/%d done=%d produced=%d expected=%s elapsed=%s",
		m.Name, m.Admission, m.ActiveWorkers, m.WishedWorkers, m.DoneCount, m.ProducedCount,
		FormatExpectedCount(m.ExpectedCount), m.Elapsed.Round(time.Millisecond))
	if len(m.Exceptions) > 0 {
		line += fmt.Sprintf(" exceptions=%d", len(m.Exceptions))
	}
	return line
}

func FormatExpectedCount(n int) string {
	switch n {
	case dispatch.NotComputed:
		return "not computed"
	case dispatch.NotAvailable:
		return "computing"
	case dispatch.NotComputable:
		return "unknown"
	default:
		return fmt.Sprintf("%d", n)
	}
}

// FormatExceptions lists up to limit errors, limit < 0 means all.
func FormatExceptions(errs []error, limit int) string {
	if len(errs) == 0 {
		return "No exceptions."
	}
	var sb strings.Builder
	sb.WriteString(failedStyle.Render(fmt.Sprintf("%d exception(s):", len(errs))))
	sb.WriteString("\n")
	for i, err := range errs {
		if limit >= 0 && i >= limit {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(errs)-limit))
			break
		}
		sb.WriteString(fmt.Sprintf("  %2d. %s\n", i+1, truncate(err.Error(), maxExceptionLength)))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func truncate(s string, limit int) string {
	s = strings.ReplaceAll(s, "\n", "\\n")
	if r := []rune(s); limit >= 0 && len(r) > limit {
		return string(r[:limit]) + "..."
	}
	return s
}
