// Copyright (c) 2018, Postgres Professional

package status

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"pgflock/internal/pg"
)

var (
	runningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("76"))
	startingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	offlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("204"))
	absentStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

func (s NodeStatus) stateText() string {
	switch s.State {
	case pg.StateRunning:
		switch s.Role {
		case RolePrimary:
			return "running (primary)"
		case RoleStandby:
			return "running (standby)"
		}
		return "running"
	default:
		return s.State.String()
	}
}

func (s NodeStatus) stateStyle() lipgloss.Style {
	switch s.State {
	case pg.StateRunning:
		return runningStyle
	case pg.StateStopped:
		return offlineStyle
	case pg.StateAbsent:
		return absentStyle
	}
	return startingStyle
}

func (s NodeStatus) upstreamText() string {
	if s.UpstreamPort == 0 {
		return "-"
	}
	return strconv.Itoa(s.UpstreamPort)
}

func (s NodeStatus) walText() string {
	if s.WALPosition == "" {
		return "n/a"
	}
	return s.WALPosition
}

func (s NodeStatus) lagText() string {
	if !s.LagKnown {
		return "n/a"
	}
	return strconv.FormatInt(s.LagBytes, 10)
}

// Report renders the fixed-width table; column widths follow the longest
// value actually present. Colour is applied after padding so the escape
// sequences never skew alignment.
func Report(statuses []NodeStatus) string {
	headers := []string{"INSTANCE", "PORT", "UPSTREAM", "STATUS", "WAL POSITION", "LAG (BYTES)"}
	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		rows = append(rows, []string{
			s.Name,
			strconv.Itoa(s.Port),
			s.upstreamText(),
			s.stateText(),
			s.walText(),
			s.lagText(),
		})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	for i, h := range headers {
		fmt.Fprintf(&b, "%-*s", widths[i]+2, h)
	}
	b.WriteString("\n")
	for r, row := range rows {
		for i, cell := range row {
			padded := fmt.Sprintf("%-*s", widths[i]+2, cell)
			if i == 3 {
				padded = statuses[r].stateStyle().Render(padded)
			}
			b.WriteString(padded)
		}
		b.WriteString("\n")
	}
	return b.String()
}
