package main

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/solguard/riskengine/internal/schema"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1)
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	safeStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	dangerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

type reportModel struct {
	report *schema.AnalysisReport
	cursor int
}

func runTUI(report *schema.AnalysisReport) error {
	_, err := tea.NewProgram(reportModel{report: report}).Run()
	return err
}

func (m reportModel) Init() tea.Cmd { return nil }

func (m reportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.report.Findings)-1 {
				m.cursor++
			}
		}
	}
	return m, nil
}

func (m reportModel) View() string {
	r := m.report
	var b strings.Builder

	b.WriteString(titleStyle.Render("SOLGUARD RISK REPORT") + "\n\n")

	levelStyle := safeStyle
	if r.RiskLevel == schema.RiskRisky || r.RiskLevel == schema.RiskDangerous {
		levelStyle = dangerStyle
	}
	b.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render("Mint:"), r.Mint))
	b.WriteString(fmt.Sprintf("%s %d/100  %s\n\n", headerStyle.Render("Safety:"), r.SafetyScore, levelStyle.Render(string(r.RiskLevel))))

	b.WriteString(headerStyle.Render("Detectors") + "\n")
	for _, name := range schema.AllDetectors() {
		out, ok := r.Detectors[name]
		if !ok {
			continue
		}
		status := fmt.Sprintf("partial %d, %d findings", out.PartialScore, len(out.Findings))
		if out.Empty {
			status = "no signal"
			if out.FailedHard {
				status = "failed"
			}
		}
		b.WriteString(fmt.Sprintf("  %-12s %s\n", name, dimStyle.Render(status)))
	}

	b.WriteString("\n" + headerStyle.Render("Findings") + "\n")
	if len(r.Findings) == 0 {
		b.WriteString(dimStyle.Render("  none") + "\n")
	}
	for i, f := range r.Findings {
		line := fmt.Sprintf("[%s] %s", f.Severity, f.Message)
		if i == m.cursor {
			line = selectedStyle.Render(line)
			if len(f.ContributingAddresses) > 0 {
				line += "\n    " + dimStyle.Render(strings.Join(f.ContributingAddresses, " "))
			}
		}
		b.WriteString("  " + line + "\n")
	}

	b.WriteString("\n" + dimStyle.Render("j/k to move, q to quit") + "\n")
	return b.String()
}
