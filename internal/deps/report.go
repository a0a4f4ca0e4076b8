package deps

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).MarginBottom(1)
	installedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	missingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	optionalStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// Render formats the report for a terminal.
func (r *Report) Render() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("TTS Dependency Check Report"))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s engine:\n", r.Engine)

	for _, s := range r.Results {
		switch {
		case s.Installed:
			b.WriteString(installedStyle.Render("  ✓ " + s.Name + ": "))
			b.WriteString(strings.TrimSpace(s.Path + " " + s.Version))
			b.WriteString("\n")
		case s.Required:
			b.WriteString(missingStyle.Render("  ✗ " + s.Name + ": "))
			b.WriteString("Not installed\n")
			fmt.Fprintf(&b, "    %s\n", s.Instructions)
		default:
			b.WriteString(optionalStyle.Render("  ○ " + s.Name + ": "))
			b.WriteString("Not found (optional)\n")
			fmt.Fprintf(&b, "    %s\n", s.Instructions)
		}
	}
	return b.String()
}
