package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"hedgefund/internal/domain"
)

// DefaultWidth is used when the terminal width is unknown.
const DefaultWidth = 100

// Terminal renders a FinalAnswer as one bordered panel per section.
type Terminal struct {
	width int
	md    *glamour.TermRenderer
}

// TerminalOptions configures a Terminal.
type TerminalOptions struct {
	Width int
	// Plain disables ANSI styling of markdown, for pipes and files.
	Plain bool
}

// NewTerminal builds the markdown renderer once; panels share it.
func NewTerminal(opts TerminalOptions) (*Terminal, error) {
	width := opts.Width
	if width <= 0 {
		width = DefaultWidth
	}
	style := glamour.WithAutoStyle()
	if opts.Plain {
		style = glamour.WithStandardStyle("notty")
	}
	md, err := glamour.NewTermRenderer(
		style,
		// Leave room for the border and padding.
		glamour.WithWordWrap(width-6),
	)
	if err != nil {
		return nil, fmt.Errorf("create markdown renderer: %w", err)
	}
	return &Terminal{width: width, md: md}, nil
}

// Render writes every section, then the summary, then an incomplete-answer
// notice when the workflow stopped early.
func (t *Terminal) Render(w io.Writer, answer *domain.FinalAnswer) error {
	var sb strings.Builder

	sb.WriteString(titleStyle("supervisor").Render("Question: "+answer.Query) + "\n\n")

	if len(answer.Sections) == 0 {
		sb.WriteString(TextWarning.Render(SymbolWarning+" No specialist produced a report.") + "\n")
	}
	for _, s := range answer.Sections {
		sb.WriteString(t.panel(s) + "\n")
	}
	if answer.Summary != nil {
		sb.WriteString(t.panel(*answer.Summary) + "\n")
	}
	if answer.Incomplete {
		sb.WriteString(TextWarning.Render(SymbolWarning+" The analysis is incomplete: a budget ran out or a specialist could not finish.") + "\n")
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func (t *Terminal) panel(s domain.Section) string {
	title := titleStyle(s.Specialist).Render(DisplayName(s.Specialist))
	if s.Partial {
		title += " " + TextWarning.Render("(incomplete)")
	}
	body := t.markdown(s.Text)
	return panelStyle(s.Specialist, t.width-2).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, body),
	)
}

func (t *Terminal) markdown(text string) string {
	out, err := t.md.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}
