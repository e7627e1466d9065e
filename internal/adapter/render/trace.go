package render

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"hedgefund/internal/domain"
)

const traceContentLimit = 400

// Trace prints the conversation one message per block, in append order.
func Trace(w io.Writer, messages []domain.Message) error {
	var sb strings.Builder
	sb.WriteString(Bold.Render("Conversation trace") + "\n")
	for i, m := range messages {
		fmt.Fprintf(&sb, "%s %s %s\n",
			Dim.Render(fmt.Sprintf("%3d", i+1)),
			Dim.Render(m.Timestamp.Format("15:04:05.000")),
			traceLabel(m),
		)
		if body := traceBody(m); body != "" {
			for _, line := range strings.Split(body, "\n") {
				sb.WriteString("      " + line + "\n")
			}
		}
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func traceLabel(m domain.Message) string {
	switch m.Role {
	case domain.RoleUser:
		return TextInfo.Render("user")
	case domain.RoleRouter:
		label := "router"
		if m.Decision != nil && m.Decision.NextActor != "" {
			label += " " + SymbolArrowR + " " + m.Decision.NextActor
		}
		return titleStyle("supervisor").Render(label)
	case domain.RoleToolCall:
		return TextMuted.Render(fmt.Sprintf("tool_call %s [%s]", m.Name, callID(m)))
	case domain.RoleToolResult:
		return TextMuted.Render(fmt.Sprintf("%s tool_result %s [%s]", SymbolSuccess, m.Name, callID(m)))
	case domain.RoleToolError:
		kind := ""
		if m.ToolResult != nil {
			kind = string(m.ToolResult.ErrorKind)
		}
		return TextError.Render(fmt.Sprintf("%s tool_error %s [%s] %s", SymbolError, m.Name, callID(m), kind))
	case domain.RoleSpecialist, domain.RoleFinal:
		label := m.Attribution()
		if m.Role == domain.RoleFinal {
			label = "final:" + m.Name
		}
		if m.Partial {
			label += " (incomplete)"
		}
		return titleStyle(m.Name).Render(label)
	default:
		return m.Role
	}
}

func callID(m domain.Message) string {
	if m.ToolCall != nil {
		return m.ToolCall.ID
	}
	if m.ToolResult != nil {
		return m.ToolResult.ToolCallID
	}
	return ""
}

func traceBody(m domain.Message) string {
	text := strings.TrimSpace(m.Content)
	if len(text) <= traceContentLimit {
		return text
	}
	cut := traceContentLimit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + fmt.Sprintf(" … (%d bytes)", len(text))
}
