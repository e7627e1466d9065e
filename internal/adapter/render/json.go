package render

import (
	"encoding/json"
	"io"

	"hedgefund/internal/domain"
)

// jsonAnswer adds the optional trace to the answer's wire form.
type jsonAnswer struct {
	*domain.FinalAnswer
	Trace []domain.Message `json:"trace,omitempty"`
}

// RenderJSON writes the answer as indented JSON. With withTrace the full
// conversation is included under "trace".
func RenderJSON(w io.Writer, answer *domain.FinalAnswer, withTrace bool) error {
	out := jsonAnswer{FinalAnswer: answer}
	if withTrace {
		out.Trace = answer.Messages
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
