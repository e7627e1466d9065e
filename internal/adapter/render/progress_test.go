package render

import (
	"encoding/json"
	"strings"
	"testing"

	"hedgefund/internal/domain"
)

func event(t *testing.T, typ domain.EventType, p domain.ProgressPayload) eventMsg {
	t.Helper()
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	return eventMsg{event: domain.Event{Type: typ, Payload: data}}
}

func update(m progressModel, msg any) progressModel {
	next, _ := m.Update(msg)
	return next.(progressModel)
}

func TestProgressModelTracksWorkflow(t *testing.T) {
	ok, failed := true, false
	m := newProgressModel()

	m = update(m, event(t, domain.EventAgentRouted, domain.ProgressPayload{Specialist: domain.ValuationAnalyst}))
	if !strings.Contains(m.status, "Valuation Analyst") {
		t.Errorf("status = %q", m.status)
	}

	m = update(m, event(t, domain.EventToolCallStarted, domain.ProgressPayload{Specialist: domain.ValuationAnalyst, Tool: "get_key_statistics"}))
	if m.status != "Valuation Analyst calling get_key_statistics" {
		t.Errorf("status = %q", m.status)
	}

	m = update(m, event(t, domain.EventToolCallCompleted, domain.ProgressPayload{Specialist: domain.ValuationAnalyst, Tool: "get_key_statistics", Success: &failed}))
	m = update(m, event(t, domain.EventSpecialistConcluded, domain.ProgressPayload{Specialist: domain.ValuationAnalyst, Success: &ok}))
	m = update(m, event(t, domain.EventBudgetExceeded, domain.ProgressPayload{Detail: "cycle budget of 3 activations exhausted"}))

	if len(m.lines) != 3 {
		t.Fatalf("lines = %d, want 3: %v", len(m.lines), m.lines)
	}
	view := m.View()
	for _, want := range []string{"get_key_statistics failed", "Valuation Analyst concluded", "cycle budget of 3"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestProgressModelDoneRouting(t *testing.T) {
	m := update(newProgressModel(), event(t, domain.EventAgentRouted, domain.ProgressPayload{Specialist: domain.Done}))
	if m.status != "aggregating reports" {
		t.Errorf("status = %q", m.status)
	}
}

func TestProgressModelStop(t *testing.T) {
	m := newProgressModel()
	next, cmd := m.Update(stopMsg{})
	if cmd == nil {
		t.Fatal("stop should quit the program")
	}
	if strings.Contains(next.(progressModel).View(), "starting") {
		t.Error("stopped view should drop the spinner line")
	}
}
