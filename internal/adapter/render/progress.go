package render

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"hedgefund/internal/domain"
)

// Progress shows a spinner with the current routing decision or tool call
// while a query runs. It is fed from the event bus and meant for a TTY only.
type Progress struct {
	program *tea.Program
	done    chan struct{}
	unsub   func()
	once    sync.Once
}

// NewProgress creates a progress display writing to out. It never reads
// input, so interrupts reach the process signal handler.
func NewProgress(out io.Writer) *Progress {
	return &Progress{
		program: tea.NewProgram(newProgressModel(),
			tea.WithOutput(out),
			tea.WithInput(nil),
			tea.WithoutSignalHandler(),
		),
		done: make(chan struct{}),
	}
}

// Start runs the display and forwards every bus event to it.
func (p *Progress) Start(bus domain.EventBus) {
	go func() {
		defer close(p.done)
		_, _ = p.program.Run()
	}()
	if bus != nil {
		p.unsub = bus.SubscribeAll(func(_ context.Context, e domain.Event) {
			p.program.Send(eventMsg{event: e})
		})
	}
}

// Stop unsubscribes, renders the final state and waits for the display to exit.
func (p *Progress) Stop() {
	p.once.Do(func() {
		if p.unsub != nil {
			p.unsub()
		}
		p.program.Send(stopMsg{})
		<-p.done
	})
}

type eventMsg struct{ event domain.Event }

type stopMsg struct{}

type progressModel struct {
	spinner spinner.Model
	status  string
	lines   []string
	stopped bool
}

func newProgressModel() progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = TextInfo
	return progressModel{spinner: s, status: "starting"}
}

func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m.apply(msg.event)
		return m, nil
	case stopMsg:
		m.stopped = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) apply(e domain.Event) {
	var p domain.ProgressPayload
	if len(e.Payload) > 0 {
		_ = json.Unmarshal(e.Payload, &p)
	}
	who := DisplayName(p.Specialist)

	switch e.Type {
	case domain.EventQueryStarted:
		m.status = "planning"
	case domain.EventAgentRouted:
		if p.Specialist == "" || p.Specialist == domain.Done {
			m.status = "aggregating reports"
			return
		}
		m.status = fmt.Sprintf("routing %s %s", SymbolArrowR, who)
	case domain.EventLLMCallStarted:
		m.status = who + " is thinking"
	case domain.EventToolCallStarted:
		m.status = fmt.Sprintf("%s calling %s", who, p.Tool)
	case domain.EventToolCallCompleted:
		if p.Success != nil && !*p.Success {
			m.lines = append(m.lines, TextError.Render(fmt.Sprintf("%s %s: %s failed", SymbolError, who, p.Tool)))
		}
	case domain.EventSpecialistConcluded:
		line := fmt.Sprintf("%s %s concluded", SymbolSuccess, who)
		if p.Success != nil && !*p.Success {
			line = fmt.Sprintf("%s %s concluded (incomplete)", SymbolWarning, who)
		}
		m.lines = append(m.lines, titleStyle(p.Specialist).Render(line))
	case domain.EventBudgetExceeded:
		m.lines = append(m.lines, TextWarning.Render(SymbolWarning+" "+p.Detail))
	case domain.EventSummaryStarted:
		m.status = DisplayName(domain.PortfolioManager) + " is summarizing"
	case domain.EventQueryCompleted:
		m.status = "done"
	}
}

func (m progressModel) View() string {
	var sb strings.Builder
	for _, l := range m.lines {
		sb.WriteString(l + "\n")
	}
	if !m.stopped {
		sb.WriteString(m.spinner.View() + " " + Dim.Render(m.status) + "\n")
	}
	return sb.String()
}
