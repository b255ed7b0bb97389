// Package tui renders a live view of an executing plan.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/crewkit/crew/internal/orchestrator"
	"github.com/crewkit/crew/pkg/models"
)

// EventMsg wraps one orchestrator event for the TUI.
type EventMsg struct {
	Event orchestrator.Event
}

// DoneMsg signals that plan execution has finished.
type DoneMsg struct {
	Success bool
	Message string
}

// maxOutputLines bounds the retained worker output scrollback.
const maxOutputLines = 500

// stepRow is the display state of one plan step.
type stepRow struct {
	id          string
	description string
	status      models.TaskStatus
	workerID    string
}

// workerRow is the display state of one worker.
type workerRow struct {
	id    string
	kind  models.WorkerKind
	state models.WorkerState
}

// Model is the bubbletea model for a plan run.
type Model struct {
	planID    string
	steps     []stepRow
	stepIndex map[string]int

	workers     []workerRow
	workerIndex map[string]int

	output   []string
	viewport viewport.Model
	spinner  spinner.Model

	width  int
	height int
	done   bool
	result string
}

// NewModel creates a model seeded with the plan's steps.
func NewModel(plan *models.TaskPlan) Model {
	m := Model{
		planID:      plan.ID,
		stepIndex:   make(map[string]int),
		workerIndex: make(map[string]int),
		viewport:    viewport.New(80, 10),
		spinner:     spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
	for i, step := range plan.Steps {
		m.steps = append(m.steps, stepRow{
			id:          step.ID,
			description: step.Description,
			status:      step.Status,
		})
		m.stepIndex[step.ID] = i
	}
	return m
}

// NewProgram creates a bubbletea program for the plan.
func NewProgram(plan *models.TaskPlan) *tea.Program {
	return tea.NewProgram(NewModel(plan), tea.WithAltScreen())
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width - 2
		m.viewport.Height = outputHeight(msg.Height, len(m.steps), len(m.workers))
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case EventMsg:
		m.applyEvent(msg.Event)
		return m, nil

	case DoneMsg:
		m.done = true
		m.result = msg.Message
		return m, nil
	}

	return m, nil
}

// applyEvent folds an orchestrator event into the display state.
func (m *Model) applyEvent(ev orchestrator.Event) {
	switch ev.Type {
	case orchestrator.EventStepStarted:
		if i, ok := m.stepIndex[ev.StepID]; ok {
			m.steps[i].status = models.TaskStatusRunning
			m.steps[i].workerID = ev.WorkerID
		}
	case orchestrator.EventStepCompleted:
		m.setStepStatus(ev.StepID, models.TaskStatusCompleted)
	case orchestrator.EventStepFailed:
		m.setStepStatus(ev.StepID, models.TaskStatusFailed)
	case orchestrator.EventStepSkipped:
		m.setStepStatus(ev.StepID, models.TaskStatusSkipped)
	case orchestrator.EventWorkerStarted:
		m.workerIndex[ev.WorkerID] = len(m.workers)
		m.workers = append(m.workers, workerRow{
			id:    ev.WorkerID,
			kind:  ev.Kind,
			state: models.WorkerRunning,
		})
	case orchestrator.EventWorkerStateChanged, orchestrator.EventWorkerCompleted:
		if i, ok := m.workerIndex[ev.WorkerID]; ok && ev.State != "" {
			m.workers[i].state = ev.State
		}
	case orchestrator.EventWorkerOutput:
		m.appendOutput(fmt.Sprintf("[%s] %s", ev.WorkerID, ev.Line))
	case orchestrator.EventError:
		m.appendOutput(fmt.Sprintf("error: %s", ev.Message))
	}
}

func (m *Model) setStepStatus(stepID string, status models.TaskStatus) {
	if i, ok := m.stepIndex[stepID]; ok {
		m.steps[i].status = status
	}
}

func (m *Model) appendOutput(line string) {
	m.output = append(m.output, line)
	if len(m.output) > maxOutputLines {
		m.output = m.output[len(m.output)-maxOutputLines:]
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(strings.Join(m.output, "\n"))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// outputHeight computes the viewport height left after the fixed panels.
func outputHeight(total, steps, workers int) int {
	h := total - steps - workers - 6
	if h < 3 {
		h = 3
	}
	return h
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	skippedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// View renders the full display.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("crew plan %s", m.planID)))
	b.WriteString("\n\n")

	for _, step := range m.steps {
		b.WriteString(m.renderStep(step))
		b.WriteString("\n")
	}

	if len(m.workers) > 0 {
		b.WriteString("\n")
		for _, w := range m.workers {
			b.WriteString(m.renderWorker(w))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	if m.done {
		b.WriteString(titleStyle.Render(m.result))
		b.WriteString(footerStyle.Render("  press q to exit"))
	} else {
		b.WriteString(footerStyle.Render("q quit  ↑/↓ scroll output"))
	}

	return b.String()
}

func (m Model) renderStep(step stepRow) string {
	switch step.status {
	case models.TaskStatusRunning:
		return fmt.Sprintf("%s %s", m.spinner.View(), runningStyle.Render(step.description))
	case models.TaskStatusCompleted:
		return doneStyle.Render("✓ " + step.description)
	case models.TaskStatusFailed:
		return failedStyle.Render("✗ " + step.description)
	case models.TaskStatusSkipped:
		return skippedStyle.Render("- " + step.description + " (skipped)")
	default:
		return pendingStyle.Render("· " + step.description)
	}
}

func (m Model) renderWorker(w workerRow) string {
	line := fmt.Sprintf("%s %s %s", w.id, w.kind, w.state)
	switch w.state {
	case models.WorkerRunning, models.WorkerStarting:
		return runningStyle.Render(line)
	case models.WorkerCompleted:
		return doneStyle.Render(line)
	case models.WorkerFailed:
		return failedStyle.Render(line)
	default:
		return skippedStyle.Render(line)
	}
}
