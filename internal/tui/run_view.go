// internal/tui/run_view.go
//
// The run view follows The Elm Architecture like the rest of bubbletea:
// engine progress arrives as messages through an observer bridge, Update
// folds them into the model, and View renders one line per module.

package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/intel-lattice/internal/workflow/engine"
)

// RunFunc executes one orchestration, reporting progress to obs.
type RunFunc func(ctx context.Context, obs engine.Observer) (engine.OrchestrationRecord, error)

type moduleStartedMsg struct {
	index int
	total int
	id    string
}

type moduleFinishedMsg struct {
	index  int
	total  int
	record engine.ExecutionRecord
}

type runFinishedMsg struct {
	record engine.OrchestrationRecord
	err    error
}

// Observer forwards engine callbacks into the bubbletea event loop.
type Observer struct {
	events chan tea.Msg
}

var _ engine.Observer = (*Observer)(nil)

// NewObserver returns an observer with a buffer large enough for a run over
// size modules.
func NewObserver(size int) *Observer {
	return &Observer{events: make(chan tea.Msg, 2*size+1)}
}

// ModuleStarted implements engine.Observer.
func (o *Observer) ModuleStarted(index, total int, id string) {
	o.events <- moduleStartedMsg{index: index, total: total, id: id}
}

// ModuleFinished implements engine.Observer.
func (o *Observer) ModuleFinished(index, total int, record engine.ExecutionRecord) {
	o.events <- moduleFinishedMsg{index: index, total: total, record: record}
}

func (o *Observer) wait() tea.Cmd {
	return func() tea.Msg {
		return <-o.events
	}
}

// RunModel is the bubbletea model for a single orchestration run.
type RunModel struct {
	title    string
	order    []string
	results  map[string]engine.ExecutionRecord
	running  string
	spinner  spinner.Model
	observer *Observer
	run      RunFunc
	ctx      context.Context
	cancel   context.CancelFunc
	record   engine.OrchestrationRecord
	err      error
	done     bool
}

// NewRunModel prepares a run view for the planned execution order.
func NewRunModel(ctx context.Context, title string, order []string, run RunFunc) *RunModel {
	ctx, cancel := context.WithCancel(ctx)
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = labelStyleRunning
	return &RunModel{
		title:    title,
		order:    append([]string{}, order...),
		results:  map[string]engine.ExecutionRecord{},
		spinner:  s,
		observer: NewObserver(len(order)),
		run:      run,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Observer returns the bridge the engine must report to.
func (m *RunModel) Observer() *Observer {
	return m.observer
}

// Init starts the spinner, the orchestration and the event pump.
func (m *RunModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.start(), m.observer.wait())
}

func (m *RunModel) start() tea.Cmd {
	return func() tea.Msg {
		if m.run == nil {
			return runFinishedMsg{err: errors.New("tui: no run function")}
		}
		record, err := m.run(m.ctx, m.observer)
		return runFinishedMsg{record: record, err: err}
	}
}

// Update folds progress messages into the model.
func (m *RunModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case moduleStartedMsg:
		m.running = msg.id
		if !m.known(msg.id) {
			m.order = append(m.order, msg.id)
		}
		return m, m.observer.wait()
	case moduleFinishedMsg:
		m.results[msg.record.Module] = msg.record
		if m.running == msg.record.Module {
			m.running = ""
		}
		if !m.known(msg.record.Module) {
			m.order = append(m.order, msg.record.Module)
		}
		return m, m.observer.wait()
	case runFinishedMsg:
		m.drain()
		m.done = true
		m.running = ""
		m.record = msg.record
		m.err = msg.err
		m.cancel()
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.cancel()
			if m.done {
				return m, tea.Quit
			}
		}
		return m, nil
	}
	return m, nil
}

// View renders the run board.
func (m *RunModel) View() string {
	lines := make([]string, 0, len(m.order)+2)
	for _, id := range m.order {
		lines = append(lines, m.renderModuleLine(id))
	}
	body := boxStyle.Render(strings.Join(lines, "\n"))
	return strings.Join([]string{headerStyle.Render("⬡ INTEL · " + m.title), body, footerStyle.Render(m.status())}, "\n")
}

// Record returns the finished record and run error.
func (m *RunModel) Record() (engine.OrchestrationRecord, error) {
	return m.record, m.err
}

// Done reports whether the orchestration has returned.
func (m *RunModel) Done() bool {
	return m.done
}

func (m *RunModel) renderModuleLine(id string) string {
	if result, ok := m.results[id]; ok {
		label := labelStyleForStatus(result.Status).Render(friendlyLabel(string(result.Status)))
		line := fmt.Sprintf("  %s · [%s]", id, label)
		if result.Status != engine.StatusCompleted {
			line += " " + detailTextStyle.Render(result.Summary)
		}
		return line
	}
	if id == m.running {
		return fmt.Sprintf("%s %s · [%s]", m.spinner.View(), id, labelStyleRunning.Render("Running"))
	}
	return fmt.Sprintf("  %s · [%s]", id, labelStyleDefault.Render("Pending"))
}

func (m *RunModel) status() string {
	if m.err != nil {
		return fmt.Sprintf("Run failed: %v", m.err)
	}
	finished := len(m.results)
	if m.done {
		return fmt.Sprintf("Finished %d/%d modules", finished, len(m.order))
	}
	return fmt.Sprintf("%d/%d modules · q=cancel", finished, len(m.order))
}

// drain applies progress still buffered when the run returns.
func (m *RunModel) drain() {
	for {
		select {
		case msg := <-m.observer.events:
			if finished, ok := msg.(moduleFinishedMsg); ok {
				m.results[finished.record.Module] = finished.record
				if !m.known(finished.record.Module) {
					m.order = append(m.order, finished.record.Module)
				}
			}
		default:
			return
		}
	}
}

func (m *RunModel) known(id string) bool {
	for _, existing := range m.order {
		if existing == id {
			return true
		}
	}
	return false
}

// Run shows the run view until the orchestration finishes and returns its
// record.
func Run(ctx context.Context, title string, order []string, run RunFunc, opts ...tea.ProgramOption) (engine.OrchestrationRecord, error) {
	model := NewRunModel(ctx, title, order, run)
	final, err := tea.NewProgram(model, opts...).Run()
	if err != nil {
		return engine.OrchestrationRecord{}, fmt.Errorf("tui: %w", err)
	}
	finished, ok := final.(*RunModel)
	if !ok || !finished.Done() {
		return engine.OrchestrationRecord{}, errors.New("tui: run interrupted")
	}
	return finished.Record()
}
