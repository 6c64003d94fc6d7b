// Package live renders a running derivative pipeline in the terminal.
package live

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/timederiv/internal/field"
	"github.com/san-kum/timederiv/internal/pipeline"
)

const historyCapacity = 200

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(16)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	haltStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	graphStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
)

type StepMsg struct {
	Step    int
	Elapsed time.Duration
}

type FrameMsg struct {
	Step int
	Kind pipeline.FrameKind
	Peak float64
}

type HaltMsg struct {
	Expected, Producer int
}

// DoneMsg ends the view once the pipeline has returned.
type DoneMsg struct {
	Err error
}

// Observer forwards pipeline events to a running program. Frame data is
// reduced to its peak before sending since the pipeline reuses the buffer.
type Observer struct {
	send func(tea.Msg)
}

func NewObserver(send func(tea.Msg)) *Observer {
	return &Observer{send: send}
}

func (o *Observer) OnStep(step int, elapsed time.Duration) {
	o.send(StepMsg{Step: step, Elapsed: elapsed})
}

func (o *Observer) OnFrame(step int, kind pipeline.FrameKind, deriv []float64) {
	o.send(FrameMsg{Step: step, Kind: kind, Peak: field.MaxAbs(deriv)})
}

func (o *Observer) OnHalt(expected, producer int) {
	o.send(HaltMsg{Expected: expected, Producer: producer})
}

// Model is the bubbletea model of the live view.
type Model struct {
	source, varName string
	cancel          context.CancelFunc

	step      int
	elapsed   time.Duration
	frames    int
	derivs    int
	lastPeak  float64
	history   []float64
	halt      *HaltMsg
	done      bool
	err       error
	cancelled bool
}

// NewModel returns the view for a run of source/varName. cancel is called
// when the user quits before the pipeline is done.
func NewModel(source, varName string, cancel context.CancelFunc) Model {
	return Model{
		source:  source,
		varName: varName,
		cancel:  cancel,
		step:    -1,
		history: make([]float64, 0, historyCapacity),
	}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.done && m.cancel != nil {
				m.cancel()
				m.cancelled = true
			}
			return m, tea.Quit
		}
	case StepMsg:
		m.step = msg.Step
		m.elapsed += msg.Elapsed
	case FrameMsg:
		m.frames++
		if msg.Kind == pipeline.FrameDerivative {
			m.derivs++
			m.lastPeak = msg.Peak
			m.history = append(m.history, msg.Peak)
			if len(m.history) > historyCapacity {
				m.history = m.history[1:]
			}
		}
	case HaltMsg:
		m.halt = &msg
	case DoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("dF/dt  %s : %s", m.source, m.varName)))
	b.WriteString("\n")

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}
	if m.step < 0 {
		row("step", "waiting")
	} else {
		row("step", fmt.Sprint(m.step))
	}
	row("frames", fmt.Sprintf("%d (%d derivative)", m.frames, m.derivs))
	row("peak |dF/dt|", fmt.Sprintf("%.6g", m.lastPeak))
	row("elapsed", m.elapsed.Round(time.Millisecond).String())

	if m.halt != nil {
		b.WriteString(haltStyle.Render(fmt.Sprintf("halted: expected step %d, producer sent %d", m.halt.Expected, m.halt.Producer)))
		b.WriteString("\n")
	}
	if len(m.history) > 1 {
		b.WriteString(graphStyle.Render(asciigraph.Plot(m.history,
			asciigraph.Height(8),
			asciigraph.Width(60),
			asciigraph.Caption("peak |dF/dt| per frame"))))
		b.WriteString("\n")
	}

	switch {
	case m.err != nil:
		b.WriteString(haltStyle.Render("error: " + m.err.Error()))
	case m.done:
		b.WriteString(valueStyle.Render("done"))
	default:
		b.WriteString(helpStyle.Render("q: stop"))
	}
	b.WriteString("\n")
	return b.String()
}

// Cancelled reports whether the user stopped the run from the view.
func (m Model) Cancelled() bool { return m.cancelled }
