package viz

import (
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/nmpcsim/internal/mpc"
	"github.com/san-kum/nmpcsim/internal/sim"
)

const (
	canvasWidth     = 40
	canvasHeight    = 16
	historyCapacity = 600
)

// UpdateMsg carries one controller update into the view.
type UpdateMsg mpc.Update

// DoneMsg reports that the loop has returned.
type DoneMsg struct {
	Result *mpc.Result
	Err    error
}

// Forward returns an observer that sends every update to a running program.
func Forward(send func(tea.Msg)) mpc.Observer {
	return mpc.ObserverFunc(func(u mpc.Update) { send(UpdateMsg(u)) })
}

// Model is the live view of a control loop.
type Model struct {
	identity   string
	curve      string
	totalSteps int
	dt         float64

	last     mpc.Update
	updates  int
	failures int
	trailX   []float64
	trailY   []float64
	errHist  []float64
	solveMs  []float64

	frozen bool
	done   bool
	result *mpc.Result
	err    error
}

func NewModel(identity, curve string, totalSteps int, dt float64) Model {
	return Model{
		identity:   identity,
		curve:      curve,
		totalSteps: totalSteps,
		dt:         dt,
		trailX:     make([]float64, 0, historyCapacity),
		trailY:     make([]float64, 0, historyCapacity),
		errHist:    make([]float64, 0, historyCapacity),
		solveMs:    make([]float64, 0, historyCapacity),
	}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.frozen = !m.frozen
		}
	case UpdateMsg:
		m.updates++
		if msg.Err != nil {
			m.failures++
		}
		if m.frozen {
			return m, nil
		}
		m.last = mpc.Update(msg)
		x := msg.State
		m.trailX = appendCapped(m.trailX, x[0])
		m.trailY = appendCapped(m.trailY, x[1])
		if len(msg.Horizon.Xref) > 0 {
			ref := msg.Horizon.Xref[0]
			m.errHist = appendCapped(m.errHist, math.Hypot(x[0]-ref[0], x[1]-ref[1]))
		}
		m.solveMs = appendCapped(m.solveMs, float64(msg.SolveTime.Microseconds())/1000)
	case DoneMsg:
		m.done = true
		m.result = msg.Result
		m.err = msg.Err
	}
	return m, nil
}

func appendCapped(v []float64, x float64) []float64 {
	if len(v) == historyCapacity {
		copy(v, v[1:])
		v = v[:len(v)-1]
	}
	return append(v, x)
}

func (m Model) progress() float64 {
	if m.totalSteps == 0 {
		return 0
	}
	if m.done {
		return 1
	}
	return float64(m.last.Step) / float64(m.totalSteps)
}

func (m Model) path() string {
	var xs, ys []float64
	for _, r := range m.last.Horizon.Xref {
		xs = append(xs, r[0])
		ys = append(ys, r[1])
	}
	b := BoundsOf(append(append([]float64{}, m.trailX...), xs...), append(append([]float64{}, m.trailY...), ys...))
	c := NewCanvas(canvasWidth, canvasHeight)
	c.Polyline(b, xs, ys)
	c.Polyline(b, m.trailX, m.trailY)
	return c.String()
}

func row(label, value string) string {
	return MetricLabel.Render(label) + MetricValue.Render(value)
}

func vec(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%7.3f", x)
	}
	return strings.Join(parts, " ")
}

func (m Model) stats() string {
	mode := m.last.Mode
	if m.done {
		mode = mpc.Finished
	}
	var ref sim.State
	if len(m.last.Horizon.Xref) > 0 {
		ref = m.last.Horizon.Xref[0]
	}

	lines := []string{
		row("mode", "") + ModeBadge(mode),
		row("t", fmt.Sprintf("%.2f s", m.last.Time)),
		ProgressBar(m.progress(), 30),
		"",
		row("state", vec(m.last.State)),
		row("reference", vec(ref)),
		row("input", vec(m.last.Input)),
		"",
		row("updates", fmt.Sprintf("%d", m.updates)),
		row("failures", fmt.Sprintf("%d", m.failures)),
		row("solve", fmt.Sprintf("%.2f ms", float64(m.last.SolveTime.Microseconds())/1000)),
		"",
		Subtle.Render("position error"),
		Sparkline(m.errHist, 30),
	}
	return strings.Join(lines, "\n")
}

func (m Model) View() string {
	header := Title.Render("nmpcsim live") + "  " + Subtle.Render(m.identity+"  curve="+m.curve)

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		Panel.Render(m.path()),
		Panel.Render(m.stats()),
	)

	var footer string
	if len(m.solveMs) > 1 {
		footer = asciigraph.Plot(m.solveMs,
			asciigraph.Height(4),
			asciigraph.Width(60),
			asciigraph.Caption("solve time [ms]"),
		) + "\n"
	}
	switch {
	case m.done && m.err != nil:
		footer += modeStyles[mpc.Degraded].Render("stopped: "+m.err.Error()) + "\n"
	case m.done && m.result != nil:
		footer += Subtle.Render(fmt.Sprintf("finished: %d steps, %d updates, %d failures, %.2f s",
			m.result.History.Len(), m.result.Updates, m.result.Failures, m.result.Elapsed.Seconds())) + "\n"
	}
	footer += KeyHint.Render("space freeze · q quit")

	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}
