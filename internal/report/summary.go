package report

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/nmpcsim/internal/mpc"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).MarginBottom(1)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(22)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 2)
)

// SolveTimes collects per-update solve durations. It is safe to use as an
// mpc.Observer from any goroutine.
type SolveTimes struct {
	mu      sync.Mutex
	seconds []float64
}

func (s *SolveTimes) OnUpdate(u mpc.Update) {
	s.mu.Lock()
	s.seconds = append(s.seconds, u.SolveTime.Seconds())
	s.mu.Unlock()
}

func (s *SolveTimes) Stats() (mean, std, p95, worst time.Duration) {
	s.mu.Lock()
	v := append([]float64(nil), s.seconds...)
	s.mu.Unlock()
	v = finite(v)
	if len(v) == 0 {
		return 0, 0, 0, 0
	}
	sort.Float64s(v)
	m, sd := stat.MeanStdDev(v, nil)
	if len(v) < 2 {
		sd = 0
	}
	q := stat.Quantile(0.95, stat.Empirical, v, nil)
	return seconds(m), seconds(sd), seconds(q), seconds(v[len(v)-1])
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

type Summary struct {
	RunID     string
	Optimizer string
	Curve     string
	Steps     int
	Updates   int
	Failures  int
	Elapsed   time.Duration
	MsPerStep float64
	Metrics   map[string]float64

	SolveMean time.Duration
	SolveStd  time.Duration
	SolveP95  time.Duration
	SolveMax  time.Duration
}

func Summarize(res *mpc.Result, times *SolveTimes) Summary {
	s := Summary{
		Steps:     res.History.Len(),
		Updates:   res.Updates,
		Failures:  res.Failures,
		Elapsed:   res.Elapsed,
		MsPerStep: res.MsPerStep(),
		Metrics:   res.Metrics,
	}
	if times != nil {
		s.SolveMean, s.SolveStd, s.SolveP95, s.SolveMax = times.Stats()
	}
	return s
}

func (s Summary) Render() string {
	var b strings.Builder
	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label) + valueStyle.Render(value) + "\n")
	}

	b.WriteString(titleStyle.Render("NMPC run summary") + "\n")
	if s.RunID != "" {
		row("run", s.RunID)
	}
	if s.Optimizer != "" {
		row("optimizer", s.Optimizer)
	}
	if s.Curve != "" {
		row("curve", s.Curve)
	}
	row("steps", fmt.Sprintf("%d", s.Steps))
	row("updates", fmt.Sprintf("%d", s.Updates))
	failures := fmt.Sprintf("%d", s.Failures)
	if s.Failures > 0 {
		failures = warnStyle.Render(failures)
	}
	b.WriteString(labelStyle.Render("failed updates") + failures + "\n")
	row("elapsed", fmt.Sprintf("%.2f s (%.3f ms/step avg)", s.Elapsed.Seconds(), s.MsPerStep))
	if s.Updates > 0 {
		row("solve time", fmt.Sprintf("mean %v  std %v  p95 %v  max %v",
			s.SolveMean.Round(time.Microsecond), s.SolveStd.Round(time.Microsecond),
			s.SolveP95.Round(time.Microsecond), s.SolveMax.Round(time.Microsecond)))
	}

	keys := make([]string, 0, len(s.Metrics))
	for k := range s.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		row(k, fmt.Sprintf("%.4f", s.Metrics[k]))
	}

	return boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}
