// Package dashboard implements "relayforged status": a small terminal UI
// that polls a running relay's local endpoint and renders live session and
// queue state. It is additive to the core engine (spec.md §2-§8 do not
// depend on it) and speaks only to the local HTTP endpoint the Supervisor
// already exposes, never to the control plane directly.
package dashboard

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/prometheus/common/expfmt"
)

const pollInterval = time.Second

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	badStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
)

// snapshot is the subset of the local endpoint's state the dashboard
// renders each tick.
type snapshot struct {
	healthOK    bool
	sessionOpen float64
	queueDepth  float64
	invocations float64
	fetchedAt   time.Time
	err         error
}

type tickMsg time.Time

type snapshotMsg snapshot

// Model is the bubbletea model driving the dashboard.
type Model struct {
	addr     string
	client   *http.Client
	spin     spinner.Model
	current  snapshot
	haveData bool
}

// New builds a dashboard Model polling the local endpoint at addr (e.g.
// "http://127.0.0.1:8080").
func New(addr string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return Model{
		addr:   strings.TrimSuffix(addr, "/"),
		client: &http.Client{Timeout: 2 * time.Second},
		spin:   s,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.poll(), tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) }))
}

func (m Model) poll() tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(m.fetch())
	}
}

func (m Model) fetch() snapshot {
	snap := snapshot{fetchedAt: time.Now()}

	resp, err := m.client.Get(m.addr + "/health")
	if err != nil {
		snap.err = err
		return snap
	}
	snap.healthOK = resp.StatusCode == http.StatusOK
	resp.Body.Close()

	metricsResp, err := m.client.Get(m.addr + "/metrics")
	if err != nil {
		snap.err = err
		return snap
	}
	defer metricsResp.Body.Close()

	gauges, invocations := scrapeMetrics(metricsResp.Body)
	snap.sessionOpen = gauges["relayforge_session_open"]
	snap.queueDepth = gauges["relayforge_dispatcher_queue_depth"]
	snap.invocations = invocations
	return snap
}

// scrapeMetrics parses the /metrics response with the same text-exposition
// parser the wider Prometheus ecosystem uses to scrape itself, and pulls out
// the handful of metric families the dashboard renders.
func scrapeMetrics(body io.Reader) (gauges map[string]float64, invocationsTotal float64) {
	gauges = map[string]float64{
		"relayforge_session_open":           0,
		"relayforge_dispatcher_queue_depth": 0,
	}

	families, err := new(expfmt.TextParser).TextToMetricFamilies(body)
	if err != nil {
		return gauges, 0
	}

	for name, family := range families {
		for _, m := range family.GetMetric() {
			var value float64
			switch {
			case m.GetGauge() != nil:
				value = m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				value = m.GetCounter().GetValue()
			default:
				continue
			}
			if _, tracked := gauges[name]; tracked {
				gauges[name] += value
			}
			if name == "relayforge_invocations_total" {
				invocationsTotal += value
			}
		}
	}
	return gauges, invocationsTotal
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tickMsg:
		return m, tea.Batch(m.poll(), tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) }))
	case snapshotMsg:
		m.current = snapshot(msg)
		m.haveData = true
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n\n", m.spin.View(), titleStyle.Render("relayforged status"))

	if !m.haveData {
		fmt.Fprintf(&b, "%s\n", labelStyle.Render("connecting to "+m.addr+" ..."))
		return b.String()
	}

	if m.current.err != nil {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("endpoint:"), badStyle.Render(m.current.err.Error()))
		fmt.Fprintf(&b, "\n%s\n", helpStyle.Render("press q to quit"))
		return b.String()
	}

	health := badStyle.Render("unreachable")
	if m.current.healthOK {
		health = okStyle.Render("ok")
	}
	session := badStyle.Render("closed")
	if m.current.sessionOpen > 0 {
		session = okStyle.Render("open")
	}

	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("health:          "), health)
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("session:         "), session)
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("queue depth:     "), valueStyle.Render(strconv.FormatFloat(m.current.queueDepth, 'f', 0, 64)))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("invocations:     "), valueStyle.Render(strconv.FormatFloat(m.current.invocations, 'f', 0, 64)))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("last poll:       "), valueStyle.Render(m.current.fetchedAt.Format(time.TimeOnly)))

	fmt.Fprintf(&b, "\n%s\n", helpStyle.Render("press q to quit"))
	return b.String()
}

// Run starts the dashboard program and blocks until the user quits.
func Run(addr string) error {
	p := tea.NewProgram(New(addr))
	_, err := p.Run()
	return err
}
