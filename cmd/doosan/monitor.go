package main

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/snoeks/doosan/pkg/telemetry"
)

type MonitorCommand struct {
	Hz       int     `long:"hz" default:"10" description:"Sampling frequency"`
	RefFrame int     `long:"ref" default:"0" description:"Force reference frame (0 base, 1 tool)"`
	Range    float64 `long:"range" default:"50" description:"Chart range in N and mm"`
}

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	borderSize   = 2 // chart border
)

const (
	seriesForce = "force"
	seriesZ     = "dz"
)

var seriesColors = map[string]string{
	seriesForce: "196", // red
	seriesZ:     "51",  // cyan
}

var seriesLabels = map[string]string{
	seriesForce: "tool force (N)",
	seriesZ:     "TCP z from start (mm)",
}

var chartStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))

type monitorModel struct {
	sampler *telemetry.Sampler
	addr    string
	chart   *streamlinechart.Model
	width   int
	height  int
	logs    []string
	last    telemetry.Sample
	z0      float64
	started bool
}

type sampleMsg telemetry.Sample
type samplerLogMsg string

func waitForSample(s *telemetry.Sampler) tea.Cmd {
	return func() tea.Msg {
		return sampleMsg(<-s.Samples())
	}
}

func waitForSamplerLog(s *telemetry.Sampler) tea.Cmd {
	return func() tea.Msg {
		return samplerLogMsg(<-s.Logs())
	}
}

func (m *monitorModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *monitorModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - legendHeight - footerHeight - borderSize
	if height < 10 {
		height = 10
	}
	return width, height
}

func initialMonitorModel(s *telemetry.Sampler, addr string, yRange float64) monitorModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-yRange, yRange),
	)
	for _, name := range []string{seriesForce, seriesZ} {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(seriesColors[name]))
		chart.SetDataSetStyles(name, runes.ThinLineStyle, style)
	}
	return monitorModel{sampler: s, addr: addr, chart: &chart}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		waitForSample(m.sampler),
		waitForSamplerLog(m.sampler),
	)
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		w, h := m.chartSize()
		m.chart.Resize(w, h)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "z":
			// re-zero the height trace at the current pose
			m.z0 = m.last.Pose.Z()
		}

	case sampleMsg:
		sample := telemetry.Sample(msg)
		if sample.Error == nil {
			if !m.started {
				m.z0 = sample.Pose.Z()
				m.started = true
			}
			m.chart.PushDataSet(seriesForce, sample.Force)
			m.chart.PushDataSet(seriesZ, sample.Pose.Z()-m.z0)
			m.chart.DrawAll()
			m.last = sample
		}
		return m, waitForSample(m.sampler)

	case samplerLogMsg:
		m.addLog(string(msg))
		return m, waitForSamplerLog(m.sampler)
	}

	return m, nil
}

func (m monitorModel) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Doosan Monitor"))
	sb.WriteString(fmt.Sprintf(" - %d Hz", m.sampler.Hz()))
	sb.WriteString(statusStyle.Render(fmt.Sprintf("  %s  force %.2f N  %s", m.addr, m.last.Force, m.last.Pose)))
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	sb.WriteString(renderSeriesLegend())
	sb.WriteString("\n")

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Press 'z' to re-zero height, 'q' to quit")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	width := m.width - 4
	if width < 40 {
		width = 40
	}
	sb.WriteString(boxStyle.Width(width).Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func renderSeriesLegend() string {
	var items []string
	for _, name := range []string{seriesForce, seriesZ} {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(seriesColors[name])).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+seriesLabels[name])
	}
	return strings.Join(items, "  ")
}

func (c *MonitorCommand) Execute(args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, client, log, err := connect(ctx, "monitor", true)
	if err != nil {
		return err
	}
	defer client.Close()

	sampler := telemetry.NewSampler(client, telemetry.Config{Hz: c.Hz, RefFrame: c.RefFrame})
	go func() {
		if err := sampler.Start(ctx); err != nil && err != context.Canceled {
			log.WithError(err).Warn("sampler stopped")
		}
	}()

	p := tea.NewProgram(initialMonitorModel(sampler, client.Addr(), c.Range), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("monitor view: %w", err)
	}
	return nil
}
