package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/snoeks/doosan/pkg/gateway"
	"github.com/snoeks/doosan/pkg/robot"
	"github.com/snoeks/doosan/pkg/sequence"
)

type RunCommand struct {
	Sequence string `short:"s" long:"sequence" description:"Sequence to run: buckles, armrests, seatbelts or all (prompted when empty)"`
	Plain    bool   `long:"plain" description:"Print progress lines instead of the interactive view"`
}

const maxLogs = 8

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
)

var stateColors = map[sequence.State]string{
	sequence.Idle:               "241",
	sequence.WaitingForOperator: "11",
	sequence.Running:            "12",
	sequence.Done:               "10",
	sequence.Stopped:            "208",
	sequence.Faulted:            "9",
}

type runModel struct {
	prog     *sequence.Program
	client   *gateway.Client
	spinner  spinner.Model
	update   sequence.Update
	status   gateway.Status
	logs     []string
	results  <-chan sequence.Result
	result   *sequence.Result
	width    int
	quitting bool
}

// Messages from the program and poller
type updateMsg sequence.Update
type logMsg string
type statusMsg gateway.Status
type resultMsg sequence.Result
type stopErrMsg struct{ err error }

func waitForUpdate(p *sequence.Program) tea.Cmd {
	return func() tea.Msg {
		return updateMsg(<-p.States())
	}
}

func waitForLog(p *sequence.Program) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-p.Logs())
	}
}

func waitForStatus(c *gateway.Client) tea.Cmd {
	return func() tea.Msg {
		return statusMsg(<-c.Poller().Updates())
	}
}

func waitForResult(ch <-chan sequence.Result) tea.Cmd {
	return func() tea.Msg {
		return resultMsg(<-ch)
	}
}

func requestStop(p *sequence.Program) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return stopErrMsg{p.RequestStop(ctx)}
	}
}

func (m *runModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

func (m runModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		waitForUpdate(m.prog),
		waitForLog(m.prog),
		waitForStatus(m.client),
		waitForResult(m.results),
	)
}

func (m runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "s", " ":
			if m.result == nil {
				return m, requestStop(m.prog)
			}
		case "q", "ctrl+c":
			if m.result == nil {
				// Stop first; quit once the run has ended.
				m.quitting = true
				return m, requestStop(m.prog)
			}
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case updateMsg:
		m.update = sequence.Update(msg)
		return m, waitForUpdate(m.prog)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.prog)

	case statusMsg:
		m.status = gateway.Status(msg)
		return m, waitForStatus(m.client)

	case stopErrMsg:
		if msg.err != nil {
			m.addLog("stop failed: " + msg.err.Error())
		}
		return m, nil

	case resultMsg:
		res := sequence.Result(msg)
		m.result = &res
		m.update.State = res.State
		if m.quitting {
			return m, tea.Quit
		}
		return m, nil
	}

	return m, nil
}

func (m runModel) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Doosan Run"))
	sb.WriteString(statusStyle.Render(fmt.Sprintf("  %s  %s", m.prog.Selection(), m.client.Addr())))
	sb.WriteString("\n\n")

	state := m.update.State
	stateStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(stateColors[state]))
	if !state.Terminal() {
		sb.WriteString(m.spinner.View() + " ")
	}
	sb.WriteString(stateStyle.Render(state.String()))
	if m.update.Total > 0 && !state.Terminal() {
		sb.WriteString(fmt.Sprintf("  step %d/%d  %s", m.update.Index, m.update.Total, m.update.Step))
	}
	sb.WriteString("\n")

	robotLine := "robot: "
	switch {
	case m.status.Err != nil:
		robotLine += errorStyle.Render(m.status.Err.Error())
	case m.status.At.IsZero():
		robotLine += "no status yet"
	case m.status.Moving:
		robotLine += "moving"
	default:
		robotLine += "idle"
	}
	sb.WriteString(statusStyle.Render(robotLine))
	sb.WriteString("\n\n")

	width := m.width - 4
	if width < 40 {
		width = 40
	}
	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Waiting for sequence output")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(boxStyle.Width(width).Render(logLines))
	sb.WriteString("\n")

	if m.result != nil {
		line := fmt.Sprintf("Run %s %s after %s", m.result.RunID.String()[:8], m.result.State, m.result.Duration().Round(time.Millisecond))
		if m.result.Err != nil {
			line += ": " + m.result.Err.Error()
		}
		sb.WriteString(line + "\n")
		sb.WriteString(statusStyle.Render("Press 'q' to quit"))
	} else {
		sb.WriteString(statusStyle.Render("Press 's' to stop, 'q' to stop and quit"))
	}
	sb.WriteString("\n")
	return sb.String()
}

func chooseSequence() (sequence.Selection, error) {
	var sel sequence.Selection
	options := make([]huh.Option[sequence.Selection], 0, len(sequence.Selections()))
	for _, s := range sequence.Selections() {
		options = append(options, huh.NewOption(string(s), s))
	}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[sequence.Selection]().
				Title("Which product?").
				Options(options...).
				Value(&sel),
		),
	)
	if err := form.Run(); err != nil {
		return sequence.None, err
	}
	return sel, nil
}

func (c *RunCommand) Execute(args []string) error {
	var sel sequence.Selection
	var err error
	if c.Sequence != "" {
		sel, err = sequence.ParseSelection(c.Sequence)
		if err != nil {
			return err
		}
	} else {
		if sel, err = chooseSequence(); err != nil {
			fmt.Println()
			os.Exit(0)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, client, log, err := connect(ctx, "run", !c.Plain)
	if err != nil {
		return err
	}
	defer client.Close()

	store := robot.NewFileStore(opts.Config, cfg)
	prog := sequence.New(client, sequence.ConfigFrom(cfg), store, log)
	if err := prog.SetSelection(sel); err != nil {
		return err
	}
	if err := prog.ApplyParameters(ctx); err != nil {
		return fmt.Errorf("apply parameters: %w", err)
	}

	if c.Plain {
		return runPlain(ctx, prog)
	}

	client.StartPoller(ctx)

	results := make(chan sequence.Result, 1)
	go func() { results <- prog.Run(ctx) }()

	sp := spinner.New()
	sp.Spinner = spinner.Points
	model := runModel{prog: prog, client: client, spinner: sp, results: results}

	p := tea.NewProgram(model, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("run view: %w", err)
	}
	if fm, ok := final.(runModel); ok && fm.result != nil {
		fmt.Printf("Sequence %s: %s\n", fm.result.Selection, fm.result.State)
		return runErr(*fm.result)
	}
	return nil
}

// runErr is the command's error for a finished run. It is returned rather
// than exiting so the deferred client close still runs.
func runErr(res sequence.Result) error {
	switch {
	case res.State == sequence.Done:
		return nil
	case res.Err != nil:
		return res.Err
	default:
		return fmt.Errorf("sequence %s ended %s", res.Selection, res.State)
	}
}

// runPlain runs without the interactive view, printing operator messages.
func runPlain(ctx context.Context, prog *sequence.Program) error {
	done := make(chan sequence.Result, 1)
	go func() { done <- prog.Run(ctx) }()

	for {
		select {
		case l := <-prog.Logs():
			fmt.Println(l)
		case res := <-done:
			drainLogs(prog)
			fmt.Printf("Sequence %s: %s (%s)\n", res.Selection, res.State, res.Duration().Round(time.Millisecond))
			return runErr(res)
		}
	}
}

func drainLogs(prog *sequence.Program) {
	for {
		select {
		case l := <-prog.Logs():
			fmt.Println(l)
		default:
			return
		}
	}
}
