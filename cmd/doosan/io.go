package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/snoeks/doosan/pkg/gateway"
	"github.com/snoeks/doosan/pkg/robot"
)

type IOCommand struct {
	Get  IOGetCommand  `command:"get" description:"Show digital input states"`
	Set  IOSetCommand  `command:"set" description:"Set a digital output"`
	Off  IOOffCommand  `command:"off" description:"Switch all digital outputs off"`
	Lamp IOLampCommand `command:"lamp" description:"Set the stack light: ready, moving or off"`
}

type IOGetCommand struct{}

type IOSetCommand struct {
	Args struct {
		Index int    `positional-arg-name:"index" required:"yes"`
		Value string `positional-arg-name:"0|1" required:"yes"`
	} `positional-args:"yes"`
}

type IOOffCommand struct{}

type IOLampCommand struct {
	Args struct {
		Mode string `positional-arg-name:"ready|moving|off" required:"yes"`
	} `positional-args:"yes"`
}

var (
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	tableOnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	tableOffStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1)
)

// renderTable draws rows in the CLI's table style. Cells reading "on" are
// highlighted.
func renderTable(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			if row >= 0 && row < len(rows) && col < len(rows[row]) {
				switch rows[row][col] {
				case "on":
					return tableOnStyle
				case "off":
					return tableOffStyle
				}
			}
			return tableCellStyle
		})
	return t.Render()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

// inputLabels names the cell's wired inputs.
func inputLabels(io robot.IOConfig) map[int]string {
	labels := map[int]string{
		io.SafetyInput: "safety enable",
		io.BufferInput: "armrest buffer",
	}
	for _, in := range io.ConfirmInputs {
		labels[in] = "operator confirm"
	}
	return labels
}

func (c *IOGetCommand) Execute(args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, client, _, err := connect(ctx, "io", false)
	if err != nil {
		return err
	}
	defer client.Close()

	labels := inputLabels(cfg.IO)
	var rows [][]string
	for i := 1; i <= cfg.IO.DigitalInputs; i++ {
		on, err := client.ReadDigitalInput(ctx, i)
		state := onOff(on)
		if err != nil {
			if gateway.IsConnectionError(err) {
				return err
			}
			state = "error"
		}
		rows = append(rows, []string{strconv.Itoa(i), state, labels[i]})
	}

	fmt.Println(renderTable([]string{"DI", "State", "Use"}, rows))
	return nil
}

func (c *IOSetCommand) Execute(args []string) error {
	var on bool
	switch c.Args.Value {
	case "1", "on":
		on = true
	case "0", "off":
	default:
		return fmt.Errorf("value must be 0 or 1, got %q", c.Args.Value)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, client, _, err := connect(ctx, "io", false)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.SetDigitalOutput(ctx, c.Args.Index, on); err != nil {
		return err
	}
	fmt.Printf("DO%d %s\n", c.Args.Index, onOff(on))
	return nil
}

func (c *IOOffCommand) Execute(args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, client, _, err := connect(ctx, "io", false)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.OutputsOff(ctx, cfg.IO.DigitalOutputs); err != nil {
		return err
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("DO1-DO%d off", cfg.IO.DigitalOutputs)))
	return nil
}

func (c *IOLampCommand) Execute(args []string) error {
	var ready, moving bool
	switch c.Args.Mode {
	case "ready":
		ready = true
	case "moving":
		moving = true
	case "off":
	default:
		return fmt.Errorf("lamp mode must be ready, moving or off, got %q", c.Args.Mode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, client, _, err := connect(ctx, "io", false)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.SetLamp(ctx, ready, moving); err != nil {
		return err
	}
	fmt.Println("Lamp " + c.Args.Mode)
	return nil
}
