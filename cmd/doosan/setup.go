package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/snoeks/doosan/pkg/gateway"
	"github.com/snoeks/doosan/pkg/robot"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type SetupCommand struct {
	SkipTest bool `long:"skip-test" description:"Do not test the connection after saving"`
}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("Doosan Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━"))
	fmt.Println()

	// Edit the file as written; coordinates and environment overrides
	// are merged at load time and must not be saved back.
	cfg, err := robot.ReadConfigFile(opts.Config)
	if err != nil {
		return err
	}

	host := cfg.Host
	port := strconv.Itoa(cfg.Port)
	speed := formatFloat(cfg.Motion.OperationSpeed)
	vel := formatFloat(cfg.Motion.Velocity)
	acc := formatFloat(cfg.Motion.Acceleration)
	coords := cfg.CoordinatesFile

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Robot address").Description("IP of the controller running the gateway script").Value(&host),
			huh.NewInput().Title("Port").Value(&port).Validate(validatePort),
		),
		huh.NewGroup(
			huh.NewInput().Title("Operation speed (%)").Value(&speed).Validate(validateRange(0, 100)),
			huh.NewInput().Title("Linear velocity (mm/s)").Value(&vel).Validate(validatePositive),
			huh.NewInput().Title("Linear acceleration (mm/s²)").Value(&acc).Validate(validatePositive),
		),
		huh.NewGroup(
			huh.NewInput().Title("Coordinates file").Description("Optional p_/pj_ waypoint file, leave empty for inline waypoints").Value(&coords),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}

	cfg.Host = host
	cfg.Port, _ = strconv.Atoi(port)
	cfg.Motion = robot.MotionParameters{
		OperationSpeed: mustFloat(speed),
		Velocity:       mustFloat(vel),
		Acceleration:   mustFloat(acc),
	}
	cfg.CoordinatesFile = coords

	if coords != "" {
		wp, err := robot.LoadWaypoints(coords)
		if err != nil {
			fmt.Println(errorStyle.Render("Coordinates file: " + err.Error()))
		} else {
			fmt.Printf("Loaded %d waypoints from %s\n", len(wp.Names()), coords)
		}
	}

	if err := cfg.SaveTo(opts.Config); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(successStyle.Render("Configuration saved to " + opts.Config))

	if !c.SkipTest {
		fmt.Println()
		fmt.Println(subHeaderStyle.Render("━━━ Testing connection ━━━"))
		testConnection(cfg)
	}

	fmt.Println()
	fmt.Println("Run a sequence with: " + headerStyle.Render("doosan run"))
	return nil
}

func testConnection(cfg *robot.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := gateway.New(gateway.OptionsFromConfig(cfg, nil))
	if err := client.Connect(ctx); err != nil {
		fmt.Println(errorStyle.Render(err.Error()))
		return
	}
	defer client.Close()

	moving, err := client.CheckMotion(ctx)
	if err != nil {
		fmt.Println(errorStyle.Render(err.Error()))
		return
	}
	enabled := robot.NewSafetyGate(client, cfg.IO.SafetyInput).Enabled(ctx)

	fmt.Printf("  Gateway:  %s\n", successStyle.Render("reachable at "+cfg.Addr()))
	fmt.Printf("  Moving:   %v\n", moving)
	fmt.Printf("  Enabled:  %v\n", enabled)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func mustFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func validatePort(s string) error {
	p, err := strconv.Atoi(s)
	if err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("port must be 1-65535")
	}
	return nil
}

func validatePositive(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return fmt.Errorf("must be a positive number")
	}
	return nil
}

func validateRange(lo, hi float64) func(string) error {
	return func(s string) error {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < lo || v > hi {
			return fmt.Errorf("must be between %s and %s", formatFloat(lo), formatFloat(hi))
		}
		return nil
	}
}
