package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/jessevdk/go-flags"

	"github.com/snoeks/doosan/pkg/gateway"
	"github.com/snoeks/doosan/pkg/robot"
)

type Options struct {
	Config   string `short:"c" long:"config" default:"doosan.yaml" description:"Configuration file"`
	Addr     string `short:"a" long:"addr" description:"Gateway host:port (overrides config)"`
	Identify bool   `long:"identify" description:"Blink the stack light and save the address if confirmed"`
}

func main() {
	var opts Options
	if _, err := flags.Parse(&opts); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	cfg, err := robot.LoadConfigFrom(opts.Config)
	if err != nil {
		fmt.Printf("Error loading %s: %v\n", opts.Config, err)
		os.Exit(1)
	}
	if opts.Addr != "" {
		if err := setAddr(cfg, opts.Addr); err != nil {
			fmt.Printf("Invalid address: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println("🤖 Doosan Gateway Info")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := gateway.New(gateway.OptionsFromConfig(cfg, nil))
	if err := client.Connect(ctx); err != nil {
		fmt.Printf("No gateway at %s: %v\n", cfg.Addr(), err)
		fmt.Println("Make sure the controller is on and the gateway script is running.")
		os.Exit(1)
	}
	defer client.Close()

	fmt.Printf("  Found gateway on %s\n\n", client.Addr())
	printStatus(ctx, client, cfg)

	if !opts.Identify {
		return
	}

	blinkLamps(ctx, client)

	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Is this the cell at %s?", client.Addr())).
				Description("The stack light that just blinked").
				Value(&confirmed),
		),
	)
	if err := form.Run(); err != nil || !confirmed {
		fmt.Println("Not saved.")
		return
	}

	onDisk, err := robot.ReadConfigFile(opts.Config)
	if err != nil {
		fmt.Printf("Error reading config: %v\n", err)
		os.Exit(1)
	}
	onDisk.Host, onDisk.Port = cfg.Host, cfg.Port
	if err := onDisk.SaveTo(opts.Config); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Address saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("Run a sequence with:")
	fmt.Println("  go run ./cmd/doosan run")
}

func setAddr(cfg *robot.Config, addr string) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("bad port %q", portStr)
	}
	cfg.Host, cfg.Port = host, port
	return nil
}

func printStatus(ctx context.Context, client *gateway.Client, cfg *robot.Config) {
	if moving, err := client.CheckMotion(ctx); err != nil {
		fmt.Printf("  Motion:   error: %v\n", err)
	} else if moving {
		fmt.Println("  Motion:   moving")
	} else {
		fmt.Println("  Motion:   idle")
	}

	gate := robot.NewSafetyGate(client, cfg.IO.SafetyInput)
	if gate.Enabled(ctx) {
		fmt.Printf("  Safety:   enabled (DI%d)\n", gate.Input())
	} else {
		fmt.Printf("  Safety:   DISABLED (DI%d)\n", gate.Input())
	}

	if pose, err := client.ReadToolPose(ctx); err != nil {
		fmt.Printf("  TCP:      error: %v\n", err)
	} else {
		fmt.Printf("  TCP:      %s\n", pose)
	}

	if force, err := client.ReadToolForce(ctx, 0); err != nil {
		fmt.Printf("  Force:    error: %v\n", err)
	} else {
		fmt.Printf("  Force:    %.2f N\n", force)
	}

	fmt.Print("  Inputs:   ")
	for i := 1; i <= cfg.IO.DigitalInputs; i++ {
		on, err := client.ReadDigitalInput(ctx, i)
		switch {
		case err != nil:
			fmt.Print("?")
		case on:
			fmt.Print("1")
		default:
			fmt.Print("0")
		}
	}
	fmt.Println()

	fmt.Printf("  Waypoints: %d configured\n", len(cfg.Waypoints.Names()))
	fmt.Println()
}

func blinkLamps(ctx context.Context, client *gateway.Client) {
	fmt.Printf("  ⟳ Blinking stack light on %s...\n\n", client.Addr())

	for i := 0; i < 3; i++ {
		client.SetLamp(ctx, true, false)
		time.Sleep(300 * time.Millisecond)
		client.SetLamp(ctx, false, true)
		time.Sleep(300 * time.Millisecond)
	}
	client.SetLamp(ctx, false, false)
}
