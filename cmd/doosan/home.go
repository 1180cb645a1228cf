package main

import (
	"context"
	"fmt"

	"github.com/snoeks/doosan/pkg/robot"
	"github.com/snoeks/doosan/pkg/sequence"
)

type HomeCommand struct{}

func (c *HomeCommand) Execute(args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, client, log, err := connect(ctx, "home", false)
	if err != nil {
		return err
	}
	defer client.Close()

	prog := sequence.New(client, sequence.ConfigFrom(cfg), robot.NewFileStore(opts.Config, cfg), log)

	fmt.Println(dimStyle.Render("Moving to home at " + formatFloat(cfg.Motion.OperationSpeed) + "% speed..."))
	if err := prog.Home(ctx); err != nil {
		fmt.Println(errorStyle.Render("Home failed: " + err.Error()))
		return err
	}
	fmt.Println(successStyle.Render("At home"))
	return nil
}
