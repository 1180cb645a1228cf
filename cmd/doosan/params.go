package main

import (
	"context"
	"fmt"

	"github.com/snoeks/doosan/pkg/robot"
	"github.com/snoeks/doosan/pkg/sequence"
)

// ParamsCommand fields are pointers so an explicit zero is told apart from
// an absent flag.
type ParamsCommand struct {
	Speed        *float64 `long:"speed" description:"Operation speed in percent"`
	Velocity     *float64 `long:"velocity" description:"Linear velocity in mm/s"`
	Acceleration *float64 `long:"acceleration" description:"Linear acceleration in mm/s²"`
}

func (c *ParamsCommand) changed() bool {
	return c.Speed != nil || c.Velocity != nil || c.Acceleration != nil
}

// apply overrides the given parameters with the flags that were set.
func (c *ParamsCommand) apply(p robot.MotionParameters) robot.MotionParameters {
	if c.Speed != nil {
		p.OperationSpeed = *c.Speed
	}
	if c.Velocity != nil {
		p.Velocity = *c.Velocity
	}
	if c.Acceleration != nil {
		p.Acceleration = *c.Acceleration
	}
	return p
}

func paramsTable(p robot.MotionParameters) string {
	return renderTable([]string{"Parameter", "Value"}, [][]string{
		{"Operation speed", formatFloat(p.OperationSpeed) + " %"},
		{"Linear velocity", formatFloat(p.Velocity) + " mm/s"},
		{"Linear acceleration", formatFloat(p.Acceleration) + " mm/s²"},
	})
}

func (c *ParamsCommand) Execute(args []string) error {
	if !c.changed() {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Println(paramsTable(cfg.Motion))
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, client, log, err := connect(ctx, "params", false)
	if err != nil {
		return err
	}
	defer client.Close()

	prog := sequence.New(client, sequence.ConfigFrom(cfg), robot.NewFileStore(opts.Config, cfg), log)

	params := c.apply(prog.Parameters())

	if err := prog.UpdateParameters(ctx, params); err != nil {
		return err
	}
	fmt.Println(paramsTable(params))
	fmt.Println(successStyle.Render("Saved to " + opts.Config + " and applied"))
	return nil
}
