package sequence

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// WaypointHome is the park position every sequence starts and ends at.
const WaypointHome = "home"

// Step is one unit of a sequence. The stop flag is checked before every step.
type Step struct {
	Name string

	// Poses and Joints list waypoints that must exist before the run starts.
	// Joints entries may also be satisfied by a pose of the same name.
	Poses  []string
	Joints []string

	Run func(ctx context.Context) error
}

// execute runs steps in order and returns how many completed.
func (p *Program) execute(ctx context.Context, runID uuid.UUID, sel Selection, steps []Step) (int, error) {
	for i, step := range steps {
		if p.stop.Load() {
			return i, ErrStopped
		}
		if err := ctx.Err(); err != nil {
			return i, err
		}

		p.setState(Update{RunID: runID, Selection: sel, State: Running, Step: step.Name, Index: i + 1, Total: len(steps)})
		p.log.WithFields(logrus.Fields{"run_id": runID, "step": step.Name, "index": i + 1}).Debug("step")
		p.logf("%s", step.Name)

		if err := step.Run(ctx); err != nil {
			return i, fmt.Errorf("step %q: %w", step.Name, err)
		}
	}
	return len(steps), nil
}

// validate checks every waypoint the steps need is configured.
func (p *Program) validate(steps []Step) error {
	missing := map[string]bool{}
	for _, s := range steps {
		for _, name := range s.Poses {
			if _, ok := p.cfg.Waypoints.Pose(name); !ok {
				missing["p_"+name] = true
			}
		}
		for _, name := range s.Joints {
			if !p.cfg.Waypoints.Has(name) {
				missing["pj_"+name] = true
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(missing))
	for n := range missing {
		names = append(names, n)
	}
	sort.Strings(names)
	return fmt.Errorf("%w: %v", ErrUnknownWaypoint, names)
}

func (p *Program) wait(ctx context.Context) error {
	return p.client.WaitUntilStopped(ctx, p.cfg.WaitPoll, p.cfg.WaitTimeout)
}

// moveL moves linearly to a pose waypoint and waits for it to settle.
func (p *Program) moveL(name string) Step {
	return Step{
		Name:  "move " + name,
		Poses: []string{name},
		Run: func(ctx context.Context) error {
			pose, ok := p.cfg.Waypoints.Pose(name)
			if !ok {
				return fmt.Errorf("unknown pose %q", name)
			}
			params := p.Parameters()
			if err := p.client.MoveLinear(ctx, pose, params.Velocity, params.Acceleration); err != nil {
				return err
			}
			return p.wait(ctx)
		},
	}
}

// moveJ moves in joint space to a waypoint, preferring joint angles over a pose.
func (p *Program) moveJ(name string) Step {
	return Step{
		Name:   "move " + name,
		Joints: []string{name},
		Run: func(ctx context.Context) error {
			params := p.Parameters()
			var err error
			if joints, ok := p.cfg.Waypoints.Joint(name); ok {
				err = p.client.MoveJoint(ctx, joints, params.Velocity, params.Acceleration)
			} else if pose, ok := p.cfg.Waypoints.Pose(name); ok {
				err = p.client.MoveJointPose(ctx, pose, params.Velocity, params.Acceleration)
			} else {
				return fmt.Errorf("unknown waypoint %q", name)
			}
			if err != nil {
				return err
			}
			return p.wait(ctx)
		},
	}
}

// output drives a digital output.
func (p *Program) output(label string, index int, on bool) Step {
	state := "off"
	if on {
		state = "on"
	}
	return Step{
		Name: fmt.Sprintf("%s %s", label, state),
		Run: func(ctx context.Context) error {
			return p.client.SetDigitalOutput(ctx, index, on)
		},
	}
}

// speed overrides the operation speed for the following moves.
func (p *Program) speed(percent float64) Step {
	return Step{
		Name: fmt.Sprintf("operation speed %.0f%%", percent),
		Run: func(ctx context.Context) error {
			return p.client.SetOperationSpeed(ctx, percent)
		},
	}
}

// restoreSpeed sets the operation speed back to the configured value.
func (p *Program) restoreSpeed() Step {
	return Step{
		Name: "restore operation speed",
		Run: func(ctx context.Context) error {
			return p.client.SetOperationSpeed(ctx, p.Parameters().OperationSpeed)
		},
	}
}

// sensor runs a force-triggered move from the base waypoint.
func (p *Program) sensor(base string, m SensorMove) Step {
	return Step{
		Name:  "sensor move from " + base,
		Poses: []string{base},
		Run: func(ctx context.Context) error {
			pose, ok := p.cfg.Waypoints.Pose(base)
			if !ok {
				return fmt.Errorf("unknown pose %q", base)
			}
			m.Base = pose
			_, err := p.SensorMove(ctx, m)
			return err
		},
	}
}
