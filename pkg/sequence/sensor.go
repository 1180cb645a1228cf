package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/snoeks/doosan/pkg/robot"
)

// Approach defaults for sensor moves: slow enough to stop on contact.
const (
	DefaultApproachVelocity     = 10
	DefaultApproachAcceleration = 50
)

// SensorMove describes a force-monitored approach from Base along Direction.
type SensorMove struct {
	Base        robot.Pose
	Direction   robot.Direction
	PreDistance float64
	ForceLimit  float64
	RefFrame    int

	// ReturnDirection and ReturnDistance place the retreat relative to the
	// measured contact pose. Empty ReturnDirection retreats to Base.
	ReturnDirection robot.Direction
	ReturnDistance  float64

	// Lift backs off this many millimeters against Direction before the
	// retreat. Zero skips it.
	Lift float64

	// Output is asserted on contact. Zero asserts nothing.
	Output int

	ApproachVelocity     float64
	ApproachAcceleration float64

	// SamplePeriod paces force reads. Zero reads back to back.
	SamplePeriod time.Duration

	// MonitorTimeout ends monitoring without contact. Zero monitors until stopped.
	MonitorTimeout time.Duration
}

// SensorOutcome reports what a sensor move did.
type SensorOutcome struct {
	Triggered bool
	Force     float64
	Samples   int
	// Contact is the pose measured when the force limit was reached.
	Contact robot.Pose
	// Lifted is the pose measured after the lift, zero when Lift is not set.
	// The retreat is taken from it.
	Lifted  robot.Pose
	Retreat robot.Pose
}

// SensorMove approaches until the tool force reaches the limit, then asserts
// the output and retreats from the measured pose. Without contact it returns
// to Base. A failed force read stops the robot and fails with ErrSensorFault.
func (p *Program) SensorMove(ctx context.Context, m SensorMove) (SensorOutcome, error) {
	var out SensorOutcome
	if !m.Direction.Valid() {
		return out, fmt.Errorf("sensor move: invalid direction %q", m.Direction)
	}
	if m.ReturnDirection != "" && !m.ReturnDirection.Valid() {
		return out, fmt.Errorf("sensor move: invalid return direction %q", m.ReturnDirection)
	}
	if m.ApproachVelocity <= 0 {
		m.ApproachVelocity = DefaultApproachVelocity
	}
	if m.ApproachAcceleration <= 0 {
		m.ApproachAcceleration = DefaultApproachAcceleration
	}

	log := p.log.WithFields(logrus.Fields{"direction": m.Direction, "limit": m.ForceLimit})

	target := m.Base.Translate(m.Direction, m.PreDistance)
	p.logf("Sensor move: approaching %s", target)
	if err := p.client.MoveLinear(ctx, target, m.ApproachVelocity, m.ApproachAcceleration); err != nil {
		return out, err
	}

	p.logf("Sensor move: force monitor started, limit %.1f N", m.ForceLimit)
	var deadline time.Time
	if m.MonitorTimeout > 0 {
		deadline = time.Now().Add(m.MonitorTimeout)
	}

	for !p.stop.Load() {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			log.Warn("no contact before monitor timeout")
			p.logf("Sensor move: no contact within %s", m.MonitorTimeout)
			if err := p.wait(ctx); err != nil {
				return out, err
			}
			break
		}

		force, err := p.client.ReadToolForce(ctx, m.RefFrame)
		out.Samples++
		if err != nil {
			p.stop.Store(true)
			log.WithError(err).Error("force read failed, stopping")
			p.logf("Sensor move: force read failed: %v", err)
			if serr := p.client.Stop(ctx); serr != nil {
				log.WithError(serr).Error("stop after force fault failed")
			}
			return out, fmt.Errorf("%w: read tool force: %v", ErrSensorFault, err)
		}
		out.Force = force

		if force >= m.ForceLimit {
			p.logf("Sensor move: force limit reached (%.2f N), stopping", force)
			if err := p.client.Stop(ctx); err != nil {
				return out, err
			}
			out.Triggered = true
			break
		}

		if m.SamplePeriod > 0 {
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case <-time.After(m.SamplePeriod):
			}
		}
	}

	retreat := m.Base
	if out.Triggered {
		if err := p.wait(ctx); err != nil {
			return out, err
		}
		if m.Output > 0 {
			if err := p.client.SetDigitalOutput(ctx, m.Output, true); err != nil {
				return out, err
			}
			p.logf("DO%d on", m.Output)
		}

		actual, err := p.readPose(ctx)
		if err != nil {
			return out, err
		}
		out.Contact = actual
		log.WithFields(logrus.Fields{"contact": actual.String(), "samples": out.Samples}).Info("contact")

		if m.Lift > 0 {
			lifted := actual.Translate(m.Direction.Opposite(), m.Lift)
			if err := p.client.MoveLinear(ctx, lifted, m.ApproachVelocity, m.ApproachAcceleration); err != nil {
				return out, err
			}
			if err := p.wait(ctx); err != nil {
				return out, err
			}
			if actual, err = p.readPose(ctx); err != nil {
				return out, err
			}
			out.Lifted = actual
		}

		if m.ReturnDirection != "" {
			retreat = actual.Translate(m.ReturnDirection, m.ReturnDistance)
		}
	} else {
		p.logf("Sensor move: no contact, returning to base")
	}
	out.Retreat = retreat

	params := p.Parameters()
	if err := p.client.SetOperationSpeed(ctx, params.OperationSpeed); err != nil {
		return out, err
	}
	if err := p.client.MoveLinear(ctx, retreat, params.Velocity, params.Acceleration); err != nil {
		return out, err
	}
	return out, p.wait(ctx)
}

func (p *Program) readPose(ctx context.Context) (robot.Pose, error) {
	pose, err := p.client.ReadToolPose(ctx)
	if err != nil {
		return pose, fmt.Errorf("%w: read tool pose: %v", ErrSensorFault, err)
	}
	return pose, nil
}
