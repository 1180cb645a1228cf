package robot

import (
	"context"
	"time"
)

// Mover issues motion commands. Moves are acknowledged immediately and
// executed asynchronously by the controller.
type Mover interface {
	// MoveLinear moves the TCP in a straight line to pose.
	MoveLinear(ctx context.Context, pose Pose, vel, acc float64) error

	// MoveJointPose moves to a Cartesian pose with joint interpolation.
	MoveJointPose(ctx context.Context, pose Pose, vel, acc float64) error

	// MoveJoint moves in joint space to the given angles.
	MoveJoint(ctx context.Context, joints JointAngles, vel, acc float64) error

	// Stop requests a soft stop of the current motion.
	Stop(ctx context.Context) error

	// WaitUntilStopped blocks until the controller reports no motion.
	WaitUntilStopped(ctx context.Context, poll, timeout time.Duration) error
}

// ParameterSetter pushes motion parameters to the controller.
type ParameterSetter interface {
	SetOperationSpeed(ctx context.Context, percent float64) error
	SetLinearVelocity(ctx context.Context, v float64) error
	SetLinearAcceleration(ctx context.Context, a float64) error
}

// DigitalReader reads digital inputs.
type DigitalReader interface {
	ReadDigitalInput(ctx context.Context, index int) (bool, error)
}

// DigitalIO reads and writes digital signals.
type DigitalIO interface {
	DigitalReader
	SetDigitalOutput(ctx context.Context, index int, on bool) error
}

// AnalogIO reads and writes analog channels.
type AnalogIO interface {
	SetAnalogOutput(ctx context.Context, channel int, value float64) error
	ReadAnalogInput(ctx context.Context, channel int) (float64, error)
}

// Telemetry queries live sensor state.
type Telemetry interface {
	// ReadToolForce returns the magnitude of the tool force in newtons.
	ReadToolForce(ctx context.Context, refFrame int) (float64, error)

	// ReadToolPose returns the actual TCP pose.
	ReadToolPose(ctx context.Context) (Pose, error)
}

// MotionClient is everything a sequence needs from the arm.
type MotionClient interface {
	Mover
	ParameterSetter
	DigitalIO
	AnalogIO
	Telemetry
}

// Lamp drives the cell's stack light. Implementations assert at most one lamp.
type Lamp interface {
	SetLamp(ctx context.Context, ready, moving bool) error
}

// ApplyParameters pushes all three motion parameters.
func ApplyParameters(ctx context.Context, s ParameterSetter, p MotionParameters) error {
	if err := s.SetOperationSpeed(ctx, p.OperationSpeed); err != nil {
		return err
	}
	if err := s.SetLinearVelocity(ctx, p.Velocity); err != nil {
		return err
	}
	return s.SetLinearAcceleration(ctx, p.Acceleration)
}
