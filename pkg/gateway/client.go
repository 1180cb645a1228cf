package gateway

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/snoeks/doosan/pkg/robot"
)

// Options configures a Client.
type Options struct {
	Addr         string
	DialTimeout  time.Duration
	IOTimeout    time.Duration
	PollInterval time.Duration

	// Digital outputs driving the ready and moving lamps.
	LampReady  int
	LampMoving int

	Logger logrus.FieldLogger
}

// OptionsFromConfig derives client options from the cell configuration.
func OptionsFromConfig(cfg *robot.Config, log logrus.FieldLogger) Options {
	return Options{
		Addr:         cfg.Addr(),
		DialTimeout:  cfg.Timing.DialTimeout.D(),
		IOTimeout:    cfg.Timing.IOTimeout.D(),
		PollInterval: cfg.Timing.PollInterval.D(),
		LampReady:    cfg.Lamp.Ready,
		LampMoving:   cfg.Lamp.Moving,
		Logger:       log,
	}
}

// Client is the command surface of the robot gateway. All methods are safe
// for concurrent use; wire exchanges are serialized by the underlying Conn.
type Client struct {
	conn   *Conn
	poller *Poller
	opts   Options
	log    logrus.FieldLogger
}

var _ robot.MotionClient = (*Client)(nil)

// New returns an unconnected client.
func New(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.IOTimeout <= 0 {
		opts.IOTimeout = 5 * time.Second
	}
	log := opts.Logger.WithField("component", "gateway")
	conn := NewConn(opts.Addr, opts.DialTimeout, opts.IOTimeout, log)
	return &Client{
		conn:   conn,
		poller: NewPoller(conn, opts.PollInterval, log.WithField("component", "poller")),
		opts:   opts,
		log:    log,
	}
}

// Connect opens the socket if it is not already open.
func (c *Client) Connect(ctx context.Context) error {
	return c.conn.Connect(ctx)
}

// Close stops the status poller, then sends quit and closes the socket.
func (c *Client) Close() error {
	c.poller.Stop()
	return c.conn.Close()
}

// State returns the connection state.
func (c *Client) State() State { return c.conn.State() }

// Addr returns the gateway address.
func (c *Client) Addr() string { return c.conn.Addr() }

// Poller returns the background status poller. It is not started by Connect.
func (c *Client) Poller() *Poller { return c.poller }

// StartPoller starts the status poller. It stops on Close or when ctx ends.
func (c *Client) StartPoller(ctx context.Context) {
	c.poller.Start(ctx)
}

// StopPoller stops the status poller and waits briefly for it to exit.
func (c *Client) StopPoller() { c.poller.Stop() }

// LastStatus returns the poller's cached status without a round trip.
func (c *Client) LastStatus() (Status, bool) { return c.poller.Latest() }

// PollError returns the poller's sticky error, nil after a successful poll.
func (c *Client) PollError() error { return c.poller.LastError() }

// Raw sends cmd and returns the reply without checking it.
func (c *Client) Raw(ctx context.Context, cmd Command) (Response, error) {
	return c.conn.Send(ctx, cmd, true)
}

func (c *Client) ack(ctx context.Context, cmd Command) error {
	resp, err := c.conn.Send(ctx, cmd, true)
	if err != nil {
		return err
	}
	return resp.Check(cmd.Name)
}

func moveArgs(target [6]float64, vel, acc float64) []any {
	args := make([]any, 0, 8)
	for _, v := range target {
		args = append(args, v)
	}
	return append(args, vel, acc)
}

// MoveLinear issues amovel to pose.
func (c *Client) MoveLinear(ctx context.Context, pose robot.Pose, vel, acc float64) error {
	c.log.WithFields(logrus.Fields{"pose": pose.String(), "vel": vel, "acc": acc}).Debug("move linear")
	return c.ack(ctx, NewCommand(CmdMoveLinear, moveArgs(pose, vel, acc)...))
}

// MoveJointPose issues amovejx: a joint-interpolated move to a Cartesian pose.
func (c *Client) MoveJointPose(ctx context.Context, pose robot.Pose, vel, acc float64) error {
	c.log.WithFields(logrus.Fields{"pose": pose.String(), "vel": vel, "acc": acc}).Debug("move joint to pose")
	return c.ack(ctx, NewCommand(CmdMoveJointPose, moveArgs(pose, vel, acc)...))
}

// MoveJoint issues amovej to the given joint angles.
func (c *Client) MoveJoint(ctx context.Context, joints robot.JointAngles, vel, acc float64) error {
	c.log.WithFields(logrus.Fields{"joints": joints, "vel": vel, "acc": acc}).Debug("move joint")
	return c.ack(ctx, NewCommand(CmdMoveJoint, moveArgs(joints, vel, acc)...))
}

// Stop requests a soft stop. It is always permitted.
func (c *Client) Stop(ctx context.Context) error {
	c.log.Debug("stop")
	return c.ack(ctx, NewCommand(CmdStop))
}

func (c *Client) SetOperationSpeed(ctx context.Context, percent float64) error {
	return c.ack(ctx, NewCommand(CmdOperationSpeed, percent))
}

func (c *Client) SetLinearVelocity(ctx context.Context, v float64) error {
	return c.ack(ctx, NewCommand(CmdSetVelX, v))
}

func (c *Client) SetLinearAcceleration(ctx context.Context, a float64) error {
	return c.ack(ctx, NewCommand(CmdSetAccX, a))
}

// SetDigitalOutput drives digital output index.
func (c *Client) SetDigitalOutput(ctx context.Context, index int, on bool) error {
	c.log.WithFields(logrus.Fields{"index": index, "on": on}).Debug("digital out")
	return c.ack(ctx, NewCommand(CmdDigitalOut, index, on))
}

// ReadDigitalInput returns the level of digital input index.
func (c *Client) ReadDigitalInput(ctx context.Context, index int) (bool, error) {
	resp, err := c.conn.Send(ctx, NewCommand(CmdDigitalIn, index), true)
	if err != nil {
		return false, err
	}
	return resp.Flag(CmdDigitalIn)
}

func (c *Client) SetAnalogOutput(ctx context.Context, channel int, value float64) error {
	return c.ack(ctx, NewCommand(CmdAnalogOut, channel, value))
}

func (c *Client) ReadAnalogInput(ctx context.Context, channel int) (float64, error) {
	resp, err := c.conn.Send(ctx, NewCommand(CmdAnalogIn, channel), true)
	if err != nil {
		return 0, err
	}
	return resp.Float(CmdAnalogIn)
}

// ReadToolForce returns the non-negative tool force magnitude in refFrame.
func (c *Client) ReadToolForce(ctx context.Context, refFrame int) (float64, error) {
	resp, err := c.conn.Send(ctx, NewCommand(CmdToolForce, refFrame), true)
	if err != nil {
		return 0, err
	}
	return resp.Force(CmdToolForce)
}

// ReadToolPose returns the actual TCP pose in the base frame.
func (c *Client) ReadToolPose(ctx context.Context) (robot.Pose, error) {
	resp, err := c.conn.Send(ctx, NewCommand(CmdToolPose), true)
	if err != nil {
		return robot.Pose{}, err
	}
	return resp.Pose(CmdToolPose)
}

// CheckMotion queries the controller directly, bypassing the poller cache.
func (c *Client) CheckMotion(ctx context.Context) (bool, error) {
	resp, err := c.conn.Send(ctx, NewCommand(CmdCheckMotion), true)
	if err != nil {
		return false, err
	}
	return resp.Flag(CmdCheckMotion)
}

// WaitUntilStopped polls check_motion every poll until the robot reports
// no motion. A timeout of zero or less waits until ctx is done.
func (c *Client) WaitUntilStopped(ctx context.Context, poll, timeout time.Duration) error {
	start := time.Now()
	for {
		moving, err := c.CheckMotion(ctx)
		if err != nil {
			return err
		}
		if !moving {
			return nil
		}
		if timeout > 0 && time.Since(start) >= timeout {
			return fmt.Errorf("%w after %s", ErrMotionTimeout, timeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}

// SetLamp drives the ready and moving lamps so that at most one is lit.
// Both are cleared first; ready wins if both are requested.
func (c *Client) SetLamp(ctx context.Context, ready, moving bool) error {
	if err := c.SetDigitalOutput(ctx, c.opts.LampReady, false); err != nil {
		return err
	}
	if err := c.SetDigitalOutput(ctx, c.opts.LampMoving, false); err != nil {
		return err
	}
	switch {
	case ready:
		return c.SetDigitalOutput(ctx, c.opts.LampReady, true)
	case moving:
		return c.SetDigitalOutput(ctx, c.opts.LampMoving, true)
	}
	return nil
}

// OutputsOff clears digital outputs 1..count.
func (c *Client) OutputsOff(ctx context.Context, count int) error {
	for i := 1; i <= count; i++ {
		if err := c.SetDigitalOutput(ctx, i, false); err != nil {
			return fmt.Errorf("clear output %d: %w", i, err)
		}
	}
	return nil
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
