// Package simulator emulates the robot-side gateway script for tests and
// bench work without a controller.
package simulator

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/snoeks/doosan/pkg/gateway"
	"github.com/snoeks/doosan/pkg/robot"
)

// Responder may answer a command instead of the simulated robot.
// Returning handled=false falls through to the default behavior.
type Responder func(cmd gateway.Command) (reply string, handled bool)

// Options configures a simulated robot.
type Options struct {
	// Pose is the initial TCP pose.
	Pose robot.Pose

	// Settle is how long every move takes. Zero completes moves instantly.
	Settle time.Duration

	// Contact enables a simulated surface: force rises with penetration
	// below ContactZ at Stiffness newtons per millimeter.
	Contact   bool
	ContactZ  float64
	Stiffness float64

	// Outputs and Inputs bound the valid digital I/O indices (1-based).
	Outputs int
	Inputs  int
}

type motion struct {
	from, to robot.Pose
	start    time.Time
	dur      time.Duration
}

// Robot is an in-memory controller answering protocol lines.
type Robot struct {
	opts Options
	now  func() time.Time

	mu         sync.Mutex
	pose       robot.Pose
	joints     robot.JointAngles
	move       *motion
	motionFeed []bool
	forceFeed  []float64
	outputs    map[int]bool
	inputs     map[int]bool
	analogOut  map[int]float64
	analogIn   map[int]float64
	speed      float64
	velx, accx float64
	stops      int
	responder  Responder
}

// NewRobot returns a robot at rest at opts.Pose.
func NewRobot(opts Options) *Robot {
	if opts.Outputs <= 0 {
		opts.Outputs = 16
	}
	if opts.Inputs <= 0 {
		opts.Inputs = 16
	}
	return &Robot{
		opts:      opts,
		now:       time.Now,
		pose:      opts.Pose,
		outputs:   make(map[int]bool),
		inputs:    make(map[int]bool),
		analogOut: make(map[int]float64),
		analogIn:  make(map[int]float64),
		speed:     100,
	}
}

// SetResponder installs an override consulted before every command.
func (r *Robot) SetResponder(fn Responder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responder = fn
}

// ScriptMotion queues check_motion answers. Once drained, answers follow
// the simulated move again.
func (r *Robot) ScriptMotion(moving ...bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.motionFeed = append(r.motionFeed, moving...)
}

// ScriptForce queues toolforce answers. Once drained, force follows the
// contact model, or zero without one.
func (r *Robot) ScriptForce(values ...float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forceFeed = append(r.forceFeed, values...)
}

// SetInput sets digital input index.
func (r *Robot) SetInput(index int, on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs[index] = on
}

// SetAnalogInput sets analog input channel.
func (r *Robot) SetAnalogInput(channel int, v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analogIn[channel] = v
}

// Output returns the level of digital output index.
func (r *Robot) Output(index int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outputs[index]
}

// AnalogOutput returns the value of analog output channel.
func (r *Robot) AnalogOutput(channel int) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.analogOut[channel]
}

// Pose returns the current simulated TCP pose.
func (r *Robot) Pose() robot.Pose {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, _ := r.advance()
	return p
}

// Moving reports whether a move is in progress.
func (r *Robot) Moving() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, moving := r.advance()
	return moving
}

// Stops returns how many stop commands were handled.
func (r *Robot) Stops() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stops
}

// Parameters returns the last operation speed, velx and accx received.
func (r *Robot) Parameters() robot.MotionParameters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return robot.MotionParameters{OperationSpeed: r.speed, Velocity: r.velx, Acceleration: r.accx}
}

// Halt stops any move in progress, as the controller does on disconnect.
func (r *Robot) Halt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.halt()
}

// advance settles a finished move and returns the interpolated pose.
// Callers hold mu.
func (r *Robot) advance() (robot.Pose, bool) {
	if r.move == nil {
		return r.pose, false
	}
	elapsed := r.now().Sub(r.move.start)
	if elapsed >= r.move.dur {
		r.pose = r.move.to
		r.move = nil
		return r.pose, false
	}
	frac := float64(elapsed) / float64(r.move.dur)
	var p robot.Pose
	for i := range p {
		p[i] = r.move.from[i] + (r.move.to[i]-r.move.from[i])*frac
	}
	return p, true
}

func (r *Robot) startMove(target robot.Pose) {
	from, _ := r.advance()
	if r.opts.Settle <= 0 {
		r.pose = target
		r.move = nil
		return
	}
	r.pose = from
	r.move = &motion{from: from, to: target, start: r.now(), dur: r.opts.Settle}
}

func (r *Robot) halt() {
	p, _ := r.advance()
	r.pose = p
	r.move = nil
}

func (r *Robot) force() float64 {
	if len(r.forceFeed) > 0 {
		f := r.forceFeed[0]
		r.forceFeed = r.forceFeed[1:]
		return f
	}
	if !r.opts.Contact {
		return 0
	}
	p, _ := r.advance()
	if depth := r.opts.ContactZ - p.Z(); depth > 0 {
		return depth * r.opts.Stiffness
	}
	return 0
}

// Handle answers one command line. The reply carries its own terminator;
// toolforce replies have none, like the controller script.
func (r *Robot) Handle(line string) string {
	cmd, err := gateway.ParseCommand(line)
	if err != nil {
		return ""
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.responder != nil {
		if reply, ok := r.responder(cmd); ok {
			return reply
		}
	}

	switch cmd.Name {
	case gateway.CmdMoveLinear, gateway.CmdMoveJointPose:
		vals, ok := r.args(cmd, 8)
		if !ok {
			return fmt.Sprintf("ERR %s needs 8 args\n", cmd.Name)
		}
		if vals == nil {
			return fmt.Sprintf("ERR %s invalid args\n", cmd.Name)
		}
		r.velx, r.accx = vals[6], vals[7]
		r.startMove(robot.Pose(vals[:6]))
		return fmt.Sprintf("OK %s\n", cmd.Name)

	case gateway.CmdMoveJoint:
		vals, ok := r.args(cmd, 8)
		if !ok {
			return "ERR amovej needs 8 args\n"
		}
		if vals == nil {
			return "ERR amovej invalid args\n"
		}
		r.joints = robot.JointAngles(vals[:6])
		// No kinematics: joint moves only occupy the controller.
		cur, _ := r.advance()
		r.startMove(cur)
		return "OK amovej\n"

	case gateway.CmdStop:
		r.halt()
		r.stops++
		return "OK stop\n"

	case gateway.CmdOperationSpeed, gateway.CmdSetVelX, gateway.CmdSetAccX, "set_velj", "set_accj":
		vals, ok := r.args(cmd, 1)
		if !ok {
			return fmt.Sprintf("ERR %s needs 1 arg\n", cmd.Name)
		}
		if vals == nil {
			return fmt.Sprintf("ERR %s invalid args\n", cmd.Name)
		}
		switch cmd.Name {
		case gateway.CmdOperationSpeed:
			r.speed = vals[0]
		case gateway.CmdSetVelX:
			r.velx = vals[0]
		case gateway.CmdSetAccX:
			r.accx = vals[0]
		}
		return fmt.Sprintf("OK %s\n", cmd.Name)

	case gateway.CmdDigitalOut:
		if len(cmd.Args) != 2 {
			return "ERR digout needs 2 args\n"
		}
		idx, err1 := strconv.Atoi(cmd.Args[0])
		val, err2 := strconv.Atoi(cmd.Args[1])
		if err1 != nil || err2 != nil || idx < 1 || idx > r.opts.Outputs || (val != 0 && val != 1) {
			return "ERR digout invalid args\n"
		}
		r.outputs[idx] = val == 1
		return "OK digout\n"

	case gateway.CmdDigitalIn:
		if len(cmd.Args) != 1 {
			return "ERR digin needs 1 arg\n"
		}
		idx, err := strconv.Atoi(cmd.Args[0])
		if err != nil || idx < 1 || idx > r.opts.Inputs {
			return "ERR digin invalid args\n"
		}
		return fmt.Sprintf("OK digin %d\n", bit(r.inputs[idx]))

	case gateway.CmdAnalogOut:
		if len(cmd.Args) != 2 {
			return "ERR anout needs 2 args\n"
		}
		ch, err1 := strconv.Atoi(cmd.Args[0])
		v, err2 := strconv.ParseFloat(cmd.Args[1], 64)
		if err1 != nil || err2 != nil {
			return "ERR anout invalid args\n"
		}
		r.analogOut[ch] = v
		return "OK anout\n"

	case gateway.CmdAnalogIn:
		if len(cmd.Args) != 1 {
			return "ERR anin needs 1 arg\n"
		}
		ch, err := strconv.Atoi(cmd.Args[0])
		if err != nil {
			return "ERR anin invalid args\n"
		}
		return fmt.Sprintf("OK anin %s\n", strconv.FormatFloat(r.analogIn[ch], 'f', -1, 64))

	case gateway.CmdCheckMotion:
		var moving bool
		if len(r.motionFeed) > 0 {
			moving = r.motionFeed[0]
			r.motionFeed = r.motionFeed[1:]
		} else {
			_, moving = r.advance()
		}
		return fmt.Sprintf("OK check_motion %d\n", bit(moving))

	case gateway.CmdToolForce:
		if len(cmd.Args) != 1 {
			return "ERR toolforce needs 1 arg"
		}
		if _, err := strconv.Atoi(cmd.Args[0]); err != nil {
			return "ERR toolforce invalid args"
		}
		return "OK toolforce " + strconv.FormatFloat(r.force(), 'f', -1, 64)

	case gateway.CmdToolPose:
		if len(cmd.Args) != 0 {
			return "ERR tcppose takes no args\n"
		}
		p, _ := r.advance()
		return fmt.Sprintf("OK tcppose %.3f %.3f %.3f %.3f %.3f %.3f\n", p[0], p[1], p[2], p[3], p[4], p[5])

	case gateway.CmdQuit:
		r.halt()
		return "OK bye then\n"
	}
	return "ERR unknown command\n"
}

// args parses exactly n float arguments. ok is false on a count mismatch;
// vals is nil when a value does not parse.
func (r *Robot) args(cmd gateway.Command, n int) (vals []float64, ok bool) {
	if len(cmd.Args) != n {
		return nil, false
	}
	vals, err := cmd.Floats()
	if err != nil {
		return nil, true
	}
	return vals, true
}

func bit(b bool) int {
	if b {
		return 1
	}
	return 0
}
