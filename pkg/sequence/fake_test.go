package sequence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/snoeks/doosan/pkg/robot"
)

// fakeClient records every call and answers from scripted state.
type fakeClient struct {
	mu sync.Mutex

	calls   []string
	moves   []robot.Pose
	joints  []robot.JointAngles
	outputs map[int][]bool
	inputs  map[int]bool
	lamps   [][2]bool
	speeds  []float64
	stops   int
	waits   int

	forces   []float64
	forceErr map[int]error
	poses    []robot.Pose
	inputErr error

	// moveErr fails the n-th motion command (1-based) and waitErr the n-th
	// wait. A failed move is not recorded in moves or joints.
	moveErr  map[int]error
	waitErr  map[int]error
	attempts int

	// hooks run without the lock held
	onMove  func(n int)
	onForce func(n int)

	forceReads int
}

var _ robot.MotionClient = (*fakeClient)(nil)

func newFakeClient() *fakeClient {
	return &fakeClient{
		outputs:  make(map[int][]bool),
		inputs:   make(map[int]bool),
		forceErr: make(map[int]error),
		moveErr:  make(map[int]error),
		waitErr:  make(map[int]error),
	}
}

func (f *fakeClient) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeClient) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func (f *fakeClient) motionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.moves) + len(f.joints)
}

func (f *fakeClient) move(pose robot.Pose) {
	f.mu.Lock()
	f.moves = append(f.moves, pose)
	n := len(f.moves) + len(f.joints)
	hook := f.onMove
	f.mu.Unlock()
	if hook != nil {
		hook(n)
	}
}

// attempt records a motion command and returns its scripted error.
// Callers hold f.mu.
func (f *fakeClient) attempt(format string, args ...any) error {
	f.record(format, args...)
	f.attempts++
	return f.moveErr[f.attempts]
}

func (f *fakeClient) MoveLinear(_ context.Context, pose robot.Pose, vel, acc float64) error {
	f.mu.Lock()
	err := f.attempt("amovel %v %g %g", pose, vel, acc)
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.move(pose)
	return nil
}

func (f *fakeClient) MoveJointPose(_ context.Context, pose robot.Pose, vel, acc float64) error {
	f.mu.Lock()
	err := f.attempt("amovejx %v %g %g", pose, vel, acc)
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.move(pose)
	return nil
}

func (f *fakeClient) MoveJoint(_ context.Context, joints robot.JointAngles, vel, acc float64) error {
	f.mu.Lock()
	if err := f.attempt("amovej %v %g %g", joints, vel, acc); err != nil {
		f.mu.Unlock()
		return err
	}
	f.joints = append(f.joints, joints)
	n := len(f.moves) + len(f.joints)
	hook := f.onMove
	f.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return nil
}

func (f *fakeClient) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("stop")
	f.stops++
	return nil
}

func (f *fakeClient) WaitUntilStopped(context.Context, time.Duration, time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits++
	return f.waitErr[f.waits]
}

func (f *fakeClient) SetOperationSpeed(_ context.Context, percent float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("change_operation_speed %g", percent)
	f.speeds = append(f.speeds, percent)
	return nil
}

func (f *fakeClient) SetLinearVelocity(_ context.Context, v float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("set_velx %g", v)
	return nil
}

func (f *fakeClient) SetLinearAcceleration(_ context.Context, a float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("set_accx %g", a)
	return nil
}

func (f *fakeClient) ReadDigitalInput(_ context.Context, index int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inputErr != nil {
		return false, f.inputErr
	}
	return f.inputs[index], nil
}

func (f *fakeClient) setInput(index int, on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs[index] = on
}

func (f *fakeClient) SetDigitalOutput(_ context.Context, index int, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("digout %d %v", index, on)
	f.outputs[index] = append(f.outputs[index], on)
	return nil
}

func (f *fakeClient) SetAnalogOutput(context.Context, int, float64) error { return nil }

func (f *fakeClient) ReadAnalogInput(context.Context, int) (float64, error) { return 0, nil }

func (f *fakeClient) ReadToolForce(context.Context, int) (float64, error) {
	f.mu.Lock()
	n := f.forceReads
	f.forceReads++
	var v float64
	if n < len(f.forces) {
		v = f.forces[n]
	}
	err := f.forceErr[n]
	hook := f.onForce
	f.mu.Unlock()

	if hook != nil {
		hook(n + 1)
	}
	return v, err
}

func (f *fakeClient) ReadToolPose(context.Context) (robot.Pose, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.poses) == 0 {
		return robot.Pose{}, fmt.Errorf("no pose scripted")
	}
	p := f.poses[0]
	if len(f.poses) > 1 {
		f.poses = f.poses[1:]
	}
	return p, nil
}

func (f *fakeClient) SetLamp(_ context.Context, ready, moving bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lamps = append(f.lamps, [2]bool{ready, moving})
	return nil
}

type fakeStore struct {
	saved []robot.MotionParameters
	err   error
}

func (s *fakeStore) SaveParameters(p robot.MotionParameters) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, p)
	return nil
}
