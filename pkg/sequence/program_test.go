package sequence

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snoeks/doosan/pkg/gateway"
	"github.com/snoeks/doosan/pkg/robot"
)

func testConfig() Config {
	cfg := ConfigFrom(robot.DefaultConfig())
	cfg.ConfirmPoll = time.Millisecond
	for i, name := range []string{"a", "b", "c", "d"} {
		cfg.Waypoints.Poses[name] = robot.Pose{float64(i), 0, 0, 0, 180, 0}
	}
	return cfg
}

// readyClient has the safety switch enabled and the green button pressed.
func readyClient() *fakeClient {
	f := newFakeClient()
	f.setInput(2, true)
	f.setInput(1, true)
	return f
}

func TestParseSelection(t *testing.T) {
	tests := []struct {
		in       string
		expected Selection
		ok       bool
	}{
		{"buckles", Buckles, true},
		{"Armrests", Armrests, true},
		{" seatbelts ", Seatbelts, true},
		{"all", All, true},
		{"1", Buckles, true},
		{"4", All, true},
		{"5", None, false},
		{"", None, false},
		{"doors", None, false},
	}

	for _, tt := range tests {
		got, err := ParseSelection(tt.in)
		if (err == nil) != tt.ok || got != tt.expected {
			t.Errorf("ParseSelection(%q) = %q, %v; want %q ok=%v", tt.in, got, err, tt.expected, tt.ok)
		}
	}
}

func TestRun_StopBeforeThirdStep(t *testing.T) {
	f := readyClient()
	p := New(f, testConfig(), nil, nil)
	p.Define("test", func() []Step {
		return []Step{p.moveL("a"), p.moveL("b"), p.moveL("c"), p.moveL("d")}
	})
	require.NoError(t, p.SetSelection("test"))

	f.onMove = func(n int) {
		if n == 2 {
			require.NoError(t, p.RequestStop(context.Background()))
		}
	}

	res := p.Run(context.Background())
	assert.Equal(t, Stopped, res.State)
	assert.ErrorIs(t, res.Err, ErrStopped)
	assert.Equal(t, 2, res.Steps)

	require.Len(t, f.moves, 2)
	assert.Equal(t, robot.Pose{0, 0, 0, 0, 180, 0}, f.moves[0])
	assert.Equal(t, robot.Pose{1, 0, 0, 0, 180, 0}, f.moves[1])
	assert.Equal(t, 1, f.stops)
	assert.Equal(t, Stopped, p.State())
	assert.False(t, p.Running())

	// The next run starts with a cleared stop flag.
	f.onMove = nil
	res = p.Run(context.Background())
	assert.Equal(t, Done, res.State)
	assert.Len(t, f.moves, 6)
}

func TestRun_FaultMidRun(t *testing.T) {
	remote := &gateway.RemoteCommandError{Command: gateway.CmdMoveLinear, Raw: "ERR amovel invalid args"}

	tests := []struct {
		name     string
		setup    func(f *fakeClient)
		cause    error
		steps    int
		moves    int
		attempts int
	}{
		{
			name:     "connection lost on second move",
			setup:    func(f *fakeClient) { f.moveErr[2] = fmt.Errorf("%w: amovel: broken pipe", gateway.ErrConnectionLost) },
			cause:    gateway.ErrConnectionLost,
			steps:    1,
			moves:    1,
			attempts: 2,
		},
		{
			name:     "remote error on third move",
			setup:    func(f *fakeClient) { f.moveErr[3] = remote },
			cause:    remote,
			steps:    2,
			moves:    2,
			attempts: 3,
		},
		{
			name:     "motion timeout on first wait",
			setup:    func(f *fakeClient) { f.waitErr[1] = fmt.Errorf("%w after 60s", gateway.ErrMotionTimeout) },
			cause:    gateway.ErrMotionTimeout,
			steps:    0,
			moves:    1,
			attempts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := readyClient()
			tt.setup(f)
			p := New(f, testConfig(), nil, nil)
			p.Define("test", func() []Step {
				return []Step{p.moveL("a"), p.moveL("b"), p.moveL("c"), p.moveL("d")}
			})
			require.NoError(t, p.SetSelection("test"))

			res := p.Run(context.Background())
			assert.Equal(t, Faulted, res.State)
			assert.ErrorIs(t, res.Err, tt.cause)
			assert.Equal(t, tt.steps, res.Steps)
			assert.Equal(t, Faulted, p.State())
			assert.False(t, p.Running())

			// nothing is issued after the failing command
			assert.Equal(t, tt.moves, f.motionCount())
			assert.Equal(t, tt.attempts, f.attemptCount())
			assert.Zero(t, f.stops)

			require.NotEmpty(t, f.lamps)
			assert.Equal(t, [2]bool{false, false}, f.lamps[len(f.lamps)-1])
		})
	}
}

func TestRun_SafetyDisabled(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fakeClient)
	}{
		{"switch off", func(f *fakeClient) { f.setInput(2, false) }},
		{"read fails", func(f *fakeClient) { f.inputErr = errors.New("digin timeout") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := readyClient()
			tt.setup(f)
			p := New(f, testConfig(), nil, nil)
			require.NoError(t, p.SetSelection(Buckles))

			res := p.Run(context.Background())
			assert.Equal(t, Faulted, res.State)
			assert.ErrorIs(t, res.Err, ErrSafetyDisabled)
			assert.Zero(t, f.motionCount())
		})
	}
}

func TestRun_UnknownSelectionIsNoop(t *testing.T) {
	for _, sel := range []Selection{None, "doors"} {
		f := readyClient()
		p := New(f, testConfig(), nil, nil)
		require.NoError(t, p.SetSelection(sel))

		res := p.Run(context.Background())
		assert.Equal(t, Done, res.State, sel)
		assert.NoError(t, res.Err)
		assert.Zero(t, f.motionCount())
	}
}

func TestRun_MissingWaypointsFaultBeforeMotion(t *testing.T) {
	f := readyClient()
	p := New(f, testConfig(), nil, nil)
	require.NoError(t, p.SetSelection(Seatbelts))

	res := p.Run(context.Background())
	assert.Equal(t, Faulted, res.State)
	require.ErrorIs(t, res.Err, ErrUnknownWaypoint)
	assert.Contains(t, res.Err.Error(), "seatbelt1_pickup")
	assert.Zero(t, f.motionCount())
}

func TestRun_ArmrestsWithFullBuffer(t *testing.T) {
	f := readyClient()
	f.setInput(16, true)
	f.forces = []float64{0, 2, 7.5}
	f.poses = []robot.Pose{{-585, -489, 640, 127, -151, 62}}

	cfg := testConfig()
	cfg.Waypoints.Poses["armrest_pick"] = robot.Pose{-585, -489, 771, 127, -151, 62}
	p := New(f, cfg, nil, nil)
	require.NoError(t, p.SetSelection(Armrests))

	res := p.Run(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, Done, res.State)
	assert.Equal(t, 6, res.Steps)

	assert.Equal(t, []bool{false}, f.outputs[16])
	assert.Equal(t, []bool{true, false}, f.outputs[2])
	assert.Equal(t, 1, f.stops)

	// moving lamp while running, ready lamp when done
	require.Len(t, f.lamps, 2)
	assert.Equal(t, [2]bool{false, true}, f.lamps[0])
	assert.Equal(t, [2]bool{true, false}, f.lamps[1])
}

func TestRun_ArmrestsEmptyBufferWaitsForOperator(t *testing.T) {
	f := readyClient()
	f.setInput(1, false)
	f.poses = []robot.Pose{{0, 0, 0, 0, 0, 0}}
	f.forces = []float64{10}

	cfg := testConfig()
	cfg.Waypoints.Poses["armrest_pick"] = robot.Pose{}
	p := New(f, cfg, nil, nil)
	require.NoError(t, p.SetSelection(Armrests))

	done := make(chan Result, 1)
	go func() { done <- p.Run(context.Background()) }()

	// First confirmation starts the run, the second acknowledges the refill.
	for i := 0; i < 2; i++ {
		time.Sleep(20 * time.Millisecond)
		f.setInput(4, true)
		time.Sleep(5 * time.Millisecond)
		f.setInput(4, false)
	}

	select {
	case res := <-done:
		require.NoError(t, res.Err)
		assert.Equal(t, Done, res.State)
	case <-time.After(2 * time.Second):
		p.RequestStop(context.Background())
		t.Fatal("run did not finish")
	}
	assert.Equal(t, []bool{true, false}, f.outputs[16])
}

func TestWaitForOperatorConfirm_Stop(t *testing.T) {
	f := newFakeClient()
	p := New(f, testConfig(), nil, nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		p.RequestStop(context.Background())
	}()

	err := p.WaitForOperatorConfirm(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestWaitForOperatorConfirm_Cancel(t *testing.T) {
	f := newFakeClient()
	f.inputErr = errors.New("flaky")
	p := New(f, testConfig(), nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.WaitForOperatorConfirm(ctx), context.DeadlineExceeded)
}

func TestUpdateParameters(t *testing.T) {
	f := newFakeClient()
	store := &fakeStore{}
	p := New(f, testConfig(), store, nil)

	params := robot.MotionParameters{OperationSpeed: 30, Velocity: 250, Acceleration: 100}
	require.NoError(t, p.UpdateParameters(context.Background(), params))
	assert.Equal(t, params, p.Parameters())
	assert.Equal(t, []robot.MotionParameters{params}, store.saved)
	assert.Equal(t, []string{"change_operation_speed 30", "set_velx 250", "set_accx 100"}, f.calls)

	err := p.UpdateParameters(context.Background(), robot.MotionParameters{OperationSpeed: 130, Velocity: 1, Acceleration: 1})
	require.Error(t, err)
	assert.Len(t, store.saved, 1)
}

func TestUpdateParameters_StoreFails(t *testing.T) {
	f := newFakeClient()
	store := &fakeStore{err: errors.New("disk full")}
	cfg := testConfig()
	p := New(f, cfg, store, nil)

	err := p.UpdateParameters(context.Background(), robot.MotionParameters{OperationSpeed: 90, Velocity: 900, Acceleration: 900})
	require.ErrorContains(t, err, "disk full")

	// nothing committed, nothing pushed
	assert.Equal(t, cfg.Motion, p.Parameters())
	assert.Empty(t, f.calls)
}

func TestHome(t *testing.T) {
	f := readyClient()
	p := New(f, testConfig(), nil, nil)

	require.NoError(t, p.Home(context.Background()))
	require.Len(t, f.moves, 1)
	assert.Equal(t, robot.Pose{-66, 850, 300, 3.14, 179.99, 163.55}, f.moves[0])
	assert.Equal(t, 1, f.waits)

	f.setInput(2, false)
	assert.ErrorIs(t, p.Home(context.Background()), ErrSafetyDisabled)
}
