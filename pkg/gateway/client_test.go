package gateway_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snoeks/doosan/pkg/gateway"
	"github.com/snoeks/doosan/pkg/robot"
	"github.com/snoeks/doosan/pkg/simulator"
)

func startSim(t *testing.T, opts simulator.Options) (*simulator.Server, *gateway.Client) {
	t.Helper()
	srv, err := simulator.Listen("127.0.0.1:0", simulator.NewRobot(opts), nil)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	c := gateway.New(gateway.Options{
		Addr:         srv.Addr(),
		DialTimeout:  time.Second,
		IOTimeout:    500 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
		LampReady:    1,
		LampMoving:   2,
	})
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { c.Close() })
	return srv, c
}

func TestClient_MoveThenWait(t *testing.T) {
	srv, c := startSim(t, simulator.Options{})
	ctx := context.Background()

	home := robot.Pose{-66, 850, 300, 3.14, 179.99, 163.55}
	require.NoError(t, c.MoveLinear(ctx, home, 500, 300))

	srv.Robot().ScriptMotion(true, true, true, false)
	require.NoError(t, c.WaitUntilStopped(ctx, 10*time.Millisecond, time.Second))

	lines := srv.Lines()
	require.Equal(t, "amovel -66 850 300 3.14 179.99 163.55 500 300", lines[0])
	assert.Len(t, srv.Commands(gateway.CmdCheckMotion), 4)
	assert.Equal(t, home, srv.Robot().Pose())
}

func TestClient_WaitUntilStoppedTimeout(t *testing.T) {
	srv, c := startSim(t, simulator.Options{})

	moving := make([]bool, 100)
	for i := range moving {
		moving[i] = true
	}
	srv.Robot().ScriptMotion(moving...)

	start := time.Now()
	err := c.WaitUntilStopped(context.Background(), 10*time.Millisecond, 50*time.Millisecond)
	require.ErrorIs(t, err, gateway.ErrMotionTimeout)
	assert.Less(t, time.Since(start), time.Second)

	// A timeout is not a connection fault.
	assert.Equal(t, gateway.Connected, c.State())
}

func TestClient_WaitUntilStoppedSettle(t *testing.T) {
	srv, c := startSim(t, simulator.Options{Settle: 50 * time.Millisecond})
	ctx := context.Background()

	target := robot.Pose{0, 0, 100, 0, 180, 0}
	require.NoError(t, c.MoveLinear(ctx, target, 100, 100))
	require.NoError(t, c.WaitUntilStopped(ctx, 5*time.Millisecond, time.Second))
	assert.False(t, srv.Robot().Moving())
	assert.Equal(t, target, srv.Robot().Pose())
}

func TestClient_DigitalIO(t *testing.T) {
	srv, c := startSim(t, simulator.Options{})
	ctx := context.Background()

	require.NoError(t, c.SetDigitalOutput(ctx, 3, true))
	assert.True(t, srv.Robot().Output(3))

	srv.Robot().SetInput(2, true)
	on, err := c.ReadDigitalInput(ctx, 2)
	require.NoError(t, err)
	assert.True(t, on)

	on, err = c.ReadDigitalInput(ctx, 5)
	require.NoError(t, err)
	assert.False(t, on)

	err = c.SetDigitalOutput(ctx, 99, true)
	var remote *gateway.RemoteCommandError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "ERR digout invalid args", remote.Raw)
}

func TestClient_AnalogAndTelemetry(t *testing.T) {
	start := robot.Pose{10, 20, 30, 0, 180, 0}
	srv, c := startSim(t, simulator.Options{Pose: start})
	ctx := context.Background()

	require.NoError(t, c.SetAnalogOutput(ctx, 1, 2.5))
	assert.Equal(t, 2.5, srv.Robot().AnalogOutput(1))

	srv.Robot().SetAnalogInput(2, 4.75)
	v, err := c.ReadAnalogInput(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 4.75, v)

	srv.Robot().ScriptForce(6.5)
	f, err := c.ReadToolForce(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 6.5, f)

	p, err := c.ReadToolPose(ctx)
	require.NoError(t, err)
	assert.Equal(t, start, p)
}

func TestClient_Parameters(t *testing.T) {
	srv, c := startSim(t, simulator.Options{})
	ctx := context.Background()

	params := robot.MotionParameters{OperationSpeed: 60, Velocity: 250, Acceleration: 125}
	require.NoError(t, robot.ApplyParameters(ctx, c, params))
	assert.Equal(t, params, srv.Robot().Parameters())
}

func TestClient_SetLamp(t *testing.T) {
	srv, c := startSim(t, simulator.Options{})
	ctx := context.Background()

	tests := []struct {
		ready, moving bool
		wantReady     bool
		wantMoving    bool
	}{
		{true, false, true, false},
		{false, true, false, true},
		{true, true, true, false},
		{false, false, false, false},
	}

	for _, tt := range tests {
		require.NoError(t, c.SetLamp(ctx, tt.ready, tt.moving))
		assert.Equal(t, tt.wantReady, srv.Robot().Output(1))
		assert.Equal(t, tt.wantMoving, srv.Robot().Output(2))
	}

	// Both lamps are cleared before one is set.
	srv.ResetLines()
	require.NoError(t, c.SetLamp(ctx, false, true))
	assert.Equal(t, []string{"digout 1 0", "digout 2 0", "digout 2 1"}, srv.Lines())
}

func TestClient_ConcurrentSendsDoNotInterleave(t *testing.T) {
	srv, c := startSim(t, simulator.Options{})
	ctx := context.Background()

	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				var err error
				switch i % 3 {
				case 0:
					err = c.MoveLinear(ctx, robot.Pose{float64(w), float64(i), 1, 2, 3, 4}, 100, 200)
				case 1:
					_, err = c.ReadDigitalInput(ctx, w%16+1)
				default:
					_, err = c.CheckMotion(ctx)
				}
				if err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent send failed: %v", err)
	}

	lines := srv.Lines()
	require.Len(t, lines, workers*perWorker)
	for _, line := range lines {
		cmd, err := gateway.ParseCommand(line)
		require.NoError(t, err)
		switch cmd.Name {
		case gateway.CmdMoveLinear:
			vals, err := cmd.Floats()
			require.NoError(t, err, line)
			assert.Len(t, vals, 8, line)
		case gateway.CmdDigitalIn:
			assert.Len(t, cmd.Args, 1, line)
		case gateway.CmdCheckMotion:
			assert.Empty(t, cmd.Args, line)
		default:
			t.Errorf("garbled line %q", line)
		}
	}
}

func TestClient_NotConnectedAfterIOError(t *testing.T) {
	srv, c := startSim(t, simulator.Options{})
	ctx := context.Background()

	_, err := c.CheckMotion(ctx)
	require.NoError(t, err)

	srv.DropConnections()

	_, err = c.CheckMotion(ctx)
	require.ErrorIs(t, err, gateway.ErrConnectionLost)
	assert.True(t, gateway.IsConnectionError(err))
	assert.Equal(t, gateway.Disconnected, c.State())

	for i := 0; i < 3; i++ {
		err = c.Stop(ctx)
		require.ErrorIs(t, err, gateway.ErrNotConnected)
	}

	require.NoError(t, c.Connect(ctx))
	assert.Equal(t, gateway.Connected, c.State())
	_, err = c.CheckMotion(ctx)
	require.NoError(t, err)
}

func TestClient_ResponseTimeoutInvalidates(t *testing.T) {
	srv, c := startSim(t, simulator.Options{})
	srv.Robot().SetResponder(func(cmd gateway.Command) (string, bool) {
		return "", cmd.Name == gateway.CmdToolPose
	})

	_, err := c.ReadToolPose(context.Background())
	require.ErrorIs(t, err, gateway.ErrConnectionLost)

	_, err = c.CheckMotion(context.Background())
	require.ErrorIs(t, err, gateway.ErrNotConnected)
}

func TestClient_ConnectRefused(t *testing.T) {
	srv, err := simulator.Listen("127.0.0.1:0", simulator.NewRobot(simulator.Options{}), nil)
	require.NoError(t, err)
	addr := srv.Addr()
	require.NoError(t, srv.Close())

	c := gateway.New(gateway.Options{Addr: addr, DialTimeout: 200 * time.Millisecond})
	err = c.Connect(context.Background())

	var ce *gateway.ConnectError
	require.True(t, errors.As(err, &ce))
	assert.True(t, gateway.IsConnectionError(err))
	assert.Equal(t, gateway.Disconnected, c.State())
}

func TestClient_CloseSendsQuit(t *testing.T) {
	srv, c := startSim(t, simulator.Options{})

	c.StartPoller(context.Background())
	require.NoError(t, c.Close())
	assert.False(t, c.Poller().Running())
	assert.Equal(t, gateway.Disconnected, c.State())

	require.Eventually(t, func() bool {
		return len(srv.Commands(gateway.CmdQuit)) == 1
	}, time.Second, 5*time.Millisecond)
}
