package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snoeks/doosan/pkg/robot"
)

type fakeSource struct {
	mu       sync.Mutex
	force    float64
	pose     robot.Pose
	forceErr error
	frames   []int
}

func (f *fakeSource) ReadToolForce(_ context.Context, refFrame int) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, refFrame)
	return f.force, f.forceErr
}

func (f *fakeSource) ReadToolPose(context.Context) (robot.Pose, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pose, nil
}

func (f *fakeSource) setForceErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forceErr = err
}

func TestNewSampler_Defaults(t *testing.T) {
	s := NewSampler(&fakeSource{}, Config{})
	assert.Equal(t, 10, s.Hz())
}

func TestSampler_Step(t *testing.T) {
	src := &fakeSource{force: 4.5, pose: robot.Pose{1, 2, 3, 0, 180, 0}}
	s := NewSampler(src, Config{Hz: 50, RefFrame: 1})

	sample := s.step(context.Background())
	require.NoError(t, sample.Error)
	assert.Equal(t, 4.5, sample.Force)
	assert.Equal(t, src.pose, sample.Pose)
	assert.Equal(t, sample, s.Last())
	assert.Equal(t, []int{1}, src.frames)

	select {
	case got := <-s.Samples():
		assert.Equal(t, sample, got)
	default:
		t.Fatal("no sample delivered")
	}
}

func TestSampler_StepError(t *testing.T) {
	src := &fakeSource{force: 1}
	s := NewSampler(src, Config{})
	good := s.step(context.Background())

	src.setForceErr(errors.New("toolforce invalid args"))
	bad := s.step(context.Background())
	require.Error(t, bad.Error)
	assert.Contains(t, bad.Error.Error(), "tool force")

	// Last keeps the previous good reading.
	assert.Equal(t, good, s.Last())

	// Only the newest sample is buffered.
	got := <-s.Samples()
	assert.Error(t, got.Error)
}

func TestSampler_Start(t *testing.T) {
	src := &fakeSource{force: 2}
	s := NewSampler(src, Config{Hz: 200})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()

	select {
	case sample := <-s.Samples():
		assert.Equal(t, 2.0, sample.Force)
	case <-time.After(time.Second):
		t.Fatal("no sample")
	}

	assert.ErrorIs(t, <-errCh, context.DeadlineExceeded)

	// A second loop may start once the first has ended.
	ctx2, cancel2 := context.WithCancel(context.Background())
	cancel2()
	assert.ErrorIs(t, s.Start(ctx2), context.Canceled)
}
