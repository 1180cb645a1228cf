// Package telemetry samples tool force and TCP pose at a fixed rate.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/snoeks/doosan/pkg/robot"
)

// Sample is one reading of the arm's live sensor state.
type Sample struct {
	Force     float64
	Pose      robot.Pose
	Timestamp time.Time
	Error     error
}

// Sampler runs the sampling loop.
type Sampler struct {
	source   robot.Telemetry
	hz       int
	refFrame int

	mu      sync.RWMutex
	last    Sample
	running bool
	stateCh chan Sample
	logCh   chan string
}

// Config holds configuration for the sampler.
type Config struct {
	Hz       int
	RefFrame int // force reference frame, 0 is base
}

// NewSampler creates a sampler reading from source.
func NewSampler(source robot.Telemetry, cfg Config) *Sampler {
	if cfg.Hz <= 0 {
		cfg.Hz = 10
	}
	return &Sampler{
		source:   source,
		hz:       cfg.Hz,
		refFrame: cfg.RefFrame,
		stateCh:  make(chan Sample, 1),
		logCh:    make(chan string, 10),
	}
}

// Samples returns a channel that receives the latest sample.
func (s *Sampler) Samples() <-chan Sample {
	return s.stateCh
}

// Logs returns a channel that receives log messages.
func (s *Sampler) Logs() <-chan string {
	return s.logCh
}

// Hz returns the sampling frequency.
func (s *Sampler) Hz() int {
	return s.hz
}

// Last returns the most recent sample.
func (s *Sampler) Last() Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *Sampler) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case s.logCh <- msg:
	default:
	}
}

// Start runs the sampling loop until ctx is done.
func (s *Sampler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("already running")
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.log("Sampling at %d Hz", s.hz)

	ticker := time.NewTicker(time.Second / time.Duration(s.hz))
	defer ticker.Stop()

	var lastErr string
	for {
		select {
		case <-ctx.Done():
			s.log("Sampling stopped")
			return ctx.Err()
		case <-ticker.C:
			sample := s.step(ctx)
			if sample.Error != nil {
				// Log each new cause once instead of every tick.
				if msg := sample.Error.Error(); msg != lastErr {
					s.log("Read error: %v", sample.Error)
					lastErr = msg
				}
			} else if lastErr != "" {
				s.log("Readings recovered")
				lastErr = ""
			}
		}
	}
}

func (s *Sampler) step(ctx context.Context) Sample {
	sample := Sample{Timestamp: time.Now()}

	force, err := s.source.ReadToolForce(ctx, s.refFrame)
	if err != nil {
		sample.Error = fmt.Errorf("tool force: %w", err)
		s.sendState(sample)
		return sample
	}
	sample.Force = force

	pose, err := s.source.ReadToolPose(ctx)
	if err != nil {
		sample.Error = fmt.Errorf("tool pose: %w", err)
		s.sendState(sample)
		return sample
	}
	sample.Pose = pose

	s.mu.Lock()
	s.last = sample
	s.mu.Unlock()

	s.sendState(sample)
	return sample
}

func (s *Sampler) sendState(sample Sample) {
	select {
	case s.stateCh <- sample:
	default:
		// Drop old sample if channel full, replace with new
		select {
		case <-s.stateCh:
		default:
		}
		select {
		case s.stateCh <- sample:
		default:
		}
	}
}
