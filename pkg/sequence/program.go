package sequence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/snoeks/doosan/pkg/gateway"
	"github.com/snoeks/doosan/pkg/robot"
)

// Config holds what a Program needs from the cell configuration.
type Config struct {
	Motion    robot.MotionParameters
	IO        robot.IOConfig
	Waypoints robot.Waypoints

	WaitPoll    time.Duration
	WaitTimeout time.Duration
	ConfirmPoll time.Duration
}

// ConfigFrom extracts the sequence settings from cfg.
func ConfigFrom(cfg *robot.Config) Config {
	return Config{
		Motion:      cfg.Motion,
		IO:          cfg.IO,
		Waypoints:   cfg.Waypoints,
		WaitPoll:    cfg.Timing.WaitPoll.D(),
		WaitTimeout: cfg.Timing.WaitTimeout.D(),
		ConfirmPoll: cfg.Timing.ConfirmPoll.D(),
	}
}

// Program executes product sequences on one MotionClient. A Program runs
// at most one sequence at a time; RequestStop may be called from any goroutine.
type Program struct {
	client robot.MotionClient
	gate   *robot.SafetyGate
	cfg    Config
	store  robot.ParameterStore
	log    logrus.FieldLogger

	stop    atomic.Bool
	running atomic.Bool

	mu        sync.RWMutex
	selection Selection
	params    robot.MotionParameters
	state     State
	sequences map[Selection]func() []Step

	stateCh chan Update
	logCh   chan string
}

// New returns an idle program. store may be nil to skip persistence.
func New(client robot.MotionClient, cfg Config, store robot.ParameterStore, log logrus.FieldLogger) *Program {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	if cfg.WaitPoll <= 0 {
		cfg.WaitPoll = 100 * time.Millisecond
	}
	if cfg.ConfirmPoll <= 0 {
		cfg.ConfirmPoll = 100 * time.Millisecond
	}

	p := &Program{
		client:  client,
		gate:    robot.NewSafetyGate(client, cfg.IO.SafetyInput),
		cfg:     cfg,
		store:   store,
		log:     log.WithField("component", "sequence"),
		params:  cfg.Motion,
		stateCh: make(chan Update, 1),
		logCh:   make(chan string, 10),
	}
	p.sequences = map[Selection]func() []Step{
		Buckles:   p.bucklesSequence,
		Armrests:  p.armrestSequence,
		Seatbelts: p.seatbeltsSequence,
		All:       p.allSequence,
	}
	return p
}

// States returns a channel that receives run progress. Stale updates are dropped.
func (p *Program) States() <-chan Update {
	return p.stateCh
}

// Logs returns a channel that receives operator messages.
func (p *Program) Logs() <-chan string {
	return p.logCh
}

// State returns the state of the current or last run.
func (p *Program) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Running reports whether a run is active.
func (p *Program) Running() bool {
	return p.running.Load()
}

// StopRequested reports whether the current run was asked to stop.
func (p *Program) StopRequested() bool {
	return p.stop.Load()
}

// SafetyGate returns the gate consulted at run entry.
func (p *Program) SafetyGate() *robot.SafetyGate {
	return p.gate
}

// Define registers or replaces the steps run for sel.
func (p *Program) Define(sel Selection, build func() []Step) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sequences[sel] = build
}

// SetSelection chooses the sequence for the next run.
func (p *Program) SetSelection(sel Selection) error {
	if p.running.Load() {
		return ErrBusy
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selection = sel
	return nil
}

// Selection returns the sequence chosen for the next run.
func (p *Program) Selection() Selection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.selection
}

// Parameters returns the current motion parameters.
func (p *Program) Parameters() robot.MotionParameters {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.params
}

// UpdateParameters validates, persists and pushes new motion parameters.
// Nothing changes when persisting fails. A failed push keeps the new values
// for the next ApplyParameters or Home.
func (p *Program) UpdateParameters(ctx context.Context, params robot.MotionParameters) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if p.store != nil {
		if err := p.store.SaveParameters(params); err != nil {
			return fmt.Errorf("save parameters: %w", err)
		}
	}

	p.mu.Lock()
	p.params = params
	p.mu.Unlock()

	p.log.WithFields(logrus.Fields{
		"speed": params.OperationSpeed,
		"vel":   params.Velocity,
		"acc":   params.Acceleration,
	}).Info("motion parameters updated")
	return p.ApplyParameters(ctx)
}

// ApplyParameters pushes the current motion parameters to the robot.
func (p *Program) ApplyParameters(ctx context.Context) error {
	return robot.ApplyParameters(ctx, p.client, p.Parameters())
}

// RequestStop sets the stop flag and asks the robot to halt. The run ends
// before its next step; motion already issued is left to settle.
func (p *Program) RequestStop(ctx context.Context) error {
	p.stop.Store(true)
	p.logf("Stop requested")
	return p.client.Stop(ctx)
}

// Home applies the motion parameters and moves to the home waypoint.
func (p *Program) Home(ctx context.Context) error {
	if p.running.Load() {
		return ErrBusy
	}
	if !p.gate.Enabled(ctx) {
		return ErrSafetyDisabled
	}
	if err := p.ApplyParameters(ctx); err != nil {
		return err
	}
	p.logf("Moving home")
	return p.moveJ(WaypointHome).Run(ctx)
}

// Run executes the selected sequence and blocks until it ends.
// The stop flag is reset at the start of every run.
func (p *Program) Run(ctx context.Context) Result {
	res := Result{RunID: uuid.New(), Started: time.Now()}
	if !p.running.CompareAndSwap(false, true) {
		res.State, res.Err, res.Finished = Faulted, ErrBusy, time.Now()
		return res
	}
	defer p.running.Store(false)

	p.stop.Store(false)
	sel := p.Selection()
	res.Selection = sel
	log := p.log.WithFields(logrus.Fields{"run_id": res.RunID, "selection": sel})

	finish := func(state State, err error) Result {
		res.State, res.Err, res.Finished = state, err, time.Now()
		p.setState(Update{RunID: res.RunID, Selection: sel, State: state, Err: err})
		p.terminalLamp(ctx, state)

		entry := log.WithFields(logrus.Fields{"state": state, "steps": res.Steps, "took": res.Duration()})
		switch state {
		case Faulted:
			entry.WithError(err).Error("run faulted")
			p.logf("Sequence faulted: %v", err)
		case Stopped:
			entry.Warn("run stopped")
			p.logf("Sequence stopped")
		default:
			entry.Info("run finished")
			p.logf("Sequence finished")
		}
		return res
	}

	p.logf("Main sequence active")
	if !p.gate.Enabled(ctx) {
		p.logf("Robot is not enabled by the safety switch, sequence not started")
		return finish(Faulted, ErrSafetyDisabled)
	}

	p.mu.RLock()
	build, ok := p.sequences[sel]
	p.mu.RUnlock()
	if !ok {
		p.logf("No valid product selected, nothing to run")
		log.Warn("no sequence for selection")
		return finish(Done, nil)
	}

	steps := build()
	if err := p.validate(steps); err != nil {
		return finish(Faulted, err)
	}

	p.setState(Update{RunID: res.RunID, Selection: sel, State: WaitingForOperator})
	if err := p.WaitForOperatorConfirm(ctx); err != nil {
		return finish(classify(err), err)
	}

	p.setState(Update{RunID: res.RunID, Selection: sel, State: Running, Total: len(steps)})
	p.lamp(ctx, false, true)

	n, err := p.execute(ctx, res.RunID, sel, steps)
	res.Steps = n
	if err != nil {
		return finish(classify(err), err)
	}
	if p.stop.Load() {
		return finish(Stopped, ErrStopped)
	}
	return finish(Done, nil)
}

// classify maps a run error onto its terminal state.
func classify(err error) State {
	if errors.Is(err, ErrStopped) || errors.Is(err, context.Canceled) {
		return Stopped
	}
	return Faulted
}

// WaitForOperatorConfirm blocks until one of the confirm inputs is high.
// Read errors count as not pressed, except a lost connection.
func (p *Program) WaitForOperatorConfirm(ctx context.Context) error {
	p.logf("Waiting for operator confirmation (green button)...")

	ticker := time.NewTicker(p.cfg.ConfirmPoll)
	defer ticker.Stop()

	for {
		if p.stop.Load() {
			return ErrStopped
		}
		for _, in := range p.cfg.IO.ConfirmInputs {
			on, err := p.client.ReadDigitalInput(ctx, in)
			if err != nil {
				if gateway.IsConnectionError(err) {
					return err
				}
				continue
			}
			if on {
				p.logf("Green button pressed, sequence continues")
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Program) setState(u Update) {
	u.At = time.Now()
	p.mu.Lock()
	p.state = u.State
	p.mu.Unlock()

	select {
	case p.stateCh <- u:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-p.stateCh:
		default:
		}
		select {
		case p.stateCh <- u:
		default:
		}
	}
}

func (p *Program) logf(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case p.logCh <- msg:
	default:
		// Drop if channel full
	}
}

func (p *Program) lamp(ctx context.Context, ready, moving bool) {
	l, ok := p.client.(robot.Lamp)
	if !ok {
		return
	}
	if err := l.SetLamp(ctx, ready, moving); err != nil {
		p.log.WithError(err).Debug("set lamp failed")
	}
}

func (p *Program) terminalLamp(ctx context.Context, state State) {
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	p.lamp(ctx, state == Done, false)
}
