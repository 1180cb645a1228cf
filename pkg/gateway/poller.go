package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultPollInterval is used when a Poller is created with a zero interval.
const DefaultPollInterval = 200 * time.Millisecond

// stopTimeout bounds how long Stop waits for the loop to exit.
const stopTimeout = time.Second

// Status is one motion-status sample.
type Status struct {
	Raw    string
	Moving bool
	At     time.Time
	Err    error
}

// Poller periodically queries check_motion and caches the latest answer.
// The cache has its own lock and is never held across I/O.
type Poller struct {
	conn     *Conn
	interval time.Duration
	log      logrus.FieldLogger

	mu      sync.RWMutex
	latest  Status
	has     bool
	lastErr error

	updates chan Status

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller returns a stopped poller on conn.
func NewPoller(conn *Conn, interval time.Duration, log logrus.FieldLogger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if log == nil {
		log = discardLogger()
	}
	return &Poller{
		conn:     conn,
		interval: interval,
		log:      log,
		updates:  make(chan Status, 1),
	}
}

// Updates returns a channel carrying the newest sample. Stale samples are dropped.
func (p *Poller) Updates() <-chan Status {
	return p.updates
}

// Interval returns the poll period.
func (p *Poller) Interval() time.Duration { return p.interval }

// Start launches the background loop. Calling Start on a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if p.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.loop(ctx, p.done)
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return p.done != nil
}

// Stop cancels the loop and waits for it to exit, up to one second.
func (p *Poller) Stop() {
	p.runMu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.runMu.Unlock()

	if done == nil {
		return
	}
	cancel()

	select {
	case <-done:
	case <-time.After(stopTimeout):
		p.log.Warn("status poller did not stop in time")
	}
}

// Latest returns the most recent successful sample.
func (p *Poller) Latest() (Status, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest, p.has
}

// LastError returns the error of the most recent poll, or nil if it succeeded.
// Once the loop has exited it returns ErrPollerStopped until a new loop
// polls successfully.
func (p *Poller) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer p.exit(ctx, done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// reported is per loop so a loop left behind by a timed-out Stop
	// never races a newer one.
	var reported string
	p.poll(ctx, &reported)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx, &reported)
		}
	}
}

// exit releases the loop's slot, if it still owns it, and marks the cache
// stale unless a newer loop has taken over.
func (p *Poller) exit(ctx context.Context, done chan struct{}) {
	defer close(done)

	p.runMu.Lock()
	defer p.runMu.Unlock()

	if p.done == done {
		p.cancel()
		p.cancel, p.done = nil, nil
	}
	if p.done != nil {
		return
	}
	// Set before Running reports false so callers never see a
	// stopped poller with a clean error.
	p.mu.Lock()
	p.lastErr = fmt.Errorf("%w: %w", ErrPollerStopped, context.Cause(ctx))
	p.mu.Unlock()
	p.log.Debug("status poller stopped")
}

func (p *Poller) poll(ctx context.Context, reported *string) {
	resp, err := p.conn.Send(ctx, NewCommand(CmdCheckMotion), true)
	var moving bool
	if err == nil {
		moving, err = resp.Flag(CmdCheckMotion)
	}
	now := time.Now()

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.mu.Lock()
		p.lastErr = err
		p.mu.Unlock()

		// Log each distinct cause once.
		if msg := err.Error(); msg != *reported {
			*reported = msg
			p.log.WithError(err).Warn("status poll failed")
		}
		p.send(Status{Raw: resp.Raw, At: now, Err: err})
		return
	}

	st := Status{Raw: resp.Raw, Moving: moving, At: now}
	p.mu.Lock()
	p.latest, p.has = st, true
	p.lastErr = nil
	p.mu.Unlock()

	if *reported != "" {
		p.log.Info("status poll recovered")
		*reported = ""
	}
	p.send(st)
}

func (p *Poller) send(s Status) {
	select {
	case p.updates <- s:
	default:
		// Drop old sample if channel full, replace with new
		select {
		case <-p.updates:
		default:
		}
		select {
		case p.updates <- s:
		default:
		}
	}
}
