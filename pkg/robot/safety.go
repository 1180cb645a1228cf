package robot

import "context"

// SafetyGate reads the physical enable switch.
type SafetyGate struct {
	reader DigitalReader
	input  int
}

// NewSafetyGate returns a gate on the given digital input.
func NewSafetyGate(reader DigitalReader, input int) *SafetyGate {
	return &SafetyGate{reader: reader, input: input}
}

// Enabled reports whether motion may be issued. Read failures count as disabled.
func (g *SafetyGate) Enabled(ctx context.Context) bool {
	if g == nil || g.reader == nil {
		return false
	}
	on, err := g.reader.ReadDigitalInput(ctx, g.input)
	if err != nil {
		return false
	}
	return on
}

// Input returns the monitored digital input index.
func (g *SafetyGate) Input() int {
	return g.input
}
