package main

import (
	"testing"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snoeks/doosan/pkg/robot"
)

func TestParamsCommand_Apply(t *testing.T) {
	current := robot.MotionParameters{OperationSpeed: 50, Velocity: 250, Acceleration: 500}

	tests := []struct {
		name     string
		args     []string
		changed  bool
		expected robot.MotionParameters
	}{
		{"no flags", nil, false, current},
		{"zero speed", []string{"--speed", "0"}, true, robot.MotionParameters{OperationSpeed: 0, Velocity: 250, Acceleration: 500}},
		{"velocity only", []string{"--velocity", "120"}, true, robot.MotionParameters{OperationSpeed: 50, Velocity: 120, Acceleration: 500}},
		{"all", []string{"--speed", "20", "--velocity", "100", "--acceleration", "80"}, true, robot.MotionParameters{OperationSpeed: 20, Velocity: 100, Acceleration: 80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cmd ParamsCommand
			rest, err := flags.ParseArgs(&cmd, tt.args)
			require.NoError(t, err)
			assert.Empty(t, rest)

			assert.Equal(t, tt.changed, cmd.changed())
			assert.Equal(t, tt.expected, cmd.apply(current))
		})
	}
}
