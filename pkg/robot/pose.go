// Package robot provides the data model and capabilities of a Doosan robot arm.
package robot

import (
	"fmt"
	"math"
)

// Pose is a Cartesian TCP pose: x, y, z in millimeters and rx, ry, rz in degrees.
type Pose [6]float64

// JointAngles holds the six joint angles j1..j6 in degrees.
type JointAngles [6]float64

func (p Pose) X() float64  { return p[0] }
func (p Pose) Y() float64  { return p[1] }
func (p Pose) Z() float64  { return p[2] }
func (p Pose) RX() float64 { return p[3] }
func (p Pose) RY() float64 { return p[4] }
func (p Pose) RZ() float64 { return p[5] }

// Translate returns the pose moved dist millimeters along d.
// Orientation is unchanged.
func (p Pose) Translate(d Direction, dist float64) Pose {
	dx, dy, dz := d.Vector()
	out := p
	out[0] += dx * dist
	out[1] += dy * dist
	out[2] += dz * dist
	return out
}

// String formats the pose with one decimal, the way the operator console shows it.
func (p Pose) String() string {
	return fmt.Sprintf("x=%.1f y=%.1f z=%.1f rx=%.1f ry=%.1f rz=%.1f", p[0], p[1], p[2], p[3], p[4], p[5])
}

// Distance returns the Euclidean distance between the positions of p and q.
func (p Pose) Distance(q Pose) float64 {
	dx, dy, dz := p[0]-q[0], p[1]-q[1], p[2]-q[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Direction is one of the six axis-aligned approach directions.
type Direction string

// Directions accepted by sensor moves.
const (
	XPlus  Direction = "x+"
	XMinus Direction = "x-"
	YPlus  Direction = "y+"
	YMinus Direction = "y-"
	ZPlus  Direction = "z+"
	ZMinus Direction = "z-"
)

// AllDirections returns every valid direction.
func AllDirections() []Direction {
	return []Direction{XPlus, XMinus, YPlus, YMinus, ZPlus, ZMinus}
}

// ParseDirection validates s as a Direction.
func ParseDirection(s string) (Direction, error) {
	d := Direction(s)
	if !d.Valid() {
		return "", fmt.Errorf("invalid direction %q", s)
	}
	return d, nil
}

// Valid reports whether d is one of the six axis directions.
func (d Direction) Valid() bool {
	for _, v := range AllDirections() {
		if d == v {
			return true
		}
	}
	return false
}

// Vector returns the unit vector for d. Invalid directions yield the zero vector.
func (d Direction) Vector() (dx, dy, dz float64) {
	switch d {
	case XPlus:
		return 1, 0, 0
	case XMinus:
		return -1, 0, 0
	case YPlus:
		return 0, 1, 0
	case YMinus:
		return 0, -1, 0
	case ZPlus:
		return 0, 0, 1
	case ZMinus:
		return 0, 0, -1
	}
	return 0, 0, 0
}

// Opposite returns the reverse direction.
func (d Direction) Opposite() Direction {
	switch d {
	case XPlus:
		return XMinus
	case XMinus:
		return XPlus
	case YPlus:
		return YMinus
	case YMinus:
		return YPlus
	case ZPlus:
		return ZMinus
	case ZMinus:
		return ZPlus
	}
	return d
}

// MotionParameters are the operator-tunable motion settings.
type MotionParameters struct {
	OperationSpeed float64 `json:"operation_speed" yaml:"operation_speed"` // percent 0-100
	Velocity       float64 `json:"velocity" yaml:"velocity"`               // mm/s
	Acceleration   float64 `json:"acceleration" yaml:"acceleration"`       // mm/s²
}

// Validate checks the parameters are within the ranges the controller accepts.
func (m MotionParameters) Validate() error {
	if m.OperationSpeed < 0 || m.OperationSpeed > 100 {
		return fmt.Errorf("operation speed %.1f outside 0-100", m.OperationSpeed)
	}
	if m.Velocity <= 0 {
		return fmt.Errorf("velocity must be positive, got %.1f", m.Velocity)
	}
	if m.Acceleration <= 0 {
		return fmt.Errorf("acceleration must be positive, got %.1f", m.Acceleration)
	}
	return nil
}
