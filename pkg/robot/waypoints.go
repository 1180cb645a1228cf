package robot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Key prefixes used in coordinate files.
const (
	posePrefix  = "p_"
	jointPrefix = "pj_"
)

// Waypoints holds the named targets a sequence moves between.
// A name may appear in either table; joint targets take precedence.
type Waypoints struct {
	Poses  map[string]Pose        `json:"poses,omitempty" yaml:"poses,omitempty"`
	Joints map[string]JointAngles `json:"joints,omitempty" yaml:"joints,omitempty"`
}

// LoadWaypoints loads a flat coordinates file where "p_<name>" keys are
// Cartesian poses and "pj_<name>" keys are joint angles. Other keys are ignored.
func LoadWaypoints(path string) (Waypoints, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Waypoints{}, fmt.Errorf("read coordinates file: %w", err)
	}

	var raw map[string][]float64
	if isYAML(path) {
		err = yaml.Unmarshal(data, &raw)
	} else {
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return Waypoints{}, fmt.Errorf("parse coordinates %s: %w", filepath.Base(path), err)
	}

	wp := Waypoints{
		Poses:  make(map[string]Pose),
		Joints: make(map[string]JointAngles),
	}
	for key, vals := range raw {
		var name string
		var joint bool
		switch {
		case strings.HasPrefix(key, jointPrefix):
			name, joint = strings.TrimPrefix(key, jointPrefix), true
		case strings.HasPrefix(key, posePrefix):
			name = strings.TrimPrefix(key, posePrefix)
		default:
			continue
		}
		if len(vals) != 6 {
			return Waypoints{}, fmt.Errorf("coordinate %q has %d values, want 6", key, len(vals))
		}
		if joint {
			wp.Joints[name] = JointAngles(vals)
		} else {
			wp.Poses[name] = Pose(vals)
		}
	}
	return wp, nil
}

// Pose returns the Cartesian waypoint called name.
func (w Waypoints) Pose(name string) (Pose, bool) {
	p, ok := w.Poses[name]
	return p, ok
}

// Joint returns the joint-space waypoint called name.
func (w Waypoints) Joint(name string) (JointAngles, bool) {
	j, ok := w.Joints[name]
	return j, ok
}

// Has reports whether name exists in either table.
func (w Waypoints) Has(name string) bool {
	if _, ok := w.Joints[name]; ok {
		return true
	}
	_, ok := w.Poses[name]
	return ok
}

// Names returns all waypoint names, sorted.
func (w Waypoints) Names() []string {
	seen := make(map[string]bool, len(w.Poses)+len(w.Joints))
	for n := range w.Poses {
		seen[n] = true
	}
	for n := range w.Joints {
		seen[n] = true
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Merge copies every entry of other into w, overwriting duplicates.
func (w *Waypoints) Merge(other Waypoints) {
	if w.Poses == nil {
		w.Poses = make(map[string]Pose)
	}
	if w.Joints == nil {
		w.Joints = make(map[string]JointAngles)
	}
	for n, p := range other.Poses {
		w.Poses[n] = p
	}
	for n, j := range other.Joints {
		w.Joints[n] = j
	}
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
