// Package gateway implements the client side of the robot's TCP line protocol.
package gateway

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/snoeks/doosan/pkg/robot"
)

// Command names understood by the robot-side receiver.
const (
	CmdMoveLinear     = "amovel"
	CmdMoveJointPose  = "amovejx"
	CmdMoveJoint      = "amovej"
	CmdStop           = "stop"
	CmdOperationSpeed = "change_operation_speed"
	CmdSetVelX        = "set_velx"
	CmdSetAccX        = "set_accx"
	CmdDigitalOut     = "digout"
	CmdDigitalIn      = "digin"
	CmdAnalogOut      = "anout"
	CmdAnalogIn       = "anin"
	CmdCheckMotion    = "check_motion"
	CmdToolForce      = "toolforce"
	CmdToolPose       = "tcp_pose"
	CmdQuit           = "quit"
)

// responseTags lists commands whose OK tag differs from the command name.
var responseTags = map[string]string{
	CmdToolPose: "tcppose",
	CmdQuit:     "bye",
}

// ResponseTag returns the token that follows OK in a reply to name.
func ResponseTag(name string) string {
	if tag, ok := responseTags[name]; ok {
		return tag
	}
	return name
}

// Command is one request line.
type Command struct {
	Name string
	Args []string
}

// NewCommand builds a command, formatting numeric arguments without
// trailing zeros and booleans as 0/1.
func NewCommand(name string, args ...any) Command {
	cmd := Command{Name: name, Args: make([]string, 0, len(args))}
	for _, a := range args {
		cmd.Args = append(cmd.Args, formatArg(a))
	}
	return cmd
}

func formatArg(a any) string {
	switch v := a.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case bool:
		if v {
			return "1"
		}
		return "0"
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// String returns the command line without terminator.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Encode returns the newline-terminated wire form.
func (c Command) Encode() []byte {
	return []byte(c.String() + "\n")
}

// Floats parses every argument as a float.
func (c Command) Floats() ([]float64, error) {
	out := make([]float64, len(c.Args))
	for i, a := range c.Args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("%s arg %d: %w", c.Name, i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

// ParseCommand decodes a request line. The name is lowercased the way the
// receiver does it.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("empty command line")
	}
	return Command{Name: strings.ToLower(fields[0]), Args: fields[1:]}, nil
}

// Response is one decoded reply line.
type Response struct {
	OK     bool
	Tag    string
	Fields []string
	Raw    string
}

// ParseResponse decodes the first line of a response chunk.
func ParseResponse(chunk []byte) Response {
	if i := bytes.IndexByte(chunk, '\n'); i >= 0 {
		chunk = chunk[:i]
	}
	raw := strings.TrimSpace(string(chunk))
	fields := strings.Fields(raw)

	r := Response{Raw: raw}
	if len(fields) == 0 {
		return r
	}
	r.OK = fields[0] == "OK"
	if len(fields) > 1 {
		r.Tag = fields[1]
		r.Fields = fields[2:]
	}
	return r
}

// Check turns a non-OK reply into a RemoteCommandError and verifies the
// reply belongs to cmd.
func (r Response) Check(cmd string) error {
	if !r.OK {
		return &RemoteCommandError{Command: cmd, Raw: r.Raw}
	}
	if r.Tag != ResponseTag(cmd) {
		return &ProtocolError{Command: cmd, Raw: r.Raw, Reason: fmt.Sprintf("unexpected tag %q", r.Tag)}
	}
	return nil
}

func (r Response) protocolError(cmd, format string, args ...any) error {
	return &ProtocolError{Command: cmd, Raw: r.Raw, Reason: fmt.Sprintf(format, args...)}
}

// Flag decodes a single 0/1 payload.
func (r Response) Flag(cmd string) (bool, error) {
	if err := r.Check(cmd); err != nil {
		return false, err
	}
	if len(r.Fields) != 1 {
		return false, r.protocolError(cmd, "want 1 field, got %d", len(r.Fields))
	}
	switch r.Fields[0] {
	case "0":
		return false, nil
	case "1":
		return true, nil
	}
	return false, r.protocolError(cmd, "flag %q is not 0 or 1", r.Fields[0])
}

// Float decodes a single numeric payload.
func (r Response) Float(cmd string) (float64, error) {
	if err := r.Check(cmd); err != nil {
		return 0, err
	}
	if len(r.Fields) != 1 {
		return 0, r.protocolError(cmd, "want 1 field, got %d", len(r.Fields))
	}
	v, err := strconv.ParseFloat(r.Fields[0], 64)
	if err != nil {
		return 0, r.protocolError(cmd, "parse %q: %v", r.Fields[0], err)
	}
	return v, nil
}

// Force decodes a tool force payload: either a scalar magnitude or a
// force vector whose first three components are fx fy fz.
func (r Response) Force(cmd string) (float64, error) {
	if err := r.Check(cmd); err != nil {
		return 0, err
	}
	vals, err := r.floats(cmd)
	if err != nil {
		return 0, err
	}
	switch len(vals) {
	case 1:
		return math.Abs(vals[0]), nil
	case 3, 6:
		return math.Sqrt(vals[0]*vals[0] + vals[1]*vals[1] + vals[2]*vals[2]), nil
	}
	return 0, r.protocolError(cmd, "want 1, 3 or 6 fields, got %d", len(vals))
}

// Pose decodes a six-value pose payload.
func (r Response) Pose(cmd string) (robot.Pose, error) {
	if err := r.Check(cmd); err != nil {
		return robot.Pose{}, err
	}
	if len(r.Fields) != 6 {
		return robot.Pose{}, r.protocolError(cmd, "want 6 fields, got %d", len(r.Fields))
	}
	vals, err := r.floats(cmd)
	if err != nil {
		return robot.Pose{}, err
	}
	return robot.Pose(vals), nil
}

func (r Response) floats(cmd string) ([]float64, error) {
	out := make([]float64, len(r.Fields))
	for i, f := range r.Fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, r.protocolError(cmd, "parse %q: %v", f, err)
		}
		out[i] = v
	}
	return out, nil
}
