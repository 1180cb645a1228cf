package sequence

import (
	"context"
	"fmt"

	"github.com/snoeks/doosan/pkg/robot"
)

// seatbeltSlots is the number of belts placed per seatbelt cycle.
const seatbeltSlots = 3

// bucklesInsertSpeed is the operation speed used to push a buckle into its holder.
const bucklesInsertSpeed = 60

// ArmrestPick is the sensor move that picks an armrest cover from the buffer.
var ArmrestPick = SensorMove{
	Direction:       robot.ZMinus,
	PreDistance:     150,
	ForceLimit:      7,
	ReturnDirection: robot.YPlus,
	ReturnDistance:  200,
}

func (p *Program) bucklesSequence() []Step {
	gripper := p.cfg.IO.GripperOutput
	return []Step{
		p.moveL(WaypointHome),
		p.moveL("buckle_between"),
		p.moveL("buckle_aside"),
		p.moveL("buckle_pick"),
		p.output("gripper", gripper, true),
		p.moveL("buckle_move_out"),
		p.moveL("buckle_in_front"),
		p.speed(bucklesInsertSpeed),
		p.moveL("buckle_in_holder"),
		p.restoreSpeed(),
		p.output("gripper", gripper, false),
		p.moveL("buckle_clear"),
		p.moveL(WaypointHome),
	}
}

func (p *Program) armrestSequence() []Step {
	suction := p.cfg.IO.SuctionOutput
	pick := ArmrestPick
	pick.Output = suction
	return []Step{
		p.bufferCheck(),
		p.moveJ(WaypointHome),
		p.moveL("armrest_pick"),
		p.sensor("armrest_pick", pick),
		p.moveJ(WaypointHome),
		p.output("suction", suction, false),
	}
}

func (p *Program) seatbeltsSequence() []Step {
	gripper := p.cfg.IO.GripperOutput
	steps := []Step{
		p.output("gripper", gripper, false),
		p.moveJ(WaypointHome),
	}
	for slot := 1; slot <= seatbeltSlots; slot++ {
		steps = append(steps, p.seatbeltSlot(slot)...)
	}
	return append(steps, p.moveJ(WaypointHome))
}

// seatbeltSlot picks one belt and threads it through the door frame into its holder.
func (p *Program) seatbeltSlot(slot int) []Step {
	gripper := p.cfg.IO.GripperOutput
	wp := func(name string) string { return fmt.Sprintf("seatbelt%d_%s", slot, name) }

	doorframe := p.moveL(wp("doorframe"))
	if slot == seatbeltSlots {
		// The last holder is reached around the pillar in joint space.
		doorframe = p.moveJ(wp("doorframe"))
	}

	return []Step{
		p.moveJ(wp("above_pickup")),
		p.moveL(wp("pickup")),
		p.output("gripper", gripper, true),
		p.moveL(wp("move_up")),
		p.moveJ(wp("move_up_2")),
		p.moveJ(wp("passthrough")),
		doorframe,
		p.moveL(wp("half")),
		p.moveL(wp("above_holder")),
		p.moveL(wp("in_holder")),
		p.output("gripper", gripper, false),
		p.moveL(wp("pre_exit")),
		p.moveL(wp("exit")),
	}
}

func (p *Program) allSequence() []Step {
	var steps []Step
	steps = append(steps, p.bucklesSequence()...)
	steps = append(steps, p.armrestSequence()...)
	return append(steps, p.seatbeltsSequence()...)
}

// bufferCheck asks the operator to refill the armrest cover buffer when its
// sensor reports it empty.
func (p *Program) bufferCheck() Step {
	in, out := p.cfg.IO.BufferInput, p.cfg.IO.BufferRequestOutput
	return Step{
		Name: "check armrest buffer",
		Run: func(ctx context.Context) error {
			full, err := p.client.ReadDigitalInput(ctx, in)
			if err != nil {
				return err
			}
			if full {
				p.logf("Buffer filled")
			} else {
				if err := p.client.SetDigitalOutput(ctx, out, true); err != nil {
					return err
				}
				p.logf("Armrest cover buffer is empty")
				if err := p.WaitForOperatorConfirm(ctx); err != nil {
					return err
				}
			}
			return p.client.SetDigitalOutput(ctx, out, false)
		},
	}
}
