// Package doosan drives a Doosan collaborative robot cell over the TCP line
// protocol served by the gateway script on the controller.
//
// The cell picks and places buckles, armrests and seatbelts. Armrests are
// picked with a force-triggered sensor move; every run waits for the safety
// switch and an operator confirmation before the first motion.
//
// # Installation
//
//	go install github.com/snoeks/doosan/cmd/doosan@latest
//
// # Usage
//
// First, run setup to enter the robot address and motion parameters:
//
//	doosan setup
//
// Then run a product sequence:
//
//	doosan run --sequence armrests
//
// Without hardware, start the simulated controller and point the config at it:
//
//	doosan-sim --safety --confirm --buffer-full
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/doosan: CLI with setup, run, home, io, params and monitor commands
//   - cmd/doosan-info: Gateway status and stack light identification
//   - cmd/doosan-sim: Simulated controller for development
//   - pkg/gateway: Wire codec, connection, status poller and client
//   - pkg/robot: Poses, waypoints, configuration and the safety gate
//   - pkg/sequence: Product sequences, stop handling and sensor moves
//   - pkg/telemetry: Fixed-rate tool force and pose sampling
//   - pkg/simulator: In-memory controller speaking the line protocol
package doosan
