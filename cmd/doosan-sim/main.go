package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"

	"github.com/snoeks/doosan/pkg/robot"
	"github.com/snoeks/doosan/pkg/simulator"
)

type Options struct {
	Listen    string        `short:"l" long:"listen" default:"127.0.0.1:56666" description:"Address to listen on"`
	Settle    time.Duration `long:"settle" default:"500ms" description:"Duration of every simulated move"`
	ContactZ  float64       `long:"contact-z" description:"Height of a simulated surface in mm (disabled when zero)"`
	Stiffness float64       `long:"stiffness" default:"0.5" description:"Surface stiffness in N/mm"`
	Safety    bool          `long:"safety" description:"Start with the safety switch enabled"`
	Confirm   bool          `long:"confirm" description:"Hold the operator confirm button pressed"`
	Buffer    bool          `long:"buffer-full" description:"Report the armrest buffer as full"`
	LogLevel  string        `long:"log-level" default:"info" description:"Log level"`
}

func main() {
	var opts Options
	if _, err := flags.Parse(&opts); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	logger := logrus.New()
	lvl, err := logrus.ParseLevel(strings.ToLower(opts.LogLevel))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	cfg := robot.DefaultConfig()
	home, _ := cfg.Waypoints.Pose("home")

	r := simulator.NewRobot(simulator.Options{
		Pose:      home,
		Settle:    opts.Settle,
		Contact:   opts.ContactZ != 0,
		ContactZ:  opts.ContactZ,
		Stiffness: opts.Stiffness,
		Outputs:   cfg.IO.DigitalOutputs,
		Inputs:    cfg.IO.DigitalInputs,
	})
	r.SetInput(cfg.IO.SafetyInput, opts.Safety)
	if opts.Confirm {
		r.SetInput(cfg.IO.ConfirmInputs[0], true)
	}
	r.SetInput(cfg.IO.BufferInput, opts.Buffer)

	srv, err := simulator.Listen(opts.Listen, r, logger)
	if err != nil {
		logger.WithError(err).Fatal("listen")
	}
	logger.WithFields(logrus.Fields{
		"addr":   srv.Addr(),
		"settle": opts.Settle,
		"safety": opts.Safety,
	}).Info("simulated controller ready")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.WithField("commands", len(srv.Lines())).Info("shutting down")
	if err := srv.Close(); err != nil {
		logger.WithError(err).Warn("close")
	}
}
