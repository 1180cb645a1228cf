package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"

	"github.com/snoeks/doosan/pkg/gateway"
	"github.com/snoeks/doosan/pkg/robot"
)

type Options struct {
	Config   string `short:"c" long:"config" default:"doosan.yaml" description:"Configuration file (.yaml or .json)"`
	LogLevel string `long:"log-level" description:"Log level: trace, debug, info, warn, error or off (overrides config)"`
	LogFile  string `long:"log-file" description:"Write logs to this file instead of stderr"`

	Setup   SetupCommand   `command:"setup" description:"Configure the robot address and motion parameters"`
	Run     RunCommand     `command:"run" description:"Run a product sequence"`
	Home    HomeCommand    `command:"home" description:"Apply motion parameters and move to home"`
	IO      IOCommand      `command:"io" description:"Read and write digital I/O"`
	Params  ParamsCommand  `command:"params" description:"Show or change motion parameters"`
	Monitor MonitorCommand `command:"monitor" description:"Chart live tool force and TCP height"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "Doosan cell control: sequences, I/O and parameters over the robot gateway"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

// loadConfig reads the configuration named by --config.
func loadConfig() (*robot.Config, error) {
	cfg, err := robot.LoadConfigFrom(opts.Config)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", opts.Config, err)
	}
	return cfg, nil
}

// newLogger builds the process logger. quiet discards output unless a log
// file is given, for commands that own the terminal.
func newLogger(cfg *robot.Config, quiet bool) (*logrus.Logger, error) {
	logger := logrus.New()

	level := cfg.LogLevel
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	if level == "" {
		level = "info"
	}

	switch {
	case level == "off" || level == "none":
		logger.SetOutput(io.Discard)
	case opts.LogFile != "":
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		logger.SetOutput(f)
	case quiet:
		logger.SetOutput(io.Discard)
	default:
		logger.SetOutput(os.Stderr)
	}

	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		ForceColors:     opts.LogFile == "",
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return logger, nil
}

// connect loads the config, builds the logger and opens the gateway.
func connect(ctx context.Context, cmd string, quiet bool) (*robot.Config, *gateway.Client, logrus.FieldLogger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := newLogger(cfg, quiet)
	if err != nil {
		return nil, nil, nil, err
	}
	log := logger.WithField("cmd", cmd)

	client := gateway.New(gateway.OptionsFromConfig(cfg, log))
	if err := client.Connect(ctx); err != nil {
		return nil, nil, nil, err
	}
	log.WithField("addr", client.Addr()).Debug("gateway ready")
	return cfg, client, log, nil
}
