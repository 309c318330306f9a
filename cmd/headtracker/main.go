// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Command headtracker runs the head tracker and its companion tools.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/urfave/cli/v2"

	"github.com/relabs-tech/head_tracker/internal/app"
	"github.com/relabs-tech/head_tracker/internal/config"
	"github.com/relabs-tech/head_tracker/internal/log"
	"github.com/relabs-tech/head_tracker/internal/osc"
)

const (
	flagConfig   = "config"
	flagLogLevel = "log-level"
	flagPattern  = "pattern"
	flagInterval = "interval"
)

func main() {
	a := &cli.App{
		Name:  "headtracker",
		Usage: "turn headphone head tracking into OSC rotation messages",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "KEY=VALUE configuration file; defaults apply when empty",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Usage: "override LOG_LEVEL (debug, info, warn, error)",
			},
		},
		Before: setup,
		After: func(*cli.Context) error {
			log.Sync()
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "track, send OSC and serve the viewer",
				Action: func(c *cli.Context) error {
					return app.RunTracker(c.Context, config.Get(), log.Named("tracker"))
				},
			},
			{
				Name:  "produce",
				Usage: "publish raw samples from the local source to MQTT",
				Action: func(c *cli.Context) error {
					return app.RunSampleProducer(c.Context, config.Get(), log.Named("producer"))
				},
			},
			{
				Name:  "console",
				Usage: "print poses and status published to MQTT",
				Action: func(c *cli.Context) error {
					return app.RunConsoleMQTT(c.Context, config.Get(), log.Named("console"), os.Stdout)
				},
			},
			{
				Name:  "display",
				Usage: "show poses published to MQTT on an SSD1306 display",
				Action: func(c *cli.Context) error {
					return app.RunDisplay(c.Context, config.Get(), log.Named("display"))
				},
			},
			{
				Name:  "pattern",
				Usage: "preview the OSC messages a pattern produces for simulated motion",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagPattern,
						Value: osc.DefaultSettings.Pattern,
						Usage: "OSC pattern: address followed by tokens",
					},
					&cli.DurationFlag{
						Name:  flagInterval,
						Value: 200 * time.Millisecond,
						Usage: "time between messages",
					},
				},
				Action: func(c *cli.Context) error {
					return app.RunPatternConsole(c.Context, c.String(flagPattern), c.Duration(flagInterval), clock.New(), os.Stdout)
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.RunContext(ctx, os.Args); err != nil {
		log.L().Errorw("fatal", "error", err)
		log.Sync()
		stop()
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger before any command.
func setup(c *cli.Context) error {
	if err := config.InitGlobal(c.String(flagConfig)); err != nil {
		return err
	}
	level := config.Get().LogLevel
	if l := c.String(flagLogLevel); l != "" {
		level = l
	}
	log.Init(level)
	log.L().Debugw("configuration loaded", "source", config.Get().Source, "state_dir", config.Get().StateDir)
	return nil
}
