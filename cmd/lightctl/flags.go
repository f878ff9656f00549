package main

import (
	"time"

	"github.com/urfave/cli/v2"
)

var (
	serverFlag = &cli.StringFlag{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "base URL of the relay",
		Value:   "http://localhost:8080",
		EnvVars: []string{"LIGHTCTL_SERVER"},
	}
	timeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Usage: "request timeout",
		Value: 5 * time.Second,
	}
	countFlag = &cli.IntFlag{
		Name:    "count",
		Aliases: []string{"n"},
		Usage:   "exit after this many updates (0 watches forever)",
	}
	noColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "disable colored output",
	}
)
