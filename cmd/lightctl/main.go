package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"
)

var (
	app = &cli.App{
		Name:   filepath.Base(os.Args[0]),
		Usage:  "publish and watch traffic light updates",
		Writer: os.Stdout,
		Flags:  []cli.Flag{serverFlag},
	}
)

func init() {
	var stop context.CancelFunc
	app.Before = func(ctx *cli.Context) error {
		ctx.Context, stop = signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
		return nil
	}
	app.After = func(ctx *cli.Context) error {
		if stop != nil {
			stop()
		}
		return nil
	}
	app.CommandNotFound = func(ctx *cli.Context, cmd string) {
		fmt.Fprintf(os.Stderr, "No such command: %s\n", cmd)
		os.Exit(1)
	}
	app.Commands = []*cli.Command{
		publishCommand,
		watchCommand,
	}
}

func main() {
	exit(app.RunContext(context.Background(), os.Args))
}

func exit(err error) {
	if err == nil {
		os.Exit(0)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
