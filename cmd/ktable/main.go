// Command ktable runs a standalone Kademlia routing-table node: it
// listens for discovery UDP traffic, answers Ping/FindNode, and serves
// its bucket occupancy as Prometheus metrics.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/urfave/cli.v1"
)

var app = &cli.App{
	Name:        filepath.Base(os.Args[0]),
	Usage:       "Kademlia routing-table node",
	HideVersion: true,
	Writer:      os.Stdout,
}

func init() {
	app.Commands = []cli.Command{
		genkeyCommand,
		runCommand,
		neighboursCommand,
	}
	app.CommandNotFound = func(ctx *cli.Context, cmd string) {
		fmt.Fprintf(os.Stderr, "no such command: %s\n", cmd)
		os.Exit(1)
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
