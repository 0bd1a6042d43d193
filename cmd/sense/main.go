// Command sense runs the AtomPub server.
//
// Configuration is read from a YAML file (--config, SENSE_CONFIG,
// ./config.yaml or /etc/sense/config.yaml) and SENSE_* environment
// variables. See pkg/config for the full list.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

// Version is set during build using ldflags.
var Version = "dev"

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "sense",
		Version: Version,
		Usage:   "AtomPub publishing server",
		Commands: []*cli.Command{
			serveCmd,
			validateCmd,
			versionCmd,
		},
	}
}

var versionCmd = &cli.Command{
	Name:  "version",
	Usage: "Print the version information",
	Action: func(_ context.Context, cmd *cli.Command) error {
		fmt.Fprintf(cmd.Root().Writer, "sense version %s\n", cmd.Root().Version)
		return nil
	},
}

var configFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "Path to the YAML configuration file",
}
