package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/rhuss/sense/pkg/config"
)

var validateCmd = &cli.Command{
	Name:    "validate",
	Aliases: []string{"lint"},
	Usage:   "Validate a configuration file",
	Flags: []cli.Flag{
		configFlag,
	},
	Action: validateAction,
}

func validateAction(_ context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	if configPath == "" && cmd.Args().Len() > 0 {
		configPath = cmd.Args().Get(0)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if configPath == "" {
		configPath = "(defaults and environment)"
	}
	fmt.Fprintf(cmd.Root().Writer, "Configuration %s is valid\n", configPath)
	renderConfigSummary(cmd.Root().Writer, cfg)
	return nil
}

// renderConfigSummary prints the served layout.
func renderConfigSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config Summary:")
	fmt.Fprintf(w, "- Port: %d\n", cfg.Server.Port)
	fmt.Fprintf(w, "- Base path: %s\n", cfg.Server.BasePath)
	fmt.Fprintf(w, "- Storage: %s\n", cfg.Storage.Type)
	fmt.Fprintf(w, "- Auth: %s\n", cfg.Auth.Type)
	for _, ws := range cfg.Workspaces {
		names := make([]string, 0, len(ws.Collections))
		for _, col := range ws.Collections {
			names = append(names, col.Name)
		}
		fmt.Fprintf(w, "- Workspace %q: %s\n", ws.Title, strings.Join(names, ", "))
	}
}
