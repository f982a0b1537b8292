package main

import (
	"context"
	"fmt"
	"os"

	cliplugins "drilltrack/internal/cli_plugins"
	"drilltrack/pkg/cli"
)

func main() {
	c := cli.NewCLI("drilltrack", "Survey data relay: LAN discovery and HTTP ingestion")
	c.Root().PersistentFlags().StringP("config", "c", "", "Path to config file (default $CONFIG_PATH)")

	c.RegisterPlugin(cliplugins.NewServeCommand())
	c.RegisterPlugin(cliplugins.NewMigrateCommand())
	c.RegisterPlugin(cliplugins.NewDiscoverCommand())

	if err := c.Run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
