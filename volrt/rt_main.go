package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/gekko3d/soilvol"
	"github.com/urfave/cli/v3"
)

func init() {
	runtime.LockOSThread()
}

var globals struct {
	configPath string
	debug      bool
}

func main() {
	root := &cli.Command{
		Name:  "volrt",
		Usage: "view and package soil-scan volumes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Usage:       "path to config.yaml",
				Value:       soilvol.DefaultConfigPath(),
				Destination: &globals.configPath,
			},
			&cli.BoolFlag{
				Name:        "debug",
				Usage:       "enable debug logging",
				Destination: &globals.debug,
			},
		},
		Commands: []*cli.Command{
			viewCommand(),
			inspectCommand(),
			packCommand(),
			serveCommand(),
		},
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "volrt:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies --debug on top.
func loadConfig(cmd *cli.Command) (soilvol.Config, *soilvol.DefaultLogger, error) {
	cfg, err := soilvol.LoadConfig(globals.configPath)
	if err != nil {
		return cfg, nil, err
	}
	if cmd.IsSet("debug") {
		cfg.Debug = globals.debug
	}
	return cfg, soilvol.NewDefaultLogger("volrt", cfg.Debug), nil
}
