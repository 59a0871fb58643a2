package main

import (
	"context"

	"github.com/gekko3d/soilvol/volrt/rt/assetsrv"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var (
		addr string
		dir  string
	)
	return &cli.Command{
		Name:  "serve",
		Usage: "serve volume assets over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "listen address", Destination: &addr},
			&cli.StringFlag{Name: "dir", Usage: "asset directory", Value: ".", Destination: &dir},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.IsSet("addr") {
				cfg.ServeAddress = addr
			}

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			assetsrv.NewServer(dir, logger).Register(e)

			logger.Infof("serving %s on http://%s", dir, cfg.ServeAddress)
			sc := echo.StartConfig{Address: cfg.ServeAddress}
			return sc.Start(ctx, e)
		},
	}
}
