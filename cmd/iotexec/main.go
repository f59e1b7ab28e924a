package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/devicekit/iotexec/envelope"
	"github.com/devicekit/iotexec/executor"
	"github.com/devicekit/iotexec/service"
	"github.com/devicekit/iotexec/transport/ws"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := &cli.App{
		Name:  "iotexec",
		Usage: "execute cloud-to-device commands and stream their output back",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable verbose diagnostic output.",
			},
			&cli.StringFlag{
				Name:  "listen-addr",
				Usage: "The address for the transport endpoint to listen on.",
				Value: "0.0.0.0:7070",
			},
			&cli.StringFlag{
				Name:  "shell",
				Usage: "The command interpreter to execute commands with.",
				Value: executor.DefaultShell,
			},
		},
		Action: func(cCtx *cli.Context) error {
			verbose := cCtx.Bool("verbose")
			listenAddr := cCtx.String("listen-addr")
			shell := cCtx.String("shell")

			var logger *zap.Logger
			var err error
			if verbose {
				logger, err = zap.NewDevelopment()
			} else {
				logger, err = zap.NewProduction()
			}
			if err != nil {
				return fmt.Errorf("building logger: %w", err)
			}

			lis := ws.NewListener(
				ws.WithLogger(logger),
				ws.WithListenAddr(listenAddr),
				ws.WithPendingMessages(envelope.MaxPendingMessages),
			)
			// a transport setup failure is the only fatal error
			err = lis.Start()
			if err != nil {
				return fmt.Errorf("starting transport: %w", err)
			}
			logger.Sugar().Infof("listening on %s", lis.Addr())

			svc := service.New(lis,
				service.WithLogger(logger),
				service.WithExecutor(executor.New(
					executor.WithLogger(logger),
					executor.WithShell(shell),
				)),
			)

			ctx, stop := signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			err = svc.Run(ctx)
			lis.Close()
			if ctx.Err() != nil {
				// terminated by signal: the in-flight message, if any, is
				// abandoned, and the exit status is non-zero
				return cli.Exit("terminated", 1)
			}
			return err
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
