package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/alanbriolat/media-resolver/async"
)

func main() {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.Level.SetLevel(zapcore.InfoLevel)
	logger, err := config.Build()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logger.Sync()
	zap.RedirectStdLog(logger)
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "media-resolver",
		Usage: "resolve social media links into chat messages",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "load settings from `FILE`",
				EnvVars: []string{"MEDIA_RESOLVER_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				config.Level.SetLevel(zapcore.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			resolveCommand(ctx),
			serveCommand(ctx),
			platformsCommand(ctx),
			historyCommand(ctx),
			credentialsCommand(ctx),
			cleanCommand(ctx),
		},
		HideHelpCommand: true,
	}

	result := async.Run(func() error { return app.RunContext(ctx, os.Args) })

	select {
	case err = <-result:
	case <-ctx.Done():
		stop()
		err = <-result
	}
	if err != nil {
		logger.Fatal(err.Error())
	}
}
