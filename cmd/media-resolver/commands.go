package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/alanbriolat/media-resolver"
	"github.com/alanbriolat/media-resolver/dispatch"
	"github.com/alanbriolat/media-resolver/download"
	"github.com/alanbriolat/media-resolver/internal/pubsub"
	"github.com/alanbriolat/media-resolver/sink/dir"
	"github.com/alanbriolat/media-resolver/sink/onebot"
)

const reconnectDelay = 5 * time.Second

func resolveCommand(ctx context.Context) *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "resolve links and save the rendered messages locally",
		ArgsUsage: "TEXT...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "target",
				Value: ".",
				Usage: "save messages and media to `DIR`",
			},
			&cli.StringFlag{
				Name:  "style",
				Usage: "override the renderer `STYLE` (default, card, card_only)",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if style := c.String("style"); style != "" {
				cfg.Render.Style = style
			}
			a, err := newApp(cfg, download.WithProgress(newProgressBars().update))
			if err != nil {
				return err
			}
			defer a.Close()
			conv, err := dir.New(c.String("target"))
			if err != nil {
				return err
			}
			log := zap.S()
			var failed int
			for _, text := range c.Args().Slice() {
				err := a.service.Handle(ctx, dispatch.Inbound{Text: text}, conv)
				switch {
				case errors.Is(err, media_resolver.ErrNoMatch):
					log.Warnf("No supported link in %q", text)
				case err != nil:
					failed++
				default:
					log.Infof("Resolved %q into %s", text, conv.Dir)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d inputs failed", failed, c.NArg())
			}
			return nil
		},
	}
}

func serveCommand(ctx context.Context) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "connect to a OneBot v11 websocket and resolve links in incoming messages",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			// The service already logs each match as it starts
			events, err := a.service.SubscribeFiltered(func(e dispatch.Event) bool {
				_, ok := e.(dispatch.MatchFound)
				return !ok
			})
			if err != nil {
				return err
			}
			go logEvents(events)

			log := zap.S().Named("serve")
			for {
				client, err := onebot.Dial(ctx, cfg.OneBotConfig())
				if err == nil {
					err = serveClient(ctx, a, client)
				}
				if ctx.Err() != nil {
					log.Info("Exiting gracefully...")
					return nil
				}
				log.Warnw("disconnected, retrying", "error", err, "delay", reconnectDelay)
				select {
				case <-time.After(reconnectDelay):
				case <-ctx.Done():
					return nil
				}
			}
		},
	}
}

// serveClient handles messages until the connection drops, then waits for the handlers still running.
func serveClient(ctx context.Context, a *app, client *onebot.Client) error {
	defer client.Close()
	workers := int64(a.config.OneBot.Workers)
	if workers < 1 {
		workers = 1
	}
	// Handlers are limited inside the goroutine so the read loop is never blocked behind them
	sem := semaphore.NewWeighted(workers)
	var g errgroup.Group
	defer g.Wait()
	for {
		select {
		case ev, ok := <-client.Messages():
			if !ok {
				return onebot.ErrDisconnected
			}
			g.Go(func() error {
				if err := sem.Acquire(ctx, 1); err != nil {
					return nil
				}
				defer sem.Release(1)
				// Failures are logged and reacted to by the service
				_ = a.service.Handle(ctx, ev.Inbound(), client.Conversation(ev))
				return nil
			})
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func logEvents(events pubsub.ReceiverCloser[dispatch.Event]) {
	log := zap.S().Named("events")
	for event := range events.Receive() {
		switch e := event.(type) {
		case dispatch.Parsed:
			if e.Shared {
				log.Debugw("shared in-flight parse", "input", e.Match().Raw())
			}
		case dispatch.CacheHit:
			log.Debugw("served from cache", "input", e.Match().Raw(), "title", e.Result.Title)
		default:
			log.Debugf("event: %T: %v", event, event.Match().Raw())
		}
	}
}

func platformsCommand(ctx context.Context) *cli.Command {
	return &cli.Command{
		Name:  "platforms",
		Usage: "list enabled platforms and their keywords",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			cfg.History.Enabled = false
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			for _, p := range a.registry.Platforms() {
				fmt.Printf("%s\t%s\n", p.Name, p.DisplayName)
			}
			fmt.Println()
			for _, k := range a.registry.Keywords() {
				fmt.Println(k)
			}
			return nil
		},
	}
}

func historyCommand(ctx context.Context) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "show recently resolved links",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 20, Usage: "show at most `N` records"},
			&cli.StringFlag{Name: "platform", Usage: "only show `PLATFORM`"},
			&cli.BoolFlag{Name: "stats", Usage: "show per-platform totals instead"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			db, err := openHistory(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			defer w.Flush()
			if c.Bool("stats") {
				stats, err := db.Stats(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "PLATFORM\tTOTAL\tFAILED\tCACHED")
				for _, s := range stats {
					fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", s.Platform, s.Total, s.Failed, s.Cached)
				}
				return nil
			}
			records, err := db.Recent(ctx, c.Int("limit"), c.String("platform"))
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "TIME\tPLATFORM\tINPUT\tTITLE\tRESULT")
			for _, r := range records {
				status := "ok"
				if r.Cached {
					status = "cached"
				}
				if !r.Succeeded() {
					status = r.Error
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.CreatedAt.Local().Format(time.DateTime), r.Platform, r.Input, r.Title, status)
			}
			return nil
		},
	}
}

func credentialsCommand(ctx context.Context) *cli.Command {
	return &cli.Command{
		Name:  "credentials",
		Usage: "manage stored platform cookies",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list platforms with a stored cookie",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					db, err := openCredentials(cfg)
					if err != nil {
						return err
					}
					defer db.Close()
					creds, err := db.List()
					if err != nil {
						return err
					}
					for _, cred := range creds {
						fmt.Printf("%s\tsaved %s\n", cred.Platform, cred.SavedAt.Local().Format(time.DateTime))
					}
					return nil
				},
			},
			{
				Name:      "delete",
				Usage:     "forget the stored cookie for a platform",
				ArgsUsage: "PLATFORM",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.Exit("expected exactly one platform", 1)
					}
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					db, err := openCredentials(cfg)
					if err != nil {
						return err
					}
					defer db.Close()
					return db.Delete(c.Args().First())
				},
			},
		},
	}
}

func cleanCommand(ctx context.Context) *cli.Command {
	return &cli.Command{
		Name:  "clean",
		Usage: "delete cached media and prune old history",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "history-days", Value: 30, Usage: "keep `N` days of history; 0 keeps everything"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			log := zap.S()
			entries, err := os.ReadDir(cfg.CacheDir)
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			for _, e := range entries {
				if err := os.RemoveAll(filepath.Join(cfg.CacheDir, e.Name())); err != nil {
					return err
				}
			}
			log.Infof("Removed %d cached files from %s", len(entries), cfg.CacheDir)

			days := c.Int("history-days")
			if days <= 0 || !cfg.History.Enabled {
				return nil
			}
			db, err := openHistory(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			removed, err := db.Prune(ctx, time.Now().AddDate(0, 0, -days))
			if err != nil {
				return err
			}
			log.Infof("Pruned %d history records", removed)
			return nil
		},
	}
}
