package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/alanbriolat/media-resolver"
	"github.com/alanbriolat/media-resolver/config"
	"github.com/alanbriolat/media-resolver/dispatch"
	"github.com/alanbriolat/media-resolver/download"
	"github.com/alanbriolat/media-resolver/internal/credstore"
	"github.com/alanbriolat/media-resolver/internal/history"
	"github.com/alanbriolat/media-resolver/parser"
	"github.com/alanbriolat/media-resolver/parsers"
	"github.com/alanbriolat/media-resolver/render"
	"github.com/alanbriolat/media-resolver/render/card"
	"github.com/alanbriolat/media-resolver/ytdlp"
)

// app holds everything built from the configuration.
type app struct {
	config      config.Config
	log         *zap.SugaredLogger
	credentials *credstore.Database
	history     *history.DB
	registry    *media_resolver.Registry
	service     *dispatch.Service
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cfg, err
	}
	log := zap.S().Named("config")
	changes, err := config.Changes(cfg)
	if err != nil {
		log.Warnw("failed to diff config against defaults", "error", err)
	}
	for _, change := range changes {
		log.Infof("setting %s", change)
	}
	return cfg, nil
}

func openHistory(cfg config.Config) (*history.DB, error) {
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return nil, err
	}
	return history.Open(cfg.HistoryPath())
}

func openCredentials(cfg config.Config) (*credstore.Database, error) {
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return nil, err
	}
	return credstore.Open(cfg.CredentialsPath())
}

func newApp(cfg config.Config, opts ...download.Option) (_ *app, err error) {
	a := &app{config: cfg, log: zap.S().Named("app")}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.credentials, err = openCredentials(cfg); err != nil {
		return nil, fmt.Errorf("failed to open credentials: %w", err)
	}
	if cfg.History.Enabled {
		if a.history, err = openHistory(cfg); err != nil {
			return nil, err
		}
	}

	downloader, err := download.New(cfg.DownloadConfig(), opts...)
	if err != nil {
		return nil, err
	}
	deps := parser.Deps{
		Downloader:  downloader,
		Credentials: a.credentials,
		Options:     cfg.ParserOptions(),
	}
	if yt := ytdlp.New(cfg.YTDLPConfig()); yt.Available() {
		deps.YTDLP = yt
	}

	a.registry = media_resolver.NewRegistry(cfg.DisabledPlatforms...)
	if err = parsers.Register(a.registry, deps, cfg.ParserConfigs()); err != nil {
		return nil, err
	}

	var cardFunc render.CardFunc
	if cfg.Render.Style == render.StyleCard || cfg.Render.Style == render.StyleCardOnly {
		cardFunc = card.New(cfg.Render.FontPath).Render
	}
	renderer, err := render.Select(cfg.Render.Style, cfg.RenderOptions(), cfg.CacheDir, cardFunc)
	if err != nil {
		return nil, err
	}

	serviceConfig := dispatch.Config{
		Registry:  a.registry,
		Renderer:  renderer,
		CacheSize: cfg.CacheSize,
	}
	if a.history != nil {
		serviceConfig.History = a.history
	}
	a.service = dispatch.New(serviceConfig)
	return a, nil
}

func (a *app) Close() {
	var result *multierror.Error
	if a.service != nil {
		a.service.Close()
	}
	if a.history != nil {
		result = multierror.Append(result, a.history.Close())
	}
	if a.credentials != nil {
		result = multierror.Append(result, a.credentials.Close())
	}
	if err := result.ErrorOrNil(); err != nil {
		a.log.Warnw("failed to close", "error", err)
	}
}

// progressBars shows one byte progress bar per file being downloaded.
type progressBars struct {
	mu   sync.Mutex
	bars map[string]*progressbar.ProgressBar
}

func newProgressBars() *progressBars {
	return &progressBars{bars: make(map[string]*progressbar.ProgressBar)}
}

func (p *progressBars) update(name string, downloaded int64, expected int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	bar, ok := p.bars[name]
	if !ok {
		bar = progressbar.DefaultBytes(expected, name)
		p.bars[name] = bar
	}
	if expected > 0 && bar.GetMax() != int(expected) {
		bar.ChangeMax(int(expected))
	}
	_ = bar.Set(int(downloaded))
	if expected > 0 && downloaded >= expected {
		_ = bar.Finish()
		delete(p.bars, name)
	}
}
