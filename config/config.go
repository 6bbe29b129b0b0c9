// Package config loads the application settings from YAML over built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/r3labs/diff/v3"
	"gopkg.in/yaml.v3"

	"github.com/alanbriolat/media-resolver"
	"github.com/alanbriolat/media-resolver/download"
	"github.com/alanbriolat/media-resolver/parser"
	"github.com/alanbriolat/media-resolver/parsers"
	"github.com/alanbriolat/media-resolver/parsers/bilibili"
	"github.com/alanbriolat/media-resolver/render"
	"github.com/alanbriolat/media-resolver/sink/onebot"
	"github.com/alanbriolat/media-resolver/ytdlp"
)

const appName = "media-resolver"

var ErrInvalid = errors.New("invalid config")

type Download struct {
	// MaxSizeMB is the per-file ceiling in MiB; 0 means unlimited.
	MaxSizeMB    int64         `yaml:"max_size_mb"`
	Timeout      time.Duration `yaml:"timeout"`
	QuickTimeout time.Duration `yaml:"quick_timeout"`
	FFmpegPath   string        `yaml:"ffmpeg_path"`
	ForceH264    bool          `yaml:"force_h264"`
}

type Media struct {
	Mode        string        `yaml:"mode"`
	MaxDuration time.Duration `yaml:"max_duration"`
}

type Render struct {
	Style            string `yaml:"style"`
	FontPath         string `yaml:"font_path"`
	ForwardContents  bool   `yaml:"forward_contents"`
	ForwardThreshold int    `yaml:"forward_threshold"`
	AppendURL        bool   `yaml:"append_url"`
}

type Bilibili struct {
	Cookie     string `yaml:"cookie"`
	VideoCodec string `yaml:"video_codec"`
}

type YTDLP struct {
	Path        string `yaml:"path"`
	Proxy       string `yaml:"proxy"`
	CookiesFile string `yaml:"cookies_file"`
}

type History struct {
	Enabled bool `yaml:"enabled"`
	// Path defaults to history.db in the data directory.
	Path string `yaml:"path"`
}

type OneBot struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
	// Workers bounds how many messages are resolved at once.
	Workers int `yaml:"workers"`
}

type Config struct {
	CacheDir          string   `yaml:"cache_dir"`
	DataDir           string   `yaml:"data_dir"`
	CacheSize         int      `yaml:"cache_size"`
	DisabledPlatforms []string `yaml:"disabled_platforms"`
	Download          Download `yaml:"download"`
	Media             Media    `yaml:"media"`
	Render            Render   `yaml:"render"`
	Bilibili          Bilibili `yaml:"bilibili"`
	YTDLP             YTDLP    `yaml:"ytdlp"`
	History           History  `yaml:"history"`
	OneBot            OneBot   `yaml:"onebot"`
}

func userDir(f func() (string, error)) string {
	if dir, err := f(); err == nil {
		return filepath.Join(dir, appName)
	}
	return filepath.Join(os.TempDir(), appName)
}

func Default() Config {
	return Config{
		CacheDir:  userDir(os.UserCacheDir),
		DataDir:   userDir(os.UserConfigDir),
		CacheSize: media_resolver.DefaultCacheSize,
		Download: Download{
			MaxSizeMB:    download.DefaultMaxSize >> 20,
			Timeout:      download.DefaultTimeout,
			QuickTimeout: download.DefaultQuickTimeout,
			FFmpegPath:   "ffmpeg",
		},
		Media: Media{
			Mode:        string(parser.MediaAll),
			MaxDuration: 8 * time.Minute,
		},
		Render: Render{
			Style:            render.StyleDefault,
			ForwardThreshold: render.DefaultForwardThreshold,
			AppendURL:        true,
		},
		Bilibili: Bilibili{VideoCodec: "avc"},
		YTDLP:    YTDLP{Path: "yt-dlp"},
		History:  History{Enabled: true},
		OneBot: OneBot{
			URL:     "ws://127.0.0.1:3001",
			Timeout: onebot.DefaultTimeout,
			Workers: 4,
		},
	}
}

// Load reads a YAML file over Default(), expanding ${VAR} references first. An empty path gives the defaults.
func Load(path string) (Config, error) {
	config := Default()
	if path == "" {
		return config, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := Parse(data, &config); err != nil {
		return config, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return config, nil
}

// Parse decodes YAML over the existing contents of config and validates the result.
func Parse(data []byte, config *Config) error {
	expanded := os.ExpandEnv(string(data))
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return config.Validate()
}

func (c *Config) Validate() error {
	switch parser.MediaMode(c.Media.Mode) {
	case parser.MediaAll, parser.MediaImageOnly, parser.MediaNone:
	default:
		return fmt.Errorf("%w: media.mode %q", ErrInvalid, c.Media.Mode)
	}
	switch c.Render.Style {
	case "", render.StyleDefault, render.StyleCard, render.StyleCardOnly:
	default:
		return fmt.Errorf("%w: render.style %q", ErrInvalid, c.Render.Style)
	}
	if c.CacheSize < 1 {
		return fmt.Errorf("%w: cache_size must be at least 1", ErrInvalid)
	}
	if c.Download.MaxSizeMB < 0 || c.Media.MaxDuration < 0 {
		return fmt.Errorf("%w: limits cannot be negative", ErrInvalid)
	}
	if c.CacheDir == "" {
		return fmt.Errorf("%w: cache_dir is required", ErrInvalid)
	}
	return nil
}

func (c *Config) DownloadConfig() download.Config {
	return download.Config{
		CacheDir:     c.CacheDir,
		MaxSize:      c.Download.MaxSizeMB << 20,
		Timeout:      c.Download.Timeout,
		QuickTimeout: c.Download.QuickTimeout,
		FFmpegPath:   c.Download.FFmpegPath,
		ForceH264:    c.Download.ForceH264,
	}
}

func (c *Config) YTDLPConfig() ytdlp.Config {
	return ytdlp.Config{
		Path:        c.YTDLP.Path,
		CacheDir:    c.CacheDir,
		MaxSize:     c.Download.MaxSizeMB << 20,
		Timeout:     c.Download.Timeout,
		Proxy:       c.YTDLP.Proxy,
		CookiesFile: c.YTDLP.CookiesFile,
	}
}

func (c *Config) ParserOptions() parser.Options {
	return parser.Options{
		MediaMode:   parser.MediaMode(c.Media.Mode),
		MaxDuration: c.Media.MaxDuration,
	}
}

func (c *Config) ParserConfigs() parsers.Configs {
	return parsers.Configs{
		Bilibili: bilibili.Config{Cookie: c.Bilibili.Cookie, VideoCodec: c.Bilibili.VideoCodec},
	}
}

func (c *Config) RenderOptions() render.Options {
	return render.Options{
		ForwardContents:  c.Render.ForwardContents,
		ForwardThreshold: c.Render.ForwardThreshold,
		AppendURL:        c.Render.AppendURL,
	}
}

func (c *Config) OneBotConfig() onebot.Config {
	return onebot.Config{URL: c.OneBot.URL, Token: c.OneBot.Token, Timeout: c.OneBot.Timeout}
}

func (c *Config) CredentialsPath() string {
	return filepath.Join(c.DataDir, "credentials.db")
}

func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(c.DataDir, "history.db")
}

var secretFields = []string{"Token", "Cookie"}

// Changes describes every setting that differs from Default(), one "path: old -> new" line each, with secrets masked.
func Changes(c Config) ([]string, error) {
	changelog, err := diff.Diff(Default(), c)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(changelog))
	for _, change := range changelog {
		from, to := change.From, change.To
		for _, field := range secretFields {
			if change.Path[len(change.Path)-1] == field {
				from, to = mask(from), mask(to)
			}
		}
		lines = append(lines, fmt.Sprintf("%s: %v -> %v", strings.Join(change.Path, "."), from, to))
	}
	return lines, nil
}

func mask(v any) any {
	if s, ok := v.(string); ok && s != "" {
		return "***"
	}
	return v
}
