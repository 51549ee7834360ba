package main

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/vultrsync/internal/app"
	"github.com/dokzlo13/vultrsync/internal/config"
)

var version = "dev"

const defaultConfigPath = "vultrsync.yaml"

// Globals are flags shared by every command. Zero values mean "not given".
type Globals struct {
	Config           string `help:"Path to configuration file." short:"c" default:"vultrsync.yaml" env:"VULTRSYNC_CONFIG"`
	APIEndpoint      string `help:"Vultr API endpoint (env VULTR_API_ENDPOINT)." name:"api-endpoint"`
	APIKey           string `help:"Vultr API key (env VULTR_API_KEY)." name:"api-key"`
	APITimeout       string `help:"Per-request timeout, seconds or duration (env VULTR_API_TIMEOUT)." name:"api-timeout"`
	APIRetries       int    `help:"Attempts per request on HTTP 429 (env VULTR_API_RETRIES)." name:"api-retries"`
	APIRetryMaxDelay string `help:"Cap for the 429 backoff, seconds or duration (env VULTR_API_RETRY_MAX_DELAY)." name:"api-retry-max-delay"`
	DryRun           bool   `help:"Report what would change without changing anything." name:"dry-run"`
	Check            bool   `help:"Alias for --dry-run." hidden:""`
	LogLevel         string `help:"Log level: debug, info, warn, error." name:"log-level"`
	LogJSON          bool   `help:"Log as JSON." name:"log-json"`
	Ledger           string `help:"Path of the SQLite audit ledger (empty disables)."`
}

// CLI is the command surface.
type CLI struct {
	Globals

	Version kong.VersionFlag `help:"Print version and exit."`

	Reconcile ReconcileCmd `cmd:"" help:"Reconcile one resource."`
	Apply     ApplyCmd     `cmd:"" help:"Reconcile every resource declared in a manifest."`
	Info      InfoCmd      `cmd:"" help:"List every resource of a kind."`
	Kinds     KindsCmd     `cmd:"" help:"List supported resource kinds and their fields."`
	History   HistoryCmd   `cmd:"" help:"Show recent runs from the audit ledger."`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("vultrsync"),
		kong.Description("Declarative reconciliation of Vultr resources."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	if err := kctx.Run(&cli.Globals); err != nil {
		log.Error().Err(err).Msg("vultrsync failed")
		os.Exit(1)
	}
}

// load resolves configuration: flags > environment > file > defaults.
// A missing default config file is not an error.
func (g *Globals) load() (*config.Config, error) {
	cfg, err := config.Load(g.Config)
	if errors.Is(err, fs.ErrNotExist) && g.Config == defaultConfigPath {
		cfg = config.Default()
		err = cfg.ApplyEnv()
	}
	if err != nil {
		return nil, err
	}

	if err := g.override(cfg); err != nil {
		return nil, err
	}
	if cfg.API.UserAgent == "" {
		cfg.API.UserAgent = "vultrsync/" + version
	}

	setupLogging(cfg.Log.Level, cfg.Log.JSON, cfg.Log.Colors)
	return cfg, nil
}

func (g *Globals) override(cfg *config.Config) error {
	if g.APIEndpoint != "" {
		cfg.API.Endpoint = g.APIEndpoint
	}
	if g.APIKey != "" {
		cfg.API.Key = g.APIKey
	}
	if g.APITimeout != "" {
		d, err := config.ParseDuration(g.APITimeout)
		if err != nil {
			return err
		}
		cfg.API.Timeout = config.Duration(d)
	}
	if g.APIRetries != 0 {
		cfg.API.Retries = g.APIRetries
	}
	if g.APIRetryMaxDelay != "" {
		d, err := config.ParseDuration(g.APIRetryMaxDelay)
		if err != nil {
			return err
		}
		cfg.API.RetryMaxDelay = config.Duration(d)
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if g.LogJSON {
		cfg.Log.JSON = true
	}
	if g.Ledger != "" {
		cfg.Ledger.Path = g.Ledger
	}
	return nil
}

func (g *Globals) dryRun() bool {
	return g.DryRun || g.Check
}

// open builds the application. API commands validate the full config first.
func (g *Globals) open(needsAPI bool) (*app.App, error) {
	cfg, err := g.load()
	if err != nil {
		return nil, err
	}
	if needsAPI {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return app.New(cfg, g.dryRun())
}

func setupLogging(level string, useJSON bool, colors bool) {
	// ISO 8601 format with timezone
	zerolog.TimeFieldFormat = time.RFC3339

	if useJSON {
		// JSON output for production
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		// Text output (with optional colors)
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !colors,
		})
	}

	switch strings.ToLower(level) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
