package app

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/vultrsync/internal/config"
	"github.com/dokzlo13/vultrsync/internal/db"
	"github.com/dokzlo13/vultrsync/internal/ledger"
	"github.com/dokzlo13/vultrsync/internal/reconcile"
	"github.com/dokzlo13/vultrsync/internal/resources"
	"github.com/dokzlo13/vultrsync/internal/vultr"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	Transport *vultr.HTTPTransport
	Executor  reconcile.Requester

	// Optional audit trail, nil when ledger.path is empty
	DB     *db.DB
	Ledger *ledger.Ledger

	// Resource kinds
	Registry *resources.Registry
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	s.Transport = vultr.NewHTTPTransport(&http.Client{})
	s.Executor = vultr.NewExecutor(s.Transport, ExecutorOptions(cfg))
	s.Registry = resources.Default()

	if cfg.Ledger.Path != "" {
		database, err := db.Open(cfg.Ledger.Path)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.DB = database
		s.Ledger = ledger.New(database.DB)

		if cfg.Ledger.RetentionDays > 0 {
			retention := time.Duration(cfg.Ledger.RetentionDays) * 24 * time.Hour
			deleted, err := s.Ledger.DeleteOlderThan(retention)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to apply ledger retention")
			} else if deleted > 0 {
				log.Debug().Int64("deleted", deleted).Msg("Pruned old ledger entries")
			}
		}
	}

	return s, nil
}

// ExecutorOptions maps API configuration onto executor options.
func ExecutorOptions(cfg *config.Config) vultr.Options {
	return vultr.Options{
		Endpoint:      cfg.API.Endpoint,
		APIKey:        cfg.API.Key,
		UserAgent:     cfg.API.UserAgent,
		Timeout:       cfg.API.Timeout.Duration(),
		MaxRetries:    cfg.API.Retries,
		MaxRetryDelay: cfg.API.RetryMaxDelay.Duration(),
		RateLimitRPS:  cfg.API.RateLimitRPS,
	}
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Transport != nil {
		s.Transport.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
