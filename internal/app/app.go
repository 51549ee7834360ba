package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/vultrsync/internal/config"
	"github.com/dokzlo13/vultrsync/internal/ledger"
	"github.com/dokzlo13/vultrsync/internal/reconcile"
)

// ErrLedgerDisabled is returned by History when no ledger path is configured.
var ErrLedgerDisabled = errors.New("ledger is disabled (set ledger.path or --ledger)")

// App is the main application container that wires configuration, the API
// executor, resource kinds and the audit ledger together.
type App struct {
	cfg      *config.Config
	services *Services
	dryRun   bool
}

// New creates a new App instance. Commands that call the API validate cfg first.
func New(cfg *config.Config, dryRun bool) (*App, error) {
	services, err := NewServices(cfg)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		services: services,
		dryRun:   dryRun,
	}, nil
}

// Close releases all resources.
func (a *App) Close() error {
	if a.services != nil {
		a.services.Close()
	}
	return nil
}

// APIEcho reports the effective API settings in results.
func (a *App) APIEcho() reconcile.APIEcho {
	return reconcile.APIEcho{
		Timeout:  a.cfg.API.Timeout.Seconds(),
		Retries:  a.cfg.API.Retries,
		MaxDelay: a.cfg.API.RetryMaxDelay.Seconds(),
		Endpoint: a.cfg.API.Endpoint,
	}
}

// Kinds describes every supported resource kind.
func (a *App) Kinds() []*reconcile.Descriptor {
	kinds := a.services.Registry.Kinds()
	out := make([]*reconcile.Descriptor, 0, len(kinds))
	for _, kind := range kinds {
		d, err := a.services.Registry.Lookup(kind)
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Lookup returns the descriptor of a kind.
func (a *App) Lookup(kind string) (*reconcile.Descriptor, error) {
	return a.services.Registry.Lookup(kind)
}

func (a *App) newReconciler(kind, runID string) (*reconcile.Reconciler, error) {
	desc, err := a.services.Registry.Lookup(kind)
	if err != nil {
		return nil, err
	}
	opts := []reconcile.Option{
		reconcile.WithDryRun(a.dryRun),
		reconcile.WithAPIEcho(a.APIEcho()),
	}
	if runID != "" {
		opts = append(opts, reconcile.WithRunID(runID))
	}
	return reconcile.New(desc, a.services.Executor, opts...), nil
}

// Reconcile drives one resource toward desired and records the run.
func (a *App) Reconcile(ctx context.Context, kind string, desired reconcile.Desired) (*reconcile.Result, error) {
	runID := uuid.NewString()
	r, err := a.newReconciler(kind, runID)
	if err != nil {
		return nil, err
	}

	result, err := r.Reconcile(ctx, desired)
	a.record(runID, reconcile.Outcome{
		Item:   reconcile.Item{Kind: kind, Desired: desired},
		Result: result,
		Err:    err,
	})
	return result, err
}

// Apply reconciles many resources concurrently. Per-item failures are
// reported in the outcomes; the error covers only setup problems.
func (a *App) Apply(ctx context.Context, items []reconcile.Item) ([]reconcile.Outcome, error) {
	batchID := uuid.NewString()
	log.Info().Str("batch_id", batchID).Int("resources", len(items)).Bool("dry_run", a.dryRun).Msg("Applying manifest")

	factory := func(kind string) (*reconcile.Reconciler, error) {
		return a.newReconciler(kind, "")
	}
	outcomes, err := reconcile.NewOrchestrator(factory, a.cfg.Apply.Parallel).Apply(ctx, items)
	if err != nil {
		return nil, err
	}

	for _, o := range outcomes {
		a.record(batchID, o)
	}
	return outcomes, nil
}

// Info lists every resource of a kind.
func (a *App) Info(ctx context.Context, kind string) (*reconcile.InfoResult, error) {
	desc, err := a.services.Registry.Lookup(kind)
	if err != nil {
		return nil, err
	}
	return reconcile.Info(ctx, desc, a.services.Executor, a.APIEcho())
}

// History returns recent ledger entries, newest first.
func (a *App) History(limit int) ([]*ledger.Entry, error) {
	if a.services.Ledger == nil {
		return nil, ErrLedgerDisabled
	}
	return a.services.Ledger.Recent(limit)
}

// ResourceHistory returns ledger entries of one resource, newest first.
func (a *App) ResourceHistory(kind, key string, limit int) ([]*ledger.Entry, error) {
	if a.services.Ledger == nil {
		return nil, ErrLedgerDisabled
	}
	if _, err := a.services.Registry.Lookup(kind); err != nil {
		return nil, err
	}
	return a.services.Ledger.ByKey(kind, key, limit)
}

func (a *App) record(runID string, o reconcile.Outcome) {
	if a.services.Ledger == nil {
		return
	}
	entry := ledger.FromOutcome(runID, a.naturalKey(o.Item), o)
	if err := a.services.Ledger.Append(entry); err != nil {
		log.Warn().Err(err).Str("kind", entry.Kind).Msg("Failed to record run in ledger")
	}
}

// naturalKey resolves the key attribute, following aliases when possible.
func (a *App) naturalKey(item reconcile.Item) string {
	desc, err := a.services.Registry.Lookup(item.Kind)
	if err != nil {
		return ""
	}
	attrs, err := desc.Schema.Normalize(item.Desired.Attributes)
	if err != nil {
		attrs = item.Desired.Attributes
	}
	if v, ok := attrs[desc.Key()]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

// SignalContext creates a context that is cancelled when SIGINT or SIGTERM is received.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}
