package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"
)

// ErrTaskAborted marks an item whose run panicked or never started.
var ErrTaskAborted = errors.New("reconciliation aborted")

// Item is one resource to reconcile.
type Item struct {
	Kind    string
	Desired Desired
}

// Outcome pairs an item with its result or error.
type Outcome struct {
	Item   Item
	Result *Result
	Err    error
}

// Factory builds a fresh Reconciler for a kind.
type Factory func(kind string) (*Reconciler, error)

// Orchestrator reconciles many independent resources on a bounded pool.
// It's domain-agnostic - all resource-specific logic lives in descriptors.
type Orchestrator struct {
	factory  Factory
	parallel int
}

// NewOrchestrator creates a new reconciliation orchestrator.
func NewOrchestrator(factory Factory, parallel int) *Orchestrator {
	if parallel <= 0 {
		parallel = 1
	}
	return &Orchestrator{factory: factory, parallel: parallel}
}

// Apply reconciles all items and returns outcomes in input order.
// One item failing does not stop the others.
func (o *Orchestrator) Apply(ctx context.Context, items []Item) ([]Outcome, error) {
	outcomes := make([]Outcome, len(items))
	for i, item := range items {
		outcomes[i] = Outcome{Item: item, Err: ErrTaskAborted}
	}
	if len(items) == 0 {
		return outcomes, nil
	}

	// Unified panic recovery
	panicHandler := func(p interface{}) {
		log.Error().Interface("panic", p).Msg("Reconciliation panic recovered")
	}

	pool, err := ants.NewPool(o.parallel,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			o.reconcileOne(ctx, &outcomes[i])
		})
		if err != nil {
			wg.Done()
			outcomes[i].Err = fmt.Errorf("submit %s: %w", items[i].Kind, err)
		}
	}
	wg.Wait()

	return outcomes, nil
}

func (o *Orchestrator) reconcileOne(ctx context.Context, out *Outcome) {
	// Check context inside worker (may have been cancelled while queued)
	select {
	case <-ctx.Done():
		out.Err = ctx.Err()
		return
	default:
	}

	r, err := o.factory(out.Item.Kind)
	if err != nil {
		out.Err = err
		return
	}

	out.Result, out.Err = r.Reconcile(ctx, out.Item.Desired)
	if out.Err != nil {
		log.Error().Err(out.Err).Str("kind", out.Item.Kind).Msg("Reconcile failed")
	}
}

// Failed counts outcomes with an error.
func Failed(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}
