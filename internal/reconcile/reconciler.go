package reconcile

import (
	"context"
	"fmt"
	"maps"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Reconciler runs the state machine for one resource of one kind.
//
// A Reconciler is single-threaded: reconcile many resources concurrently by
// giving each its own Reconciler. Mutations are attempted at most once and
// never compensated; a failure after a successful mutation is still a failure.
type Reconciler struct {
	desc    *Descriptor
	api     Requester
	locator *Locator
	dryRun  bool
	echo    APIEcho
	runID   string

	state  State
	logger zerolog.Logger
}

// Option customizes a Reconciler.
type Option func(*Reconciler)

// WithDryRun skips every mutating call while still reporting changes.
func WithDryRun(dryRun bool) Option {
	return func(r *Reconciler) { r.dryRun = dryRun }
}

// WithAPIEcho sets the API settings echoed in results.
func WithAPIEcho(echo APIEcho) Option {
	return func(r *Reconciler) { r.echo = echo }
}

// WithRunID sets the correlation ID used in logs and results.
func WithRunID(id string) Option {
	return func(r *Reconciler) { r.runID = id }
}

// New creates a Reconciler for desc, issuing calls through api.
func New(desc *Descriptor, api Requester, opts ...Option) *Reconciler {
	r := &Reconciler{
		desc:    desc,
		api:     api,
		locator: NewLocator(desc, api),
	}
	for _, o := range opts {
		o(r)
	}
	if r.runID == "" {
		r.runID = uuid.NewString()
	}
	return r
}

// State returns the state the last run reached.
func (r *Reconciler) State() State {
	return r.state
}

// Reconcile drives the resource toward desired and reports what happened.
// Desired attributes are validated before any network call.
func (r *Reconciler) Reconcile(ctx context.Context, desired Desired) (*Result, error) {
	r.state = StateUnknown

	disposition, err := ParseDisposition(string(desired.Disposition))
	if err != nil {
		return nil, err
	}

	attrs, err := r.desc.Schema.Normalize(desired.Attributes)
	if err != nil {
		return nil, err
	}
	if err := r.desc.Schema.Validate(attrs, r.desc.Key(), disposition); err != nil {
		return nil, err
	}
	keyValue := attrs[r.desc.Key()]

	r.logger = log.With().
		Str("run_id", r.runID).
		Str("kind", r.desc.Kind).
		Str(r.desc.Key(), fmt.Sprint(keyValue)).
		Logger()

	if disposition == Present && r.desc.Hooks.EncodeDesired != nil {
		attrs, err = r.desc.Hooks.EncodeDesired(attrs)
		if err != nil {
			return nil, fmt.Errorf("encode %s attributes: %w", r.desc.Kind, err)
		}
	}

	current, err := r.locator.Find(ctx, keyValue)
	if err != nil {
		return nil, err
	}
	r.transition(StateQueried)

	var changes Attributes
	if disposition == Present && current != nil {
		update := attrs.Pick(r.desc.UpdateFields)
		changes = make(Attributes)
		for _, f := range ChangedFields(update, current) {
			changes[f] = update[f]
		}
	}

	action := DetermineAction(disposition, current != nil, len(changes) > 0)
	r.transition(action.State())

	result := &Result{
		RunID:     r.runID,
		Kind:      r.desc.Kind,
		Namespace: r.desc.Namespace,
		Action:    action,
		DryRun:    r.dryRun,
		Changed:   action != ActionNone,
		API:       r.echo,
	}

	switch action {
	case ActionCreate:
		err = r.create(ctx, attrs, result)
	case ActionUpdate:
		err = r.update(ctx, keyValue, current, changes, result)
	case ActionDelete:
		err = r.delete(ctx, current, result)
	default:
		result.Resource = current.Map()
		result.Diff = NoopDiff()
	}
	if err != nil {
		return nil, err
	}

	if err := r.transformResult(result); err != nil {
		return nil, err
	}

	r.transition(StateDone)
	r.logger.Debug().
		Str("action", action.String()).
		Bool("changed", result.Changed).
		Bool("dry_run", r.dryRun).
		Msg("Reconciled")

	return result, nil
}

func (r *Reconciler) create(ctx context.Context, attrs Attributes, result *Result) error {
	payload := attrs.Pick(r.desc.CreateFields)
	result.Diff = CreateDiff(payload)
	result.Resource = map[string]any{}

	if r.dryRun {
		r.logger.Info().Msg("Would create resource (dry run)")
		return nil
	}

	r.logger.Info().Msg("Creating resource")
	data, err := r.api.Execute(ctx, http.MethodPost, r.desc.CollectionPath, payload)
	if err != nil {
		return err
	}

	created := r.desc.Decode(singular(data, r.desc.SingularKey))
	if created == nil {
		// Some endpoints answer 201/204 without a body; look it up instead
		created, err = r.locator.Find(ctx, attrs[r.desc.Key()])
	} else {
		created, err = r.locator.complete(ctx, created)
	}
	if err != nil {
		return err
	}
	result.Resource = created.Map()
	return nil
}

func (r *Reconciler) update(ctx context.Context, keyValue any, current *Snapshot, changes Attributes, result *Result) error {
	result.Diff = UpdateDiff(current, changes)
	result.Resource = current.Map()

	fields := make([]string, 0, len(changes))
	for f := range changes {
		fields = append(fields, f)
	}

	if r.dryRun {
		r.logger.Info().Strs("fields", fields).Msg("Would update resource (dry run)")
		return nil
	}

	r.logger.Info().Str("id", current.ID).Strs("fields", fields).Msg("Updating resource")
	if _, err := r.api.Execute(ctx, r.desc.UpdateVerb(), r.desc.ItemPath(current.ID), changes); err != nil {
		return err
	}

	// The update response may not carry the final object; re-query it
	fresh, err := r.locator.Find(ctx, keyValue)
	if err != nil {
		return err
	}
	if fresh == nil {
		r.logger.Warn().Str("id", current.ID).Msg("Resource vanished after update, reporting expected state")
		result.Resource = maps.Clone(result.Diff.After)
		return nil
	}
	result.Resource = fresh.Map()
	return nil
}

func (r *Reconciler) delete(ctx context.Context, current *Snapshot, result *Result) error {
	result.Diff = DeleteDiff(current)
	result.Resource = current.Map()

	if r.dryRun {
		r.logger.Info().Str("id", current.ID).Msg("Would delete resource (dry run)")
		return nil
	}

	r.logger.Info().Str("id", current.ID).Msg("Deleting resource")
	_, err := r.api.Execute(ctx, http.MethodDelete, r.desc.ItemPath(current.ID), nil)
	return err
}

func (r *Reconciler) transformResult(result *Result) error {
	transform := r.desc.Hooks.ResultTransform
	if transform == nil {
		return nil
	}
	apply := func(m map[string]any) (map[string]any, error) {
		if len(m) == 0 {
			return m, nil
		}
		out, err := transform(m)
		if err != nil {
			return nil, fmt.Errorf("transform %s result: %w", r.desc.Kind, err)
		}
		return out, nil
	}

	var err error
	if result.Resource, err = apply(result.Resource); err != nil {
		return err
	}
	if result.Diff.Before, err = apply(result.Diff.Before); err != nil {
		return err
	}
	if result.Diff.After, err = apply(result.Diff.After); err != nil {
		return err
	}
	return nil
}

func (r *Reconciler) transition(to State) {
	if !canTransition(r.state, to) {
		r.logger.Error().Str("from", r.state.String()).Str("to", to.String()).Msg("Invalid state transition")
	}
	r.logger.Debug().Str("from", r.state.String()).Str("to", to.String()).Msg("State transition")
	r.state = to
}
