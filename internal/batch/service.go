// Package batch applies maker decisions to many documents in one request.
// Every item is its own unit of work; one failure never affects another.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"docgate/internal/document/models"
	"docgate/internal/document/service"
	"docgate/internal/policy"
	id "docgate/pkg/domain"
	dErrors "docgate/pkg/domain-errors"
	"docgate/pkg/platform/kvstore"
	"docgate/pkg/platform/sentinel"
	"docgate/pkg/requestcontext"
)

const (
	DefaultMaxItems       = 100
	defaultWorkers        = 8
	defaultIdempotencyTTL = 24 * time.Hour
)

// inProgress marks an Idempotency-Key whose batch is still running.
var inProgress = []byte(`{"in_progress":true}`)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

// Lifecycle applies one disposition under the document's lock.
type Lifecycle interface {
	ApplyDisposition(ctx context.Context, documentID id.DocumentID, disposition policy.Disposition, actor models.Actor, comments string) (*service.Outcome, error)
}

// DocumentIndex reports which ids exist, so unknown documents fail without a
// transaction.
type DocumentIndex interface {
	ExistingIDs(ctx context.Context, ids []id.DocumentID) (map[id.DocumentID]bool, error)
}

type Processor struct {
	lifecycle      Lifecycle
	index          DocumentIndex
	keys           kvstore.Store
	maxItems       int
	workers        int
	idempotencyTTL time.Duration
	logger         *slog.Logger
	metrics        *Metrics
	tracer         trace.Tracer
}

type Option func(*Processor)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) { p.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithIdempotency enables Idempotency-Key replay backed by keys.
func WithIdempotency(keys kvstore.Store, ttl time.Duration) Option {
	return func(p *Processor) {
		p.keys = keys
		if ttl > 0 {
			p.idempotencyTTL = ttl
		}
	}
}

// WithLimits sets the batch size limit and the number of documents processed
// in parallel.
func WithLimits(maxItems, workers int) Option {
	return func(p *Processor) {
		if maxItems > 0 {
			p.maxItems = maxItems
		}
		if workers > 0 {
			p.workers = workers
		}
	}
}

func New(lifecycle Lifecycle, index DocumentIndex, opts ...Option) *Processor {
	p := &Processor{
		lifecycle:      lifecycle,
		index:          index,
		maxItems:       DefaultMaxItems,
		workers:        defaultWorkers,
		idempotencyTTL: defaultIdempotencyTTL,
		logger:         slog.Default(),
		tracer:         otel.Tracer("docgate/batch"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ApplyBatch validates every item, then applies them with bounded parallelism.
// A malformed batch is rejected before anything is processed. When
// idempotencyKey is repeated within the TTL the stored result is returned.
func (p *Processor) ApplyBatch(ctx context.Context, actor id.UserID, items []Item, idempotencyKey string) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "batch.ApplyBatch", trace.WithAttributes(
		attribute.Int("items", len(items)),
	))
	defer span.End()

	if actor.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	valid, err := validate(items, p.maxItems)
	if err != nil {
		return nil, err
	}

	storeKey := ""
	if idempotencyKey != "" && p.keys != nil {
		storeKey = "batch:" + actor.String() + ":" + idempotencyKey
		if replay, err := p.claimKey(ctx, storeKey); err != nil || replay != nil {
			return replay, err
		}
	}

	start := time.Now()
	result := p.process(ctx, actor, valid)
	p.metrics.observeDuration(time.Since(start).Seconds())

	if storeKey != "" {
		p.storeResult(ctx, storeKey, result)
	}

	p.logger.InfoContext(ctx, "batch processed",
		"request_id", requestcontext.RequestID(ctx),
		"actor_id", actor,
		"total", result.Summary.Total,
		"succeeded", result.Summary.Succeeded,
		"failed", result.Summary.Failed,
		"log_type", "audit",
	)
	span.SetAttributes(
		attribute.Int("succeeded", result.Summary.Succeeded),
		attribute.Int("failed", result.Summary.Failed),
	)
	return result, nil
}

func (p *Processor) process(ctx context.Context, actor id.UserID, items []validItem) *Result {
	results := make([]ItemResult, len(items))

	ids := make([]id.DocumentID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.documentID)
	}
	existing, err := p.index.ExistingIDs(ctx, ids)
	if err != nil {
		p.logger.WarnContext(ctx, "document prefetch failed; processing every item",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		existing = nil
	}

	var g errgroup.Group
	g.SetLimit(p.workers)
	for _, group := range groupByDocument(items) {
		g.Go(func() error {
			for _, item := range group {
				if existing != nil && !existing[item.documentID] {
					results[item.index] = failed(item, dErrors.New(dErrors.CodeNotFound, "document not found"))
					continue
				}
				results[item.index] = p.applyItem(ctx, actor, item)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := &Result{Results: results, Summary: Summary{Total: len(items)}}
	for _, r := range results {
		res.Summary.Processed++
		if r.Success {
			res.Summary.Succeeded++
		} else {
			res.Summary.Failed++
		}
		p.metrics.observeItem(r)
	}
	return res
}

// applyItem runs one item in isolation; a panic fails only this item.
func (p *Processor) applyItem(ctx context.Context, actor id.UserID, item validItem) (res ItemResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "batch item panicked",
				"request_id", requestcontext.RequestID(ctx),
				"document_id", item.documentID,
				"panic", r,
			)
			res = failed(item, dErrors.New(dErrors.CodeInternal, "internal error"))
		}
	}()

	if err := ctx.Err(); err != nil {
		return failed(item, dErrors.Wrap(err, dErrors.CodeTimeout, "batch cancelled before this item ran"))
	}

	outcome, err := p.lifecycle.ApplyDisposition(ctx, item.documentID, item.action.disposition(), models.MakerActor(actor), item.comments)
	if err != nil {
		p.logger.WarnContext(ctx, "batch item failed",
			"request_id", requestcontext.RequestID(ctx),
			"document_id", item.documentID,
			"action", item.action,
			"error", err,
		)
		return failed(item, err)
	}
	return ItemResult{
		Index:           item.index,
		DocumentID:      item.documentID.String(),
		Action:          string(item.action),
		Success:         true,
		Status:          string(outcome.Document.Status),
		IssuanceWarning: outcome.IssuanceWarning,
	}
}

func failed(item validItem, err error) ItemResult {
	code := dErrors.CodeOf(err)
	msg := "internal error"
	if de, ok := dErrors.As(err); ok && code != dErrors.CodeInternal {
		msg = de.Message
	}
	return ItemResult{
		Index:      item.index,
		DocumentID: item.documentID.String(),
		Action:     string(item.action),
		Error:      &ItemError{Code: string(code), Message: msg},
	}
}

// claimKey returns the stored result for a completed batch, a Conflict when
// the same key is still running, or nil after reserving the key.
func (p *Processor) claimKey(ctx context.Context, key string) (*Result, error) {
	stored, err := p.keys.Get(ctx, key)
	switch {
	case err == nil:
		return p.replay(stored)
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read idempotency key")
	}

	ok, err := p.keys.SetNX(ctx, key, inProgress, p.idempotencyTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reserve idempotency key")
	}
	if !ok {
		stored, err := p.keys.Get(ctx, key)
		if err != nil {
			return nil, dErrors.New(dErrors.CodeConflict, "a batch with this idempotency key is in progress")
		}
		return p.replay(stored)
	}
	return nil, nil
}

func (p *Processor) replay(stored []byte) (*Result, error) {
	if string(stored) == string(inProgress) {
		return nil, dErrors.New(dErrors.CodeConflict, "a batch with this idempotency key is in progress")
	}
	var res Result
	if err := json.Unmarshal(stored, &res); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "stored batch result is corrupt")
	}
	p.metrics.incReplays()
	return &res, nil
}

func (p *Processor) storeResult(ctx context.Context, key string, result *Result) {
	ctx = context.WithoutCancel(ctx)
	payload, err := json.Marshal(result)
	if err == nil {
		err = p.keys.Set(ctx, key, payload, p.idempotencyTTL)
	}
	if err != nil {
		_ = p.keys.Delete(ctx, key)
		p.logger.ErrorContext(ctx, "failed to store batch result for idempotent replay",
			"request_id", requestcontext.RequestID(ctx),
			"error", fmt.Errorf("idempotency key %s: %w", key, err),
		)
	}
}
