package issuance

import (
	"context"
	"log/slog"
	"time"

	dErrors "docgate/pkg/domain-errors"
	"docgate/pkg/requestcontext"
)

//go:generate mockgen -source=dispatcher.go -destination=mocks/mocks.go -package=mocks

// Issuer turns a Request into a Receipt.
type Issuer interface {
	Issue(ctx context.Context, req Request) (Receipt, error)
}

const defaultIssueTimeout = 15 * time.Second

// Dispatcher routes each Request variant to its Issuer under a per-call
// timeout.
type Dispatcher struct {
	attestor Issuer
	minter   Issuer
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *Metrics
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

func NewDispatcher(attestor, minter Issuer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		attestor: attestor,
		minter:   minter,
		timeout:  defaultIssueTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Issue(ctx context.Context, req Request) (Receipt, error) {
	var issuer Issuer
	switch req.(type) {
	case Attestation:
		issuer = d.attestor
	case NFTMint:
		issuer = d.minter
	}
	if issuer == nil {
		return Receipt{}, dErrors.New(dErrors.CodeIssuanceFailed, "no issuer for "+string(req.Kind()))
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	receipt, err := issuer.Issue(ctx, req)
	d.metrics.observe(req.Kind(), err, time.Since(start))
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded && !dErrors.HasCode(err, dErrors.CodeTimeout) {
			err = dErrors.Wrap(err, dErrors.CodeTimeout, "issuance timed out")
		}
		d.logger.WarnContext(ctx, "issuance failed",
			"document_id", req.Document().String(),
			"kind", req.Kind(),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return Receipt{}, err
	}
	d.logger.InfoContext(ctx, "issuance succeeded",
		"document_id", req.Document().String(),
		"kind", req.Kind(),
		"reference_id", receipt.ReferenceID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return receipt, nil
}
