// Package review serves the maker review queue: PENDING documents routed to
// REVIEW, oldest first.
package review

import (
	"context"
	"log/slog"

	"docgate/internal/document/models"
	dErrors "docgate/pkg/domain-errors"
)

const (
	MinTake     = 1
	MaxTake     = 100
	DefaultTake = 20
)

// QueueStore lists the review queue. ListReviewQueue must order by CreatedAt
// then id and exclude documents on identity hold.
type QueueStore interface {
	ListReviewQueue(ctx context.Context, skip, take int) ([]*models.Document, int, error)
}

// Page is one page of the review queue.
type Page struct {
	Items []*models.Document
	Total int
	Skip  int
}

// HasMore reports whether documents remain after this page.
func (p Page) HasMore() bool {
	return p.Skip+len(p.Items) < p.Total
}

type Service struct {
	store  QueueStore
	logger *slog.Logger
}

func New(store QueueStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// ListPending returns a page of the queue. take outside 1-100 or a negative
// skip is a validation error; values are never clamped.
func (s *Service) ListPending(ctx context.Context, skip, take int) (*Page, error) {
	if take < MinTake || take > MaxTake {
		return nil, dErrors.New(dErrors.CodeValidation, "take must be between 1 and 100").
			WithDetail("field", "take")
	}
	if skip < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "skip must not be negative").
			WithDetail("field", "skip")
	}
	items, total, err := s.store.ListReviewQueue(ctx, skip, take)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list review queue")
	}
	return &Page{Items: items, Total: total, Skip: skip}, nil
}
