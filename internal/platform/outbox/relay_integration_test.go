//go:build integration

package outbox_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"docgate/internal/platform/config"
	"docgate/internal/platform/kafka"
	"docgate/internal/platform/outbox"
	"docgate/internal/platform/postgres"
	"docgate/pkg/testutil/containers"
)

type RelaySuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	redpanda *containers.RedpandaContainer
	producer *kafka.Producer
	topic    string
}

func TestRelaySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupSuite() {
	ctx := context.Background()
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.redpanda = mgr.GetRedpanda(s.T())

	_, err := postgres.Migrate(ctx, s.postgres.DB)
	s.Require().NoError(err)

	s.producer, err = kafka.NewProducer(ctx, config.KafkaConfig{Brokers: []string{s.redpanda.Brokers}})
	s.Require().NoError(err)
	s.topic = "docgate.audit.test"
	s.Require().NoError(s.producer.EnsureTopic(ctx, s.topic, 1))
	s.Require().NoError(s.producer.EnsureTopic(ctx, s.topic, 1), "ensure is idempotent")
}

func (s *RelaySuite) TearDownSuite() {
	if s.producer != nil {
		s.producer.Close()
	}
}

func (s *RelaySuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "outbox"))
}

func (s *RelaySuite) insertOutbox(aggregateID, eventType string) string {
	eventID := uuid.NewString()
	_, err := s.postgres.DB.ExecContext(context.Background(), `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, 'document', $2, $3, '{"ok":true}', $4)
	`, eventID, aggregateID, eventType, time.Now())
	s.Require().NoError(err)
	return eventID
}

// TestRunOnce_PublishesAndMarks verifies rows reach the topic once and are
// not picked up again.
func (s *RelaySuite) TestRunOnce_PublishesAndMarks() {
	ctx := context.Background()
	docID := uuid.NewString()
	s.insertOutbox(docID, "VERIFIED_BY_SYSTEM")
	s.insertOutbox(docID, "DOCUMENT_EXPIRED")

	relay := outbox.NewRelay(s.postgres.DB, s.producer, s.topic, outbox.WithBatchSize(10))
	n, err := relay.RunOnce(ctx)
	s.Require().NoError(err)
	s.Equal(2, n)

	n, err = relay.RunOnce(ctx)
	s.Require().NoError(err)
	s.Zero(n)

	var unpublished int
	s.Require().NoError(s.postgres.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM outbox WHERE published_at IS NULL`).Scan(&unpublished))
	s.Zero(unpublished)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Brokers),
		kgo.ConsumeTopics(s.topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	pollCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	var seen []string
	for len(seen) < 2 && pollCtx.Err() == nil {
		fetches := consumer.PollFetches(pollCtx)
		fetches.EachRecord(func(r *kgo.Record) {
			if string(r.Key) == docID {
				for _, h := range r.Headers {
					if h.Key == "event_type" {
						seen = append(seen, string(h.Value))
					}
				}
			}
		})
	}
	s.Equal([]string{"VERIFIED_BY_SYSTEM", "DOCUMENT_EXPIRED"}, seen)
}
