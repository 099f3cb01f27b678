package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"docgate/internal/batch"
	batchhandler "docgate/internal/batch/handler"
	"docgate/internal/biometric"
	biostore "docgate/internal/biometric/store"
	dochandler "docgate/internal/document/handler"
	docmetrics "docgate/internal/document/metrics"
	docservice "docgate/internal/document/service"
	docstore "docgate/internal/document/store"
	"docgate/internal/forensiccache"
	cachehandler "docgate/internal/forensiccache/handler"
	"docgate/internal/forensics/analyzer"
	"docgate/internal/intake"
	intakehandler "docgate/internal/intake/handler"
	"docgate/internal/issuance"
	issuancestore "docgate/internal/issuance/store"
	jwttoken "docgate/internal/jwt_token"
	"docgate/internal/platform/config"
	"docgate/internal/platform/kafka"
	"docgate/internal/platform/metrics"
	"docgate/internal/platform/objectstore"
	"docgate/internal/platform/outbox"
	"docgate/internal/platform/postgres"
	redisclient "docgate/internal/platform/redis"
	"docgate/internal/policy"
	"docgate/internal/ratelimit"
	"docgate/internal/review"
	reviewhandler "docgate/internal/review/handler"
	httptransport "docgate/internal/transport/http"
	"docgate/pkg/platform/audit"
	"docgate/pkg/platform/audit/publishers/compliance"
	auditmemory "docgate/pkg/platform/audit/store/memory"
	auditpostgres "docgate/pkg/platform/audit/store/postgres"
	"docgate/pkg/platform/kvstore"
)

// app holds the wired process. Optional infrastructure is nil when its
// config section is empty; the in-memory implementations take over.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	db       *sql.DB
	redis    *redisclient.Client
	producer *kafka.Producer
	minio    *objectstore.MinIO

	documents  *docservice.Service
	reconciler *docservice.Reconciler
	intake     *intake.Service
	cache      forensiccache.Cache
	relay      *outbox.Relay

	router http.Handler
	checks []httptransport.HealthCheck
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := a.openInfrastructure(ctx); err != nil {
		return nil, err
	}

	var (
		docStore  docservice.Store
		index     batch.DocumentIndex
		queue     review.QueueStore
		storeTx   docservice.StoreTx
		bioStore  biometric.Store
		pending   issuance.PendingStore
		auditLog  audit.Store
		kv        kvstore.Store
		reportsDB forensiccache.Cache
		limiter   ratelimit.Limiter
	)
	if a.db != nil {
		pg := docstore.NewPostgres(a.db)
		docStore, index, queue = pg, pg, pg
		storeTx = docstore.NewPostgresTx(a.db, cfg.Document.TxTimeout)
		bioStore = biostore.NewPostgres(a.db)
		pending = issuancestore.NewPostgres(a.db)
		auditLog = auditpostgres.New(a.db)
	} else {
		mem := docstore.NewInMemory()
		docStore, index, queue = mem, mem, mem
		storeTx = docservice.NewShardedStoreTx(cfg.Document.TxTimeout)
		bioStore = biostore.NewInMemory()
		pending = issuancestore.NewInMemory()
		auditLog = auditmemory.NewInMemoryStore()
	}
	if a.redis != nil {
		kv = kvstore.NewRedis(a.redis.Client, "docgate:idem:")
		limiter = ratelimit.NewRedisLimiter(a.redis.Client, "docgate:rl:")
		reportsDB = forensiccache.NewResilient(
			forensiccache.NewRedisStore(a.redis.Client, "docgate:forensic:"),
			forensiccache.NewMemoryStore(),
			forensiccache.WithLogger(logger),
			forensiccache.WithMetrics(forensiccache.NewMetrics()),
		)
	} else {
		kv = kvstore.NewMemory()
		limiter = ratelimit.NewMemoryLimiter()
		reportsDB = forensiccache.NewMemoryStore()
	}
	a.cache = reportsDB

	var objects objectstore.Store = objectstore.NewMemory()
	if a.minio != nil {
		objects = a.minio
	}

	gate, err := biometric.NewGate(bioStore, []byte(cfg.Biometric.HashKey),
		biometric.WithLogger(logger),
		biometric.WithMetrics(biometric.NewMetrics()),
		biometric.WithSupportContact(cfg.Biometric.SupportContact),
	)
	if err != nil {
		return nil, fmt.Errorf("biometric gate: %w", err)
	}

	relayClient := issuance.NewRelayClient(cfg.Issuance.RelayURL, cfg.Issuance.RelayAPIKey, &http.Client{Timeout: cfg.Issuance.Timeout})
	issuanceMetrics := issuance.NewMetrics()
	dispatcher := issuance.NewDispatcher(
		issuance.NewSASAttestor(relayClient),
		issuance.NewMetaplexMinter(relayClient),
		issuance.WithLogger(logger),
		issuance.WithMetrics(issuanceMetrics),
		issuance.WithTimeout(cfg.Issuance.Timeout),
	)

	decisionPolicy := policy.New(cfg.Policy.ApproveThreshold, cfg.Policy.ReviewThreshold, cfg.Policy.TamperOverride)
	auditor := compliance.New(auditLog,
		compliance.WithLogger(logger),
		compliance.WithMetrics(compliance.NewMetrics()),
	)
	a.documents = docservice.New(docStore, storeTx, auditor, gate, dispatcher, pending,
		docservice.WithLogger(logger),
		docservice.WithMetrics(docmetrics.New()),
		docservice.WithPolicy(decisionPolicy),
		docservice.WithIssuanceRetry(cfg.Issuance.BaseBackoff, cfg.Issuance.MaxAttempts),
	)
	a.reconciler = docservice.NewReconciler(a.documents,
		docservice.WithReconcileLogger(logger),
		docservice.WithReconcileInterval(cfg.Issuance.ReconcileInterval),
		docservice.WithBacklogGauge(issuanceMetrics.SetPending),
	)

	a.intake = intake.New(a.documents,
		analyzer.NewOpenAI(cfg.Analysis.APIKey, cfg.Analysis.BaseURL, cfg.Analysis.Model, cfg.Analysis.MaxTokens),
		objects,
		intake.WithLogger(logger),
		intake.WithMetrics(intake.NewMetrics()),
		intake.WithPolicy(decisionPolicy, policy.NewMetrics()),
		intake.WithCache(reportsDB, cfg.Cache.TTL),
		intake.WithAnalysisTimeout(cfg.Analysis.Timeout),
		intake.WithUploadLimits(cfg.Document.MaxUploadBytes, cfg.Document.AllowedMimeTypes),
	)

	processor := batch.New(a.documents, index,
		batch.WithLogger(logger),
		batch.WithMetrics(batch.NewMetrics()),
		batch.WithIdempotency(kv, cfg.Batch.IdempotencyTTL),
		batch.WithLimits(cfg.Batch.MaxItems, cfg.Batch.Workers),
	)

	if a.db != nil && a.producer != nil {
		a.relay = outbox.NewRelay(a.db, a.producer, cfg.Kafka.AuditTopic,
			outbox.WithLogger(logger),
			outbox.WithMetrics(outbox.NewMetrics()),
			outbox.WithBatchSize(cfg.Kafka.RelayBatchSize),
			outbox.WithInterval(cfg.Kafka.RelayInterval),
		)
	}

	throttle := ratelimit.NewMiddleware(limiter, logger,
		ratelimit.WithMetrics(ratelimit.NewMetrics()),
		ratelimit.WithDisabled(cfg.RateLimit.Disabled),
	)
	validator := jwttoken.NewJWTServiceAdapter(jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer))
	a.router = httptransport.NewRouter(
		httptransport.Config{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			AdminToken:     cfg.Server.AdminToken,
			HealthTimeout:  cfg.Server.HealthTimeout,
			Limiter:        throttle,
			UploadRule:     ratelimit.Rule{Limit: cfg.RateLimit.Uploads, Window: cfg.RateLimit.Window},
			BatchRule:      ratelimit.Rule{Limit: cfg.RateLimit.Batches, Window: cfg.RateLimit.Window},
		},
		httptransport.Handlers{
			Intake:   intakehandler.New(a.intake, logger),
			Document: dochandler.New(a.documents, logger),
			Review:   reviewhandler.New(review.New(queue, logger), logger),
			Batch:    batchhandler.New(processor, logger),
			Cache:    cachehandler.New(reportsDB, logger),
		},
		validator,
		a.checks,
		metrics.New(),
		logger,
	)
	return a, nil
}

// openInfrastructure connects whatever the config enables and registers a
// health check for each.
func (a *app) openInfrastructure(ctx context.Context) error {
	cfg := a.cfg
	if cfg.Database.URL != "" {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		a.db = db
		a.checks = append(a.checks, httptransport.HealthCheck{Name: "postgres", Check: db.PingContext})
	}

	rc, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if rc != nil {
		a.redis = rc
		a.checks = append(a.checks, httptransport.HealthCheck{Name: "redis", Check: rc.Health})
	}

	producer, err := kafka.NewProducer(ctx, cfg.Kafka)
	if err != nil {
		return fmt.Errorf("kafka: %w", err)
	}
	if producer != nil {
		a.producer = producer
		a.checks = append(a.checks, httptransport.HealthCheck{Name: "kafka", Check: producer.Health})
	}

	if cfg.ObjectStore.Endpoint != "" {
		m, err := objectstore.NewMinIO(ctx, cfg.ObjectStore)
		if err != nil {
			return fmt.Errorf("object store: %w", err)
		}
		a.minio = m
		a.checks = append(a.checks, httptransport.HealthCheck{Name: "object_store", Check: m.Health})
	}
	return nil
}

// Close releases infrastructure connections. Safe on a partially built app.
func (a *app) Close() {
	if a.producer != nil {
		a.producer.Close()
	}
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("closing infrastructure", "error", err)
	}
}
