package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/registry-api/internal/models"
	"github.com/noah-isme/registry-api/pkg/jobs"
	"github.com/noah-isme/registry-api/pkg/middleware/requestid"
)

const auditJobType = "audit_log"

type auditStore interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	ListByResource(ctx context.Context, resource, resourceID string, limit int) ([]models.AuditLog, error)
}

// AuditConfig sizes the background writer.
type AuditConfig struct {
	Workers    int
	BufferSize int
	Retries    int
	RetryDelay time.Duration
}

// AuditService records registry operations. Entries are written by a background
// queue; when the queue is unavailable they are written inline. Failures are
// logged and never fail the calling request.
type AuditService struct {
	store   auditStore
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
}

// NewAuditService constructs the service and its queue. Call Start to begin
// asynchronous delivery.
func NewAuditService(store auditStore, metrics *MetricsService, logger *zap.Logger, cfg AuditConfig) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}
	svc := &AuditService{store: store, metrics: metrics, logger: logger}
	svc.queue = jobs.NewQueue("audit", svc.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.Retries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return svc
}

// Start launches the background writers.
func (s *AuditService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop flushes buffered entries and stops the writers.
func (s *AuditService) Stop() {
	s.queue.Stop()
}

// Record stores an audit entry, stamping the request id carried by ctx.
func (s *AuditService) Record(ctx context.Context, entry *models.AuditLog) {
	if s == nil || entry == nil {
		return
	}
	if entry.RequestID == "" {
		entry.RequestID = requestid.FromContext(ctx)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	err := s.queue.TryEnqueue(jobs.Job{ID: entry.RequestID, Type: auditJobType, Payload: entry})
	if err == nil {
		return
	}
	if errors.Is(err, jobs.ErrQueueFull) {
		s.logger.Warn("audit queue full, writing inline", zap.String("action", entry.Action))
	}
	if err := s.store.Create(context.WithoutCancel(ctx), entry); err != nil {
		s.metrics.RecordAuditDropped()
		s.logger.Warn("failed to persist audit log", zap.String("action", entry.Action), zap.Error(err))
	}
}

// History returns the audit trail of a resource.
func (s *AuditService) History(ctx context.Context, resource, resourceID string, limit int) ([]models.AuditLog, error) {
	if s == nil {
		return []models.AuditLog{}, nil
	}
	return s.store.ListByResource(ctx, resource, resourceID, limit)
}

func (s *AuditService) handle(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(*models.AuditLog)
	if !ok {
		s.logger.Error("unexpected audit payload", zap.String("job_type", job.Type))
		return nil
	}
	return s.store.Create(ctx, entry)
}

// newAuditEntry builds an entry with JSON encoded before/after snapshots.
func newAuditEntry(actor models.Actor, action, resource, resourceID string, oldValues, newValues interface{}) *models.AuditLog {
	entry := &models.AuditLog{Action: action, Resource: resource}
	if actor.UserID != "" {
		userID := actor.UserID
		entry.UserID = &userID
	}
	if resourceID != "" {
		id := resourceID
		entry.ResourceID = &id
	}
	if oldValues != nil {
		entry.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		entry.NewValues, _ = json.Marshal(newValues)
	}
	return entry
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, *models.AuditLog) {}
