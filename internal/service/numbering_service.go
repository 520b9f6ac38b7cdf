package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/registry-api/internal/models"
	appErrors "github.com/noah-isme/registry-api/pkg/errors"
)

const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqUniqueViolation      = "23505"
)

type counterStore interface {
	Increment(ctx context.Context, configurationID string, scopeYear int, startingNumber int64) (int64, error)
}

type configurationReader interface {
	GetByID(ctx context.Context, id string) (*models.RegisterConfiguration, error)
}

type txRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// IssuedNumber is a number allocated inside the current registration transaction.
type IssuedNumber struct {
	Number        int64
	ScopeYear     int
	Configuration *models.RegisterConfiguration
}

// PersistFunc writes whatever carries the issued number. It runs in the same
// transaction as the counter increment and may run again on retry.
type PersistFunc func(ctx context.Context, issued IssuedNumber) error

// NumberingConfig bounds the retry loop.
type NumberingConfig struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// NumberingService allocates gap-free sequential numbers per register and scope year.
type NumberingService struct {
	configs  configurationReader
	counters counterStore
	tx       txRunner
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      NumberingConfig
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewNumberingService constructs the service.
func NewNumberingService(configs configurationReader, counters counterStore, tx txRunner, metrics *MetricsService, logger *zap.Logger, cfg NumberingConfig) *NumberingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &NumberingService{
		configs:  configs,
		counters: counters,
		tx:       tx,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		sleep:    sleepContext,
	}
}

// NextNumber allocates and commits the next number without attaching it to anything.
func (s *NumberingService) NextNumber(ctx context.Context, configurationID string, year int) (int64, error) {
	issued, err := s.Issue(ctx, configurationID, year, nil)
	if err != nil {
		return 0, err
	}
	return issued.Number, nil
}

// Issue allocates the next number and calls persist in the same transaction. When
// the transaction loses a race on the counter it is retried from the start.
func (s *NumberingService) Issue(ctx context.Context, configurationID string, year int, persist PersistFunc) (IssuedNumber, error) {
	start := time.Now()
	attempts := s.cfg.MaxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		var issued IssuedNumber
		err := s.tx.WithinTx(ctx, func(txCtx context.Context) error {
			var err error
			issued, err = s.allocate(txCtx, configurationID, year)
			if err != nil {
				return err
			}
			if persist != nil {
				return persist(txCtx, issued)
			}
			return nil
		})
		if err == nil {
			s.metrics.RecordNumberIssued(configurationID, time.Since(start))
			return issued, nil
		}
		if !isNumberingConflict(err) {
			return IssuedNumber{}, err
		}

		lastErr = err
		s.metrics.RecordNumberingConflict()
		s.logger.Warn("numbering conflict",
			zap.String("configuration_id", configurationID),
			zap.Int("year", year),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < attempts {
			if err := s.sleep(ctx, s.cfg.RetryBackoff*time.Duration(attempt)); err != nil {
				return IssuedNumber{}, err
			}
		}
	}
	return IssuedNumber{}, appErrors.Wrap(lastErr, appErrors.ErrNumberingConflict.Code, appErrors.ErrNumberingConflict.Status, appErrors.ErrNumberingConflict.Message)
}

func (s *NumberingService) allocate(ctx context.Context, configurationID string, year int) (IssuedNumber, error) {
	cfg, err := s.configs.GetByID(ctx, configurationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return IssuedNumber{}, appErrors.ErrConfigurationNotFound
		}
		return IssuedNumber{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load register configuration")
	}
	if !cfg.Active {
		return IssuedNumber{}, appErrors.Clone(appErrors.ErrConfigurationNotFound, "register configuration is inactive")
	}

	scope := cfg.ScopeYear(year)
	startingNumber := cfg.StartingNumber
	if startingNumber < 1 {
		startingNumber = 1
	}
	number, err := s.counters.Increment(ctx, cfg.ID, scope, startingNumber)
	if err != nil {
		if isNumberingConflict(err) {
			return IssuedNumber{}, err
		}
		return IssuedNumber{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to increment register counter")
	}
	return IssuedNumber{Number: number, ScopeYear: scope, Configuration: cfg}, nil
}

// isNumberingConflict reports Postgres errors that mean another transaction won
// the race for the counter row or the number.
func isNumberingConflict(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case pqSerializationFailure, pqDeadlockDetected, pqUniqueViolation:
		return true
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
