package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/loyalty-backend/internal/ledger"
	"github.com/angelmondragon/loyalty-backend/pkg/db/models"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/angelmondragon/loyalty-backend/pkg/metrics"
	"github.com/angelmondragon/loyalty-backend/pkg/pagination"
)

const (
	defaultExpireBatchSize  = 200
	defaultExpireMaxRetries = 3
)

// PointsExpirationJobParams configure the expiration sweep.
type PointsExpirationJobParams struct {
	Logger     *logger.Logger
	Repo       ledger.Repository
	Metrics    *metrics.LoyaltyMetrics
	BatchSize  int
	MaxRetries int
}

// NewPointsExpirationJob builds the job that reclaims points from earn
// entries whose validity window has passed.
func NewPointsExpirationJob(params PointsExpirationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultExpireBatchSize
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultExpireMaxRetries
	}
	return &pointsExpirationJob{
		logg:       params.Logger,
		repo:       params.Repo,
		metrics:    params.Metrics,
		batchSize:  batchSize,
		maxRetries: maxRetries,
		now:        time.Now,
	}, nil
}

type pointsExpirationJob struct {
	logg       *logger.Logger
	repo       ledger.Repository
	metrics    *metrics.LoyaltyMetrics
	batchSize  int
	maxRetries int
	now        func() time.Time
}

func (j *pointsExpirationJob) Name() string { return "points-expiration" }

func (j *pointsExpirationJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC()

	var swept, expired, failed int64
	var totalPoints int64
	var cursor *pagination.Cursor
	for {
		batch, next, err := j.repo.ListExpirable(ctx, cutoff, cursor, j.batchSize)
		if err != nil {
			return fmt.Errorf("list expirable entries: %w", err)
		}
		for i := range batch {
			swept++
			points, err := j.expireEntry(ctx, &batch[i])
			if err != nil {
				failed++
				entryCtx := j.logg.WithField(ctx, "entry_id", batch[i].ID.String())
				j.logg.Error(entryCtx, "failed to expire entry", err)
				continue
			}
			expired++
			totalPoints += points
		}
		if next == nil {
			break
		}
		cursor = next
	}

	j.metrics.AddPointsExpired(totalPoints)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"entries_swept":  swept,
		"entries_done":   expired,
		"entries_failed": failed,
		"points_expired": totalPoints,
	})
	j.logg.Info(logCtx, "points expiration sweep complete")
	if failed > 0 {
		return fmt.Errorf("points expiration: %d of %d entries failed", failed, swept)
	}
	return nil
}

// expireEntry writes the expire record paired with one aged earn entry.
// The reclaimed amount is capped at the current balance so redemptions
// that already spent the points are not clawed back below zero. A zero
// balance still gets a zero-delta marker, otherwise the sweep would
// revisit the entry forever.
func (j *pointsExpirationJob) expireEntry(ctx context.Context, earn *models.PointsEntry) (int64, error) {
	var lastErr error
	for attempt := 0; attempt < j.maxRetries; attempt++ {
		account, err := j.repo.GetAccount(ctx, earn.AccountID)
		if err != nil {
			return 0, err
		}
		balance, err := j.repo.SumDeltas(ctx, earn.AccountID)
		if err != nil {
			return 0, err
		}

		amount := earn.Delta
		if balance < amount {
			amount = balance
		}
		if amount < 0 {
			amount = 0
		}

		entry := &models.PointsEntry{
			AccountID:  earn.AccountID,
			Kind:       enums.PointsEntryKindExpire,
			Delta:      -amount,
			SourceType: enums.PointsSourceTypeExpiration,
			SourceID:   earn.ID.String(),
		}
		err = j.repo.Append(ctx, entry, account.Version)
		switch {
		case err == nil:
			j.metrics.IncEntryAppended(string(enums.PointsEntryKindExpire))
			return amount, nil
		case pkgerrors.HasCode(err, pkgerrors.CodeDuplicateEntry):
			// Another sweep already paired this entry.
			return 0, nil
		case pkgerrors.HasCode(err, pkgerrors.CodeConcurrentMod):
			j.metrics.IncVersionRetry()
			lastErr = err
		default:
			return 0, err
		}
	}
	return 0, lastErr
}
