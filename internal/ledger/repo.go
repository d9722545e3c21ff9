package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/loyalty-backend/pkg/db"
	"github.com/angelmondragon/loyalty-backend/pkg/db/models"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
	"github.com/angelmondragon/loyalty-backend/pkg/pagination"
)

const sourceUniqueConstraint = "uq_points_entries_source"

// Repository is the only component that persists ledger state. Append is the
// sole mutation primitive: entries are never updated or deleted.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	EnsureAccount(ctx context.Context, accountID uuid.UUID) (*models.LoyaltyAccount, error)
	GetAccount(ctx context.Context, accountID uuid.UUID) (*models.LoyaltyAccount, error)
	Append(ctx context.Context, entry *models.PointsEntry, expectedVersion int64) error
	GetBySource(ctx context.Context, accountID uuid.UUID, sourceType enums.PointsSourceType, sourceID string) (*models.PointsEntry, error)
	List(ctx context.Context, params ListParams) ([]models.PointsEntry, *pagination.Cursor, error)
	SumDeltas(ctx context.Context, accountID uuid.UUID) (int64, error)
	SumEarned(ctx context.Context, accountID uuid.UUID) (int64, error)
	ListExpirable(ctx context.Context, before time.Time, cursor *pagination.Cursor, limit int) ([]models.PointsEntry, *pagination.Cursor, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

// ListParams configures cursor pagination over one account's ledger.
type ListParams struct {
	AccountID uuid.UUID
	Limit     int
	Cursor    *pagination.Cursor
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// EnsureAccount creates the account row if it does not exist yet. Accounts are
// created lazily on the first legitimate ledger operation.
func (r *repository) EnsureAccount(ctx context.Context, accountID uuid.UUID) (*models.LoyaltyAccount, error) {
	account := &models.LoyaltyAccount{ID: accountID}
	err := r.db.WithContext(ctx).
		Where("id = ?", accountID).
		FirstOrCreate(account).Error
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return r.GetAccount(ctx, accountID)
		}
		return nil, err
	}
	return account, nil
}

func (r *repository) GetAccount(ctx context.Context, accountID uuid.UUID) (*models.LoyaltyAccount, error) {
	var account models.LoyaltyAccount
	err := r.db.WithContext(ctx).
		Where("id = ?", accountID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "loyalty account not found")
		}
		return nil, err
	}
	return &account, nil
}

// Append inserts one immutable entry while bumping the account version. The
// version predicate is the optimistic concurrency check: if another append won
// the race since the caller read the account, zero rows match and the caller
// gets CONCURRENT_MODIFICATION to retry its whole read-check-append sequence.
func (r *repository) Append(ctx context.Context, entry *models.PointsEntry, expectedVersion int64) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.LoyaltyAccount{}).
			Where("id = ? AND version = ?", entry.AccountID, expectedVersion).
			Updates(map[string]any{
				"version":    gorm.Expr("version + 1"),
				"updated_at": time.Now().UTC(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.LoyaltyAccount{}).
				Where("id = ?", entry.AccountID).
				Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return pkgerrors.New(pkgerrors.CodeNotFound, "loyalty account not found")
			}
			return pkgerrors.New(pkgerrors.CodeConcurrentMod, "account version advanced")
		}

		if err := tx.Create(entry).Error; err != nil {
			if db.IsUniqueViolation(err, sourceUniqueConstraint) {
				return pkgerrors.Wrap(pkgerrors.CodeDuplicateEntry, err, "entry already recorded for this source")
			}
			return err
		}
		return nil
	})
}

func (r *repository) GetBySource(ctx context.Context, accountID uuid.UUID, sourceType enums.PointsSourceType, sourceID string) (*models.PointsEntry, error) {
	var entry models.PointsEntry
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND source_type = ? AND source_id = ?", accountID, sourceType, sourceID).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "ledger entry not found")
		}
		return nil, err
	}
	return &entry, nil
}

// List returns one page of an account's entries newest-first. Storage order is
// append order; display order is its reverse.
func (r *repository) List(ctx context.Context, params ListParams) ([]models.PointsEntry, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.PointsEntry{}).Where("account_id = ?", params.AccountID)
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var entries []models.PointsEntry
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, nil, err
	}

	if len(entries) > normalized {
		// Resume strictly below the last row returned; cutting the
		// cursor from the look-ahead row would skip it on the next page.
		entries = entries[:normalized]
		last := entries[len(entries)-1]
		return entries, &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
	}
	return entries, nil, nil
}

// SumDeltas folds the account's full ledger into its current balance. The sum
// is order-independent, so a single SQL aggregate is exact.
func (r *repository) SumDeltas(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var total *int64
	err := r.db.WithContext(ctx).
		Model(&models.PointsEntry{}).
		Select("SUM(delta)").
		Where("account_id = ?", accountID).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

// SumEarned totals only positive earn deltas, giving the lifetime-earned figure.
func (r *repository) SumEarned(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var total *int64
	err := r.db.WithContext(ctx).
		Model(&models.PointsEntry{}).
		Select("SUM(delta)").
		Where("account_id = ? AND kind = ? AND delta > 0", accountID, enums.PointsEntryKindEarn).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

// ListExpirable returns earn entries whose validity window has passed and that
// have no paired expire entry yet. The expire pair is keyed by the earn
// entry's ID as its source, so the unique source index makes each earn
// expirable exactly once. Oldest-first with a cursor so sweeps can checkpoint
// between batches.
func (r *repository) ListExpirable(ctx context.Context, before time.Time, cursor *pagination.Cursor, limit int) ([]models.PointsEntry, *pagination.Cursor, error) {
	bounded := pagination.NormalizeLimit(limit)
	query := r.db.WithContext(ctx).
		Model(&models.PointsEntry{}).
		Where("kind = ?", enums.PointsEntryKindEarn).
		Where("expires_at IS NOT NULL AND expires_at <= ?", before).
		Where(`NOT EXISTS (
			SELECT 1 FROM points_entries expired
			WHERE expired.account_id = points_entries.account_id
			  AND expired.source_type = ?
			  AND expired.source_id = CAST(points_entries.id AS TEXT)
		)`, enums.PointsSourceTypeExpiration)
	if cursor != nil {
		query = query.Where("(created_at, id) > (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var entries []models.PointsEntry
	if err := query.Order("created_at ASC, id ASC").Limit(bounded + 1).Find(&entries).Error; err != nil {
		return nil, nil, err
	}

	if len(entries) > bounded {
		entries = entries[:bounded]
		last := entries[len(entries)-1]
		return entries, &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
	}
	return entries, nil, nil
}
