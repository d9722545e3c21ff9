package loyalty

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/loyalty-backend/internal/ledger"
	"github.com/angelmondragon/loyalty-backend/internal/rewards"
	"github.com/angelmondragon/loyalty-backend/internal/tiers"
	"github.com/angelmondragon/loyalty-backend/pkg/db/models"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/angelmondragon/loyalty-backend/pkg/metrics"
	"github.com/angelmondragon/loyalty-backend/pkg/pagination"
)

const (
	defaultMaxRetries = 5
	defaultRetryBase  = 10 * time.Millisecond
)

// EarnInput captures one points-earning event from an upstream producer.
// Exactly one of Points or Amount must be set: Points credits a fixed
// number, Amount converts a spend through the tier multiplier.
type EarnInput struct {
	AccountID  uuid.UUID
	SourceType enums.PointsSourceType
	SourceID   string
	Points     *int64
	Amount     *decimal.Decimal
	Metadata   json.RawMessage
}

// RedeemInput identifies the account and the catalog reward to redeem.
type RedeemInput struct {
	AccountID uuid.UUID
	RewardID  string
}

// HistoryInput pages through an account's ledger.
type HistoryInput struct {
	AccountID uuid.UUID
	Limit     int
	Cursor    string
}

// Service exposes the loyalty operations backed by the points ledger.
type Service interface {
	Earn(ctx context.Context, input EarnInput) (*EarnResult, error)
	Redeem(ctx context.Context, input RedeemInput) (*RedeemResult, error)
	GetSummary(ctx context.Context, accountID uuid.UUID) (*Summary, error)
	GetHistory(ctx context.Context, input HistoryInput) (*HistoryPage, error)
	ListRewards(ctx context.Context, accountID uuid.UUID) ([]RewardOffer, error)
}

// ServiceParams groups dependencies for the loyalty service.
type ServiceParams struct {
	Repo    ledger.Repository
	Tiers   *tiers.Table
	Catalog *rewards.Catalog
	Logger  *logger.Logger
	Metrics *metrics.LoyaltyMetrics

	// EarnValidity is how long earned points live before the expiration
	// sweep may reclaim them. Zero disables expiry stamping.
	EarnValidity time.Duration
	// MaxRetries bounds how often a write is retried after losing a
	// version race before CONCURRENT_MODIFICATION is surfaced.
	MaxRetries int
	RetryBase  time.Duration
}

type service struct {
	repo         ledger.Repository
	tiers        *tiers.Table
	catalog      *rewards.Catalog
	logg         *logger.Logger
	metrics      *metrics.LoyaltyMetrics
	earnValidity time.Duration
	maxRetries   int
	retryBase    time.Duration
	now          func() time.Time
}

// NewService builds a loyalty service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("repo is required")
	}
	if params.Tiers == nil {
		return nil, fmt.Errorf("tier table is required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("reward catalog is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	retryBase := params.RetryBase
	if retryBase <= 0 {
		retryBase = defaultRetryBase
	}
	return &service{
		repo:         params.Repo,
		tiers:        params.Tiers,
		catalog:      params.Catalog,
		logg:         params.Logger,
		metrics:      params.Metrics,
		earnValidity: params.EarnValidity,
		maxRetries:   maxRetries,
		retryBase:    retryBase,
		now:          time.Now,
	}, nil
}

func (s *service) Earn(ctx context.Context, input EarnInput) (*EarnResult, error) {
	if err := validateEarnInput(input); err != nil {
		return nil, err
	}
	ctx = s.logg.WithAccountID(ctx, input.AccountID.String())
	ctx = s.logg.WithSource(ctx, string(input.SourceType), input.SourceID)

	account, err := s.repo.EnsureAccount(ctx, input.AccountID)
	if err != nil {
		return nil, err
	}

	version := account.Version
	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			if err := s.backoff(ctx, attempt); err != nil {
				return nil, err
			}
			fresh, err := s.repo.GetAccount(ctx, input.AccountID)
			if err != nil {
				return nil, err
			}
			version = fresh.Version
		}

		delta, err := s.earnDelta(ctx, input)
		if err != nil {
			return nil, err
		}

		entry := &models.PointsEntry{
			AccountID:  input.AccountID,
			Kind:       enums.PointsEntryKindEarn,
			Delta:      delta,
			SourceType: input.SourceType,
			SourceID:   input.SourceID,
			Metadata:   input.Metadata,
		}
		if s.earnValidity > 0 {
			expiresAt := s.now().UTC().Add(s.earnValidity)
			entry.ExpiresAt = &expiresAt
		}

		err = s.repo.Append(ctx, entry, version)
		switch {
		case err == nil:
			s.metrics.IncEntryAppended(string(enums.PointsEntryKindEarn))
			balance, err := s.repo.SumDeltas(ctx, input.AccountID)
			if err != nil {
				return nil, err
			}
			s.logg.Info(ctx, "points earned")
			return &EarnResult{Entry: ToEntryDTO(entry), Balance: balance}, nil
		case pkgerrors.HasCode(err, pkgerrors.CodeDuplicateEntry):
			// Replays of the same source event are a success: surface the
			// entry that already credited it.
			existing, getErr := s.repo.GetBySource(ctx, input.AccountID, input.SourceType, input.SourceID)
			if getErr != nil {
				return nil, getErr
			}
			balance, balErr := s.repo.SumDeltas(ctx, input.AccountID)
			if balErr != nil {
				return nil, balErr
			}
			s.logg.Info(ctx, "duplicate earn event suppressed")
			return &EarnResult{Entry: ToEntryDTO(existing), Duplicate: true, Balance: balance}, nil
		case pkgerrors.HasCode(err, pkgerrors.CodeConcurrentMod):
			s.metrics.IncVersionRetry()
			lastErr = err
		default:
			return nil, err
		}
	}
	return nil, lastErr
}

func (s *service) Redeem(ctx context.Context, input RedeemInput) (*RedeemResult, error) {
	ctx = s.logg.WithAccountID(ctx, input.AccountID.String())

	reward, err := s.catalog.Get(input.RewardID, s.now())
	if err != nil {
		s.metrics.IncRedemption("reward_unavailable")
		return nil, err
	}

	account, err := s.repo.EnsureAccount(ctx, input.AccountID)
	if err != nil {
		return nil, err
	}

	version := account.Version
	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			if err := s.backoff(ctx, attempt); err != nil {
				return nil, err
			}
			fresh, err := s.repo.GetAccount(ctx, input.AccountID)
			if err != nil {
				return nil, err
			}
			version = fresh.Version
		}

		balance, err := s.repo.SumDeltas(ctx, input.AccountID)
		if err != nil {
			return nil, err
		}
		if balance < reward.Cost {
			s.metrics.IncRedemption("insufficient_balance")
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientBalance,
				fmt.Sprintf("balance %d is below the %d required for %q", balance, reward.Cost, reward.ID)).
				WithDetails(map[string]int64{"balance": balance, "required": reward.Cost})
		}

		entry := &models.PointsEntry{
			AccountID:  input.AccountID,
			Kind:       enums.PointsEntryKindRedeem,
			Delta:      -reward.Cost,
			SourceType: enums.PointsSourceTypeRedemption,
			SourceID:   uuid.NewString(),
			Metadata:   redemptionMetadata(reward),
		}

		err = s.repo.Append(ctx, entry, version)
		switch {
		case err == nil:
			s.metrics.IncEntryAppended(string(enums.PointsEntryKindRedeem))
			s.metrics.IncRedemption("success")
			s.logg.Info(ctx, "reward redeemed")
			return &RedeemResult{
				Entry:   ToEntryDTO(entry),
				Reward:  *reward,
				Balance: balance - reward.Cost,
			}, nil
		case pkgerrors.HasCode(err, pkgerrors.CodeConcurrentMod):
			s.metrics.IncVersionRetry()
			lastErr = err
		default:
			return nil, err
		}
	}
	s.metrics.IncRedemption("conflict")
	return nil, lastErr
}

func (s *service) GetSummary(ctx context.Context, accountID uuid.UUID) (*Summary, error) {
	_, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		// Accounts come into being with their first earn. Until then the
		// app still renders a summary: zero points, lowest tier.
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return summaryFromStanding(accountID, 0, 0, s.tiers.Classify(0)), nil
		}
		return nil, err
	}

	balance, err := s.repo.SumDeltas(ctx, accountID)
	if err != nil {
		return nil, err
	}
	earned, err := s.repo.SumEarned(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return summaryFromStanding(accountID, balance, earned, s.tiers.Classify(balance)), nil
}

func (s *service) GetHistory(ctx context.Context, input HistoryInput) (*HistoryPage, error) {
	params := ledger.ListParams{
		AccountID: input.AccountID,
		Limit:     pagination.NormalizeLimit(input.Limit),
	}
	if input.Cursor != "" {
		cursor, err := pagination.ParseCursor(input.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		params.Cursor = cursor
	}

	entries, next, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, err
	}

	page := &HistoryPage{Entries: make([]EntryDTO, 0, len(entries))}
	for i := range entries {
		page.Entries = append(page.Entries, ToEntryDTO(&entries[i]))
	}
	if next != nil {
		encoded := pagination.EncodeCursor(*next)
		page.NextCursor = &encoded
	}
	return page, nil
}

func (s *service) ListRewards(ctx context.Context, accountID uuid.UUID) ([]RewardOffer, error) {
	balance, err := s.repo.SumDeltas(ctx, accountID)
	if err != nil {
		return nil, err
	}

	available := s.catalog.List(s.now())
	offers := make([]RewardOffer, 0, len(available))
	for _, reward := range available {
		offers = append(offers, RewardOffer{
			Reward:     reward,
			Affordable: balance >= reward.Cost,
		})
	}
	return offers, nil
}

// earnDelta resolves the credited points for one earn event. Explicit
// point grants pass through untouched; spend amounts go through the
// multiplier of the account's current tier.
func (s *service) earnDelta(ctx context.Context, input EarnInput) (int64, error) {
	if input.Points != nil {
		return *input.Points, nil
	}
	balance, err := s.repo.SumDeltas(ctx, input.AccountID)
	if err != nil {
		return 0, err
	}
	points := s.tiers.EarnPoints(*input.Amount, balance)
	if points <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount converts to zero points")
	}
	return points, nil
}

func (s *service) backoff(ctx context.Context, attempt int) error {
	delay := s.retryBase << (attempt - 1)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func validateEarnInput(input EarnInput) error {
	if input.AccountID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	if !input.SourceType.CanEarn() {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("source type %q cannot earn points", input.SourceType))
	}
	if input.SourceID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "source id is required")
	}
	if (input.Points == nil) == (input.Amount == nil) {
		return pkgerrors.New(pkgerrors.CodeValidation, "exactly one of points or amount is required")
	}
	if input.Points != nil && *input.Points <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "points must be positive")
	}
	if input.Amount != nil && input.Amount.LessThanOrEqual(decimal.Zero) {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	return nil
}

func redemptionMetadata(reward *rewards.Reward) json.RawMessage {
	payload, err := json.Marshal(map[string]any{
		"reward_id":   reward.ID,
		"reward_name": reward.Name,
		"reward_kind": reward.Kind,
	})
	if err != nil {
		return nil
	}
	return payload
}
