package loyalty

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/loyalty-backend/internal/rewards"
	"github.com/angelmondragon/loyalty-backend/internal/tiers"
	"github.com/angelmondragon/loyalty-backend/pkg/db/models"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
)

// EntryDTO is the transport shape for one ledger entry.
type EntryDTO struct {
	ID         uuid.UUID              `json:"id"`
	Kind       enums.PointsEntryKind  `json:"kind"`
	Delta      int64                  `json:"delta"`
	SourceType enums.PointsSourceType `json:"source_type"`
	SourceID   string                 `json:"source_id"`
	ExpiresAt  *time.Time             `json:"expires_at,omitempty"`
	Metadata   json.RawMessage        `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Summary is the account view the mobile app renders on the loyalty screen.
type Summary struct {
	AccountID       uuid.UUID `json:"account_id"`
	Balance         int64     `json:"balance"`
	LifetimeEarned  int64     `json:"lifetime_earned"`
	Tier            string    `json:"tier"`
	NextTier        *string   `json:"next_tier,omitempty"`
	PointsToNext    *int64    `json:"points_to_next,omitempty"`
	ProgressPercent float64   `json:"progress_percent"`
}

// HistoryPage is one page of ledger entries, newest first.
type HistoryPage struct {
	Entries    []EntryDTO `json:"entries"`
	NextCursor *string    `json:"next_cursor,omitempty"`
}

// EarnResult reports the outcome of recording an earn event. Duplicate is
// set when the source was already credited and the existing entry is
// returned instead of a new one.
type EarnResult struct {
	Entry     EntryDTO `json:"entry"`
	Duplicate bool     `json:"duplicate"`
	Balance   int64    `json:"balance"`
}

// RedeemResult reports a successful redemption.
type RedeemResult struct {
	Entry   EntryDTO       `json:"entry"`
	Reward  rewards.Reward `json:"reward"`
	Balance int64          `json:"balance"`
}

// RewardOffer pairs a catalog reward with whether the account can afford it.
type RewardOffer struct {
	Reward     rewards.Reward `json:"reward"`
	Affordable bool           `json:"affordable"`
}

// ToEntryDTO converts a ledger model to the external DTO.
func ToEntryDTO(m *models.PointsEntry) EntryDTO {
	return EntryDTO{
		ID:         m.ID,
		Kind:       m.Kind,
		Delta:      m.Delta,
		SourceType: m.SourceType,
		SourceID:   m.SourceID,
		ExpiresAt:  m.ExpiresAt,
		Metadata:   m.Metadata,
		CreatedAt:  m.CreatedAt,
	}
}

func summaryFromStanding(accountID uuid.UUID, balance, earned int64, standing tiers.Standing) *Summary {
	return &Summary{
		AccountID:       accountID,
		Balance:         balance,
		LifetimeEarned:  earned,
		Tier:            standing.Tier,
		NextTier:        standing.NextTier,
		PointsToNext:    standing.PointsToNext,
		ProgressPercent: standing.ProgressPercent,
	}
}
