package models

import (
	"time"

	"github.com/google/uuid"
)

// LoyaltyAccount anchors one member's append-only points ledger. Version is
// the optimistic concurrency counter: every append bumps it, and an append
// that carries a stale expected version is rejected.
type LoyaltyAccount struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Version   int64     `gorm:"column:version;not null;default:0" json:"version"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName overrides GORM's default pluralization.
func (LoyaltyAccount) TableName() string {
	return "loyalty_accounts"
}
