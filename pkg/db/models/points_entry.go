package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/loyalty-backend/pkg/enums"
)

// PointsEntry records one immutable, signed point change on an account's
// ledger. Entries are never updated or deleted; corrections land as new
// adjustment entries. The (account_id, source_type, source_id) tuple is
// unique for non-adjustment kinds and backs earn idempotency.
type PointsEntry struct {
	ID         uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	AccountID  uuid.UUID              `gorm:"column:account_id;type:uuid;not null;index:idx_points_entries_history,priority:1" json:"account_id"`
	Kind       enums.PointsEntryKind  `gorm:"column:kind;type:points_entry_kind_enum;not null" json:"kind"`
	Delta      int64                  `gorm:"column:delta;not null" json:"delta"`
	SourceType enums.PointsSourceType `gorm:"column:source_type;type:points_source_type_enum;not null" json:"source_type"`
	SourceID   string                 `gorm:"column:source_id;not null" json:"source_id"`
	ExpiresAt  *time.Time             `gorm:"column:expires_at" json:"expires_at,omitempty"`
	Metadata   json.RawMessage        `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt  time.Time              `gorm:"column:created_at;autoCreateTime;index:idx_points_entries_history,priority:2" json:"created_at"`
}

// TableName overrides GORM's default pluralization.
func (PointsEntry) TableName() string {
	return "points_entries"
}
