package enums

import "fmt"

// PointsEntryKind maps to the points_entry_kind_enum enum in Postgres.
type PointsEntryKind string

const (
	PointsEntryKindEarn       PointsEntryKind = "earn"
	PointsEntryKindRedeem     PointsEntryKind = "redeem"
	PointsEntryKindExpire     PointsEntryKind = "expire"
	PointsEntryKindAdjustment PointsEntryKind = "adjustment"
)

var validPointsEntryKinds = []PointsEntryKind{
	PointsEntryKindEarn,
	PointsEntryKindRedeem,
	PointsEntryKindExpire,
	PointsEntryKindAdjustment,
}

// IsValid reports whether the value matches the canonical entry kind enum.
func (k PointsEntryKind) IsValid() bool {
	for _, candidate := range validPointsEntryKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// Deduplicated reports whether entries of this kind participate in the
// (account, source_type, source_id) uniqueness check. Adjustments are exempt
// so that repeated manual corrections against the same source stay possible.
func (k PointsEntryKind) Deduplicated() bool {
	return k != PointsEntryKindAdjustment
}

// ParsePointsEntryKind converts raw input into PointsEntryKind.
func ParsePointsEntryKind(value string) (PointsEntryKind, error) {
	for _, candidate := range validPointsEntryKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid points entry kind %q", value)
}
