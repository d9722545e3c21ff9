package enums

import "fmt"

// PointsSourceType identifies the upstream event that produced a ledger entry.
type PointsSourceType string

const (
	PointsSourceTypeBooking    PointsSourceType = "booking"
	PointsSourceTypeReferral   PointsSourceType = "referral"
	PointsSourceTypeReview     PointsSourceType = "review"
	PointsSourceTypeShare      PointsSourceType = "share"
	PointsSourceTypeRedemption PointsSourceType = "redemption"
	PointsSourceTypeExpiration PointsSourceType = "expiration"
	PointsSourceTypeManual     PointsSourceType = "manual"
)

var validPointsSourceTypes = []PointsSourceType{
	PointsSourceTypeBooking,
	PointsSourceTypeReferral,
	PointsSourceTypeReview,
	PointsSourceTypeShare,
	PointsSourceTypeRedemption,
	PointsSourceTypeExpiration,
	PointsSourceTypeManual,
}

// earnSourceTypes are the producers that may append earn entries.
var earnSourceTypes = map[PointsSourceType]struct{}{
	PointsSourceTypeBooking:  {},
	PointsSourceTypeReferral: {},
	PointsSourceTypeReview:   {},
	PointsSourceTypeShare:    {},
}

// IsValid reports whether the value matches the canonical source type enum.
func (t PointsSourceType) IsValid() bool {
	for _, candidate := range validPointsSourceTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// CanEarn reports whether the source type is allowed to produce earn entries.
func (t PointsSourceType) CanEarn() bool {
	_, ok := earnSourceTypes[t]
	return ok
}

// ParsePointsSourceType converts raw input into PointsSourceType.
func ParsePointsSourceType(value string) (PointsSourceType, error) {
	for _, candidate := range validPointsSourceTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid points source type %q", value)
}
