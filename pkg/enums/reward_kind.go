package enums

import "fmt"

// RewardKind tags the shape of a reward catalog item.
type RewardKind string

const (
	RewardKindDiscount     RewardKind = "discount"
	RewardKindFreeService  RewardKind = "free_service"
	RewardKindSubscription RewardKind = "subscription"
)

var validRewardKinds = []RewardKind{
	RewardKindDiscount,
	RewardKindFreeService,
	RewardKindSubscription,
}

// IsValid reports whether the value matches the canonical reward kind enum.
func (k RewardKind) IsValid() bool {
	for _, candidate := range validRewardKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseRewardKind converts raw input into RewardKind.
func ParseRewardKind(value string) (RewardKind, error) {
	for _, candidate := range validRewardKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reward kind %q", value)
}
