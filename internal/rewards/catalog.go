package rewards

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	"github.com/angelmondragon/loyalty-backend/pkg/errors"
)

// Reward is one redeemable catalog item. Cost is in points.
type Reward struct {
	ID             string           `yaml:"id"`
	Name           string           `yaml:"name"`
	Kind           enums.RewardKind `yaml:"kind"`
	Cost           int64            `yaml:"cost"`
	AvailableFrom  *time.Time       `yaml:"available_from"`
	AvailableUntil *time.Time       `yaml:"available_until"`
	InStock        bool             `yaml:"in_stock"`
}

// Catalog holds the redeemable rewards, keyed by ID for lookups.
type Catalog struct {
	rewards []Reward
	byID    map[string]Reward
}

type catalogFile struct {
	Rewards []Reward `yaml:"rewards"`
}

// LoadCatalog reads a reward catalog from a YAML file and validates it.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "reading reward catalog")
	}

	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "parsing reward catalog")
	}
	return NewCatalog(file.Rewards)
}

// NewCatalog validates the rewards and returns a usable catalog.
func NewCatalog(rewards []Reward) (*Catalog, error) {
	byID := make(map[string]Reward, len(rewards))
	for _, r := range rewards {
		if r.ID == "" {
			return nil, errors.New(errors.CodeInternal, "reward missing id")
		}
		if _, dup := byID[r.ID]; dup {
			return nil, errors.New(errors.CodeInternal,
				fmt.Sprintf("duplicate reward id %q", r.ID))
		}
		if r.Name == "" {
			return nil, errors.New(errors.CodeInternal,
				fmt.Sprintf("reward %q missing name", r.ID))
		}
		if !r.Kind.IsValid() {
			return nil, errors.New(errors.CodeInternal,
				fmt.Sprintf("reward %q has unknown kind %q", r.ID, r.Kind))
		}
		if r.Cost <= 0 {
			return nil, errors.New(errors.CodeInternal,
				fmt.Sprintf("reward %q cost must be positive", r.ID))
		}
		if r.AvailableFrom != nil && r.AvailableUntil != nil && !r.AvailableFrom.Before(*r.AvailableUntil) {
			return nil, errors.New(errors.CodeInternal,
				fmt.Sprintf("reward %q availability window is empty", r.ID))
		}
		byID[r.ID] = r
	}
	return &Catalog{rewards: rewards, byID: byID}, nil
}

// Get returns the reward if it is redeemable at the given time. Unknown,
// out-of-window and out-of-stock rewards all surface as REWARD_UNAVAILABLE
// so callers never leak catalog internals.
func (c *Catalog) Get(rewardID string, now time.Time) (*Reward, error) {
	reward, ok := c.byID[rewardID]
	if !ok || !available(reward, now) {
		return nil, errors.New(errors.CodeRewardUnavailable,
			fmt.Sprintf("reward %q is not available", rewardID))
	}
	return &reward, nil
}

// List returns the rewards redeemable at the given time, in catalog order.
func (c *Catalog) List(now time.Time) []Reward {
	out := make([]Reward, 0, len(c.rewards))
	for _, r := range c.rewards {
		if available(r, now) {
			out = append(out, r)
		}
	}
	return out
}

func available(r Reward, now time.Time) bool {
	if !r.InStock {
		return false
	}
	if r.AvailableFrom != nil && now.Before(*r.AvailableFrom) {
		return false
	}
	if r.AvailableUntil != nil && !now.Before(*r.AvailableUntil) {
		return false
	}
	return true
}
