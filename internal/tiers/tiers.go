package tiers

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/angelmondragon/loyalty-backend/pkg/errors"
)

// Band is one membership tier covering balances in [Lower, Upper).
// The top band leaves Upper nil and is open-ended.
type Band struct {
	Name       string
	Lower      int64
	Upper      *int64
	Multiplier decimal.Decimal
}

// Table is an ordered set of contiguous bands starting at zero.
type Table struct {
	bands []Band
}

// Standing describes where a balance sits within the table.
type Standing struct {
	Tier            string
	NextTier        *string
	PointsToNext    *int64
	ProgressPercent float64
}

type fileBand struct {
	Name       string `yaml:"name"`
	Lower      int64  `yaml:"lower"`
	Upper      *int64 `yaml:"upper"`
	Multiplier string `yaml:"multiplier"`
}

type fileTable struct {
	Tiers []fileBand `yaml:"tiers"`
}

// LoadTable reads a tier table from a YAML file and validates it.
func LoadTable(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "reading tier table")
	}

	var file fileTable
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "parsing tier table")
	}

	bands := make([]Band, 0, len(file.Tiers))
	for _, fb := range file.Tiers {
		multiplier := decimal.NewFromInt(1)
		if fb.Multiplier != "" {
			multiplier, err = decimal.NewFromString(fb.Multiplier)
			if err != nil {
				return nil, errors.Wrap(errors.CodeInternal, err,
					fmt.Sprintf("tier %q multiplier", fb.Name))
			}
		}
		bands = append(bands, Band{
			Name:       fb.Name,
			Lower:      fb.Lower,
			Upper:      fb.Upper,
			Multiplier: multiplier,
		})
	}
	return NewTable(bands)
}

// NewTable validates the bands and returns a usable table.
func NewTable(bands []Band) (*Table, error) {
	if len(bands) == 0 {
		return nil, errors.New(errors.CodeInternal, "tier table is empty")
	}
	if bands[0].Lower != 0 {
		return nil, errors.New(errors.CodeInternal, "tier table must start at zero")
	}

	names := make(map[string]struct{}, len(bands))
	for i, band := range bands {
		if band.Name == "" {
			return nil, errors.New(errors.CodeInternal, "tier band missing name")
		}
		if _, dup := names[band.Name]; dup {
			return nil, errors.New(errors.CodeInternal,
				fmt.Sprintf("duplicate tier name %q", band.Name))
		}
		names[band.Name] = struct{}{}

		if band.Multiplier.LessThanOrEqual(decimal.Zero) {
			return nil, errors.New(errors.CodeInternal,
				fmt.Sprintf("tier %q multiplier must be positive", band.Name))
		}

		last := i == len(bands)-1
		if band.Upper == nil {
			if !last {
				return nil, errors.New(errors.CodeInternal,
					fmt.Sprintf("tier %q is open-ended but not last", band.Name))
			}
			continue
		}
		if *band.Upper <= band.Lower {
			return nil, errors.New(errors.CodeInternal,
				fmt.Sprintf("tier %q upper bound must exceed lower bound", band.Name))
		}
		if last {
			continue
		}
		if bands[i+1].Lower != *band.Upper {
			return nil, errors.New(errors.CodeInternal,
				fmt.Sprintf("gap between tiers %q and %q", band.Name, bands[i+1].Name))
		}
	}

	return &Table{bands: bands}, nil
}

// Classify maps a balance onto its band. Negative balances sit in the
// lowest band with zero progress.
func (t *Table) Classify(balance int64) Standing {
	if balance < 0 {
		balance = 0
	}

	idx := 0
	for i, band := range t.bands {
		if balance < band.Lower {
			break
		}
		idx = i
	}
	band := t.bands[idx]

	standing := Standing{Tier: band.Name}
	if band.Upper == nil {
		standing.ProgressPercent = 100
		return standing
	}

	next := t.bands[idx+1].Name
	toNext := *band.Upper - balance
	standing.NextTier = &next
	standing.PointsToNext = &toNext

	span := *band.Upper - band.Lower
	progress := float64(balance-band.Lower) / float64(span) * 100
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	standing.ProgressPercent = progress
	return standing
}

// Multiplier returns the earn multiplier for the band the balance sits in.
func (t *Table) Multiplier(balance int64) decimal.Decimal {
	return t.band(balance).Multiplier
}

// EarnPoints converts a spend amount into points using the multiplier of
// the band holding the current balance. The result is floored and never
// negative.
func (t *Table) EarnPoints(amount decimal.Decimal, balance int64) int64 {
	if amount.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	points := amount.Mul(t.band(balance).Multiplier).Floor().IntPart()
	if points < 0 {
		return 0
	}
	return points
}

// Bands returns the table contents in order.
func (t *Table) Bands() []Band {
	out := make([]Band, len(t.bands))
	copy(out, t.bands)
	return out
}

func (t *Table) band(balance int64) Band {
	if balance < 0 {
		balance = 0
	}
	idx := 0
	for i, band := range t.bands {
		if balance < band.Lower {
			break
		}
		idx = i
	}
	return t.bands[idx]
}
