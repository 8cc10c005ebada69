package freeagency

import (
	"context"
	"fmt"

	"github.com/jensholdgaard/footy-fa-bot/internal/store"
)

// defaultContractYears applies when no contract rule covers an age.
const defaultContractYears = 2

// Reference answers contract length, compensation band and draft value
// questions from the configuration tables.
type Reference struct {
	contracts []store.ContractRule
	// bands[age][ovr] is the best (lowest) band covering the cell, 0 if none.
	bands  [][]int
	values map[int]int
}

// NewReference precomputes the lookups. Compensation rules are expanded
// into a dense age × rating table; a nil upper bound means the range is the
// single lower value, and overlapping rows resolve to the lowest band.
func NewReference(contracts []store.ContractRule, chart []store.CompensationRule, values []store.DraftValue) *Reference {
	r := &Reference{contracts: contracts, values: make(map[int]int, len(values))}
	for _, v := range values {
		r.values[v.PickNumber] = v.Points
	}

	maxAge, maxOVR := 0, 0
	for _, row := range chart {
		maxAge = max(maxAge, upper(row.MinAge, row.MaxAge))
		maxOVR = max(maxOVR, upper(row.MinOVR, row.MaxOVR))
	}
	if len(chart) == 0 {
		return r
	}
	r.bands = make([][]int, maxAge+1)
	for age := range r.bands {
		r.bands[age] = make([]int, maxOVR+1)
	}
	for _, row := range chart {
		if row.Band < 1 {
			continue
		}
		for age := max(row.MinAge, 0); age <= upper(row.MinAge, row.MaxAge); age++ {
			for ovr := max(row.MinOVR, 0); ovr <= upper(row.MinOVR, row.MaxOVR); ovr++ {
				if cur := r.bands[age][ovr]; cur == 0 || row.Band < cur {
					r.bands[age][ovr] = row.Band
				}
			}
		}
	}
	return r
}

func upper(lo int, hi *int) int {
	if hi == nil {
		return lo
	}
	return *hi
}

// LoadReference reads the configuration tables through ref.
func LoadReference(ctx context.Context, ref store.ReferenceRepository) (*Reference, error) {
	contracts, err := ref.ContractRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading reference tables: %w", err)
	}
	chart, err := ref.CompensationRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading reference tables: %w", err)
	}
	values, err := ref.DraftValues(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading reference tables: %w", err)
	}
	return NewReference(contracts, chart, values), nil
}

// ContractYears returns the contract length for a player of age. A rule with
// no max_age is open-ended.
func (r *Reference) ContractYears(age int) int {
	for _, rule := range r.contracts {
		if age < rule.MinAge {
			continue
		}
		if rule.MaxAge == nil || age <= *rule.MaxAge {
			return rule.Years
		}
	}
	return defaultContractYears
}

// CompensationBand returns the band for a player of the given age and
// overall rating, and false when the chart awards nothing.
func (r *Reference) CompensationBand(age, ovr int) (int, bool) {
	if age < 0 || ovr < 0 || age >= len(r.bands) || ovr >= len(r.bands[age]) {
		return 0, false
	}
	band := r.bands[age][ovr]
	return band, band != 0
}

// DraftValue returns the trade value of an overall pick number, 0 if unknown.
func (r *Reference) DraftValue(pick int) int {
	return r.values[pick]
}
