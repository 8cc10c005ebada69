package store

import "math"

func intp(v int) *int { return &v }

// DefaultContractRules is the contract_config table seeded into empty stores.
func DefaultContractRules() []ContractRule {
	return []ContractRule{
		{MinAge: 16, MaxAge: intp(23), Years: 5},
		{MinAge: 24, MaxAge: intp(26), Years: 4},
		{MinAge: 27, MaxAge: intp(29), Years: 3},
		{MinAge: 30, MaxAge: intp(31), Years: 2},
		{MinAge: 32, Years: 1},
	}
}

// DefaultCompensationRules is the compensation_chart table seeded into empty stores.
func DefaultCompensationRules() []CompensationRule {
	return []CompensationRule{
		{MinAge: 16, MaxAge: intp(25), MinOVR: 85, MaxOVR: intp(99), Band: 1},
		{MinAge: 16, MaxAge: intp(25), MinOVR: 80, MaxOVR: intp(84), Band: 2},
		{MinAge: 26, MaxAge: intp(29), MinOVR: 88, MaxOVR: intp(99), Band: 2},
		{MinAge: 26, MaxAge: intp(29), MinOVR: 84, MaxOVR: intp(87), Band: 3},
		{MinAge: 30, MaxAge: intp(31), MinOVR: 88, MaxOVR: intp(99), Band: 3},
		{MinAge: 26, MaxAge: intp(29), MinOVR: 80, MaxOVR: intp(83), Band: 4},
		{MinAge: 30, MaxAge: intp(31), MinOVR: 84, MaxOVR: intp(87), Band: 4},
		{MinAge: 16, MaxAge: intp(31), MinOVR: 75, MaxOVR: intp(79), Band: 5},
		{MinAge: 32, MinOVR: 90, MaxOVR: intp(99), Band: 5},
	}
}

// DefaultDraftValues is the draft_value_index table seeded into empty stores:
// four rounds of eighteen picks with geometrically decaying value.
func DefaultDraftValues() []DraftValue {
	values := make([]DraftValue, 0, 72)
	for n := 1; n <= 72; n++ {
		values = append(values, DraftValue{
			PickNumber: n,
			Points:     int(math.Round(3000 * math.Pow(0.94, float64(n-1)))),
		})
	}
	return values
}
