package freeagency

import "github.com/jensholdgaard/footy-fa-bot/internal/store"

// PhaseNone is reported when the season has no period yet.
const PhaseNone = "none"

var phaseOrder = map[string]int{
	PhaseNone:             0,
	store.PeriodResign:    1,
	store.PeriodBidding:   2,
	store.PeriodMatching:  3,
	store.PeriodCompleted: 4,
}

// CanTransition reports whether a period may move from one phase to
// another. A new period opens in resign, or straight in bidding when
// re-signs are skipped; after that each phase advances to the next only.
func CanTransition(from, to string) bool {
	if from == PhaseNone {
		return to == store.PeriodResign || to == store.PeriodBidding
	}
	f, okFrom := phaseOrder[from]
	t, okTo := phaseOrder[to]
	return okFrom && okTo && t == f+1
}

// NextPhase returns the phase that follows p, or "" when p is final.
func NextPhase(p string) string {
	switch p {
	case PhaseNone:
		return store.PeriodResign
	case store.PeriodResign:
		return store.PeriodBidding
	case store.PeriodBidding:
		return store.PeriodMatching
	case store.PeriodMatching:
		return store.PeriodCompleted
	}
	return ""
}

func phaseOf(p *store.Period) string {
	if p == nil {
		return PhaseNone
	}
	return p.Status
}
