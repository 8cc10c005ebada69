package freeagency

import (
	"errors"
	"fmt"
	"strings"
)

// Precondition failures. They are returned wrapped in *PreconditionError and
// can be matched with errors.Is.
var (
	ErrNoSeason         = errors.New("no season has been recorded")
	ErrSeasonActive     = errors.New("the season is still in progress")
	ErrPeriodExists     = errors.New("free agency has already started this season")
	ErrNoPeriod         = errors.New("free agency has not started this season")
	ErrWrongPhase       = errors.New("not allowed in the current phase")
	ErrNoExpiring       = errors.New("no players are coming off contract")
	ErrUnknownTeam      = errors.New("you are not registered to a team")
	ErrUnknownPlayer    = errors.New("unknown player")
	ErrNotFreeAgent     = errors.New("player is not a free agent this season")
	ErrOwnPlayer        = errors.New("cannot bid on your own player")
	ErrBidRange         = errors.New("bid amount out of range")
	ErrOverBudget       = errors.New("not enough auction points")
	ErrNotEligible      = errors.New("team has no free re-signs")
	ErrTooManyResigns   = errors.New("more players selected than free re-signs allowed")
	ErrNotYourPlayer    = errors.New("player is not one of your expiring players")
	ErrAlreadyConfirmed = errors.New("selection already confirmed; press Edit to change it")
	ErrNothingToMatch   = errors.New("no winning bids against your players")
	ErrNotMatchable     = errors.New("player has no winning bid against your team")
)

// PreconditionError reports an operation refused because the league is not
// in a state that allows it. Nothing was written.
type PreconditionError struct {
	Err    error
	Detail string
}

func (e *PreconditionError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Detail
}

func (e *PreconditionError) Unwrap() error { return e.Err }

func precondition(err error, format string, args ...any) error {
	return &PreconditionError{Err: err, Detail: fmt.Sprintf(format, args...)}
}

// GateError reports a phase transition requested before every team has
// confirmed. Blocking holds the names of the teams still outstanding.
type GateError struct {
	Transition string
	Blocking   []string
}

func (e *GateError) Error() string {
	return fmt.Sprintf("cannot %s: waiting on %s", e.Transition, strings.Join(e.Blocking, ", "))
}
