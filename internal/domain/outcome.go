package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PickStatus is the resolved result of a pick
type PickStatus string

const (
	PickWin  PickStatus = "WIN"
	PickLoss PickStatus = "LOSS"
	PickPush PickStatus = "PUSH"
)

// Valid reports whether the status is one of WIN, LOSS or PUSH.
func (s PickStatus) Valid() bool {
	switch s {
	case PickWin, PickLoss, PickPush:
		return true
	}
	return false
}

// Outcome is the part of a resolved pick the aggregator folds into a squad
type Outcome struct {
	Status PickStatus      `json:"status"`
	Coins  decimal.Decimal `json:"coins"`
	League string          `json:"league"`
}

// Validate rejects unknown statuses, negative coins and empty leagues.
func (o Outcome) Validate() error {
	if !o.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidOutcome, o.Status)
	}
	if o.Coins.IsNegative() {
		return fmt.Errorf("%w: negative coins %s", ErrInvalidOutcome, o.Coins)
	}
	if o.League == "" {
		return fmt.Errorf("%w: league is required", ErrInvalidOutcome)
	}
	return nil
}

// Delta is the stats increment this outcome contributes: the coins plus exactly one
// of wins, losses or pushes.
func (o Outcome) Delta() Stats {
	delta := Stats{Coins: o.Coins}
	switch o.Status {
	case PickWin:
		delta.Wins = 1
	case PickLoss:
		delta.Losses = 1
	case PickPush:
		delta.Pushes = 1
	}
	return delta
}

// OutcomeEvent is delivered (at least once) by the pick resolution subsystem
type OutcomeEvent struct {
	SquadID    string          `json:"squad_id"`
	UserID     string          `json:"user_id"`
	PickID     string          `json:"pick_id"`
	Status     PickStatus      `json:"status"`
	Coins      decimal.Decimal `json:"coins"`
	League     string          `json:"league"`
	ResolvedAt time.Time       `json:"resolved_at"`
}

// Outcome extracts the aggregation input from the event.
func (e OutcomeEvent) Outcome() Outcome {
	return Outcome{Status: e.Status, Coins: e.Coins, League: e.League}
}

// Validate checks the routing fields and the outcome payload.
func (e OutcomeEvent) Validate() error {
	if e.SquadID == "" || e.UserID == "" {
		return fmt.Errorf("%w: squad_id and user_id are required", ErrInvalidOutcome)
	}
	return e.Outcome().Validate()
}
