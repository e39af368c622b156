package raffle

import (
	"math/big"
	"time"
)

// UpkeepReason names the first condition that prevented a cycle from starting
type UpkeepReason int

const (
	// ReasonNone means upkeep is needed
	ReasonNone UpkeepReason = iota
	ReasonNotOpen
	ReasonIntervalNotElapsed
	ReasonNoPlayers
	ReasonNoBalance
)

func (r UpkeepReason) String() string {
	switch r {
	case ReasonNone:
		return "None"
	case ReasonNotOpen:
		return "NotOpen"
	case ReasonIntervalNotElapsed:
		return "IntervalNotElapsed"
	case ReasonNoPlayers:
		return "NoPlayers"
	case ReasonNoBalance:
		return "NoBalance"
	default:
		return "Unknown"
	}
}

// UpkeepCheck is the result of evaluating whether a new cycle may start
type UpkeepCheck struct {
	Needed bool
	Reason UpkeepReason

	State      State
	Balance    *big.Int
	NumPlayers int
	Elapsed    time.Duration
	Interval   time.Duration
}

// evaluateUpkeep decides whether a cycle may start. It has no side effects
func evaluateUpkeep(state State, gate *IntervalGate, ledger *Ledger, now time.Time) UpkeepCheck {
	check := UpkeepCheck{
		State:      state,
		Balance:    ledger.Balance(),
		NumPlayers: ledger.NumPlayers(),
		Elapsed:    gate.Elapsed(now),
		Interval:   gate.Interval(),
	}

	switch {
	case state != Open:
		check.Reason = ReasonNotOpen
	case !gate.HasElapsed(now):
		check.Reason = ReasonIntervalNotElapsed
	case check.NumPlayers == 0:
		check.Reason = ReasonNoPlayers
	case check.Balance.Sign() <= 0:
		check.Reason = ReasonNoBalance
	default:
		check.Needed = true
		check.Reason = ReasonNone
	}

	return check
}

func (c UpkeepCheck) err() error {
	if c.Needed {
		return nil
	}
	return &UpkeepNotNeededError{
		Balance:    c.Balance,
		NumPlayers: c.NumPlayers,
		State:      c.State,
		Reason:     c.Reason,
	}
}
