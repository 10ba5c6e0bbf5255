package domain

import (
	"math/big"
	"time"
)

// Sufficiency is the debounced view of whether the monitored balance can pay for a sweep.
type Sufficiency int

const (
	SufficiencyUnknown Sufficiency = iota
	SufficiencySufficient
	SufficiencyInsufficient
)

func (s Sufficiency) String() string {
	switch s {
	case SufficiencySufficient:
		return "sufficient"
	case SufficiencyInsufficient:
		return "insufficient"
	default:
		return "unknown"
	}
}

// BalanceState is the last observation of the monitored account.
type BalanceState struct {
	Balance     *big.Int
	Sufficiency Sufficiency
	ObservedAt  time.Time
}

// NewBalanceState returns the state before the first observation.
func NewBalanceState() BalanceState {
	return BalanceState{Balance: new(big.Int), Sufficiency: SufficiencyUnknown}
}

// Observe records a balance and reports whether the sufficiency flag changed.
// Repeating the same flag reports false, which is what alert debouncing relies on.
func (s *BalanceState) Observe(balance *big.Int, sufficient bool, at time.Time) bool {
	next := SufficiencyInsufficient
	if sufficient {
		next = SufficiencySufficient
	}

	changed := s.Sufficiency != next
	s.Balance = new(big.Int).Set(balance)
	s.Sufficiency = next
	s.ObservedAt = at

	return changed
}

// Drain marks the balance as swept. The sufficiency flag is kept so the next poll still debounces.
func (s *BalanceState) Drain(at time.Time) {
	s.Balance = new(big.Int)
	s.ObservedAt = at
}

// Clone returns a copy safe to hand to readers.
func (s BalanceState) Clone() BalanceState {
	c := s
	if s.Balance != nil {
		c.Balance = new(big.Int).Set(s.Balance)
	} else {
		c.Balance = new(big.Int)
	}
	return c
}
