package models

import (
	"errors"
	"fmt"
)

// TradeStatus represents the lifecycle state of a trade
type TradeStatus string

const (
	StatusRunning        TradeStatus = "Running"         // Open and monitored
	StatusTarget         TradeStatus = "Target"          // Closed at the target amount
	StatusStoploss       TradeStatus = "Stoploss"        // Closed at the stop-loss amount
	StatusManuallyClosed TradeStatus = "Manually Closed" // Closed by the user
)

// Valid returns true if the TradeStatus is one of the defined constants
func (s TradeStatus) Valid() bool {
	switch s {
	case StatusRunning, StatusTarget, StatusStoploss, StatusManuallyClosed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status can never change again.
func (s TradeStatus) IsTerminal() bool {
	return s == StatusTarget || s == StatusStoploss || s == StatusManuallyClosed
}

// Transition conditions
const (
	ConditionTargetHit   = "target_hit"
	ConditionStoplossHit = "stoploss_hit"
	ConditionManualClose = "manual_close"
)

// ErrInvalidTransition is returned when a terminal trade would be reopened or reclosed.
var ErrInvalidTransition = errors.New("invalid transition")

// StateTransition defines valid state transitions
type StateTransition struct {
	From        TradeStatus
	To          TradeStatus
	Condition   string
	Description string
}

// ValidTransitions lists the only moves a trade can make. Every move leaves
// Running, so a terminal trade is never revived.
var ValidTransitions = []StateTransition{
	{StatusRunning, StatusTarget, ConditionTargetHit, "P/L reached the target amount"},
	{StatusRunning, StatusStoploss, ConditionStoplossHit, "P/L breached the stop-loss amount"},
	{StatusRunning, StatusManuallyClosed, ConditionManualClose, "Closed by the user"},
}

// IsValidTransition checks a move against ValidTransitions.
func IsValidTransition(from, to TradeStatus, condition string) error {
	for _, tr := range ValidTransitions {
		if tr.From == from && tr.To == to && conditionMatches(tr.Condition, condition) {
			return nil
		}
	}
	return fmt.Errorf("%w: from %s to %s with condition '%s'", ErrInvalidTransition, from, to, condition)
}

// conditionMatches checks if the condition requirements are satisfied
func conditionMatches(transitionCondition, providedCondition string) bool {
	if transitionCondition == "" {
		return true
	}
	return providedCondition == transitionCondition
}

// StatusDescription returns a human-readable description of a status
func StatusDescription(s TradeStatus) string {
	switch s {
	case StatusRunning:
		return "Running: monitored every sweep"
	case StatusTarget:
		return "Target: closed in profit at the target amount"
	case StatusStoploss:
		return "Stoploss: closed at the stop-loss amount"
	case StatusManuallyClosed:
		return "Manually Closed: closed by the user"
	default:
		return "Unknown state"
	}
}
