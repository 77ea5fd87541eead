package session

import (
	"errors"

	mqttv5 "github.com/srishina/mqttv5.go"
)

// Stepper is the part of the engine the pump drives
type Stepper interface {
	ProcessStep() error
	Now() uint32
}

// Budget a time window on a millisecond clock that may wrap around
type Budget struct {
	Start    uint32
	Deadline uint32
}

// NewBudget opens a window of timeoutMs starting at now
func NewBudget(now, timeoutMs uint32) Budget {
	return Budget{Start: now, Deadline: now + timeoutMs}
}

// Expired reports whether now is at or past the deadline. Both values are
// taken relative to Start so a wrapped clock compares correctly.
func (b Budget) Expired(now uint32) bool {
	return now-b.Start >= b.Deadline-b.Start
}

// Pump steps eng until timeoutMs elapsed on the engine's clock or a step
// fails. A partly received packet at the deadline is not an error, any other
// step error is returned unchanged.
func Pump(eng Stepper, timeoutMs uint32) error {
	budget := NewBudget(eng.Now(), timeoutMs)

	for !budget.Expired(eng.Now()) {
		if err := eng.ProcessStep(); err != nil && !errors.Is(err, mqttv5.ErrNeedMoreData) {
			return err
		}
	}
	return nil
}
