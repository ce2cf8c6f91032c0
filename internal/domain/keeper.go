package domain

import "time"

// KeeperCycle summarizes one pass of the keeper over due work.
type KeeperCycle struct {
	At       time.Time
	Duration time.Duration

	TimeExecuted  int // time triggers fired
	LimitExecuted int // filled limit orders withdrawn
	Waiting       int // not due, not filled, or a saga still in flight
	Failed        int
	EscrowSwept   int

	Errors []string
}

// Idle reports whether the cycle found nothing to do.
func (c KeeperCycle) Idle() bool {
	return c.TimeExecuted == 0 && c.LimitExecuted == 0 && c.Failed == 0 && c.EscrowSwept == 0
}
