package models

import "time"

// PollConfig controls the liveness poll after shutdown.
type PollConfig struct {
	Interval time.Duration // delay before each round
	Timeout  time.Duration // 0 waits forever
}

// PollResult holds the outcome of a liveness poll.
type PollResult struct {
	Rounds       int
	WentDown     []HostRecord // in the order they were observed down
	StillUp      []HostRecord // non-empty only when the poll was cut short
	WaitDuration time.Duration
	Error        error
}
