package model

import "time"

// Schedule represents a recurring job and the outcome of its last run
type Schedule struct {
	Name        string        `json:"name"`
	Expression  string        `json:"expression"`
	Runs        int           `json:"runs"`
	LastRunTime *time.Time    `json:"last_run_time,omitempty"`
	LastElapsed time.Duration `json:"last_elapsed,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
	NextRunTime *time.Time    `json:"next_run_time,omitempty"`
}
