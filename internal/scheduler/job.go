package scheduler

import (
	"context"
	"time"
)

// Job is a unit of periodic maintenance
// ⭐ SSOT: 스케줄 작업 인터페이스는 여기서만 정의
type Job interface {
	Name() string

	// Run executes one pass; a returned error triggers the retry policy
	Run(ctx context.Context) error

	// Schedule returns a six-field cron expression (seconds first)
	// or a descriptor such as "@every 30s"
	Schedule() string
}

// JobResult is the outcome of one run, retries included
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

const historyLimit = 100

// JobHistory keeps the most recent results of a job, oldest first
type JobHistory struct {
	Results []JobResult
}

// AddResult appends a result, dropping the oldest beyond historyLimit
func (h *JobHistory) AddResult(result JobResult) {
	h.Results = append(h.Results, result)
	if over := len(h.Results) - historyLimit; over > 0 {
		h.Results = append(h.Results[:0:0], h.Results[over:]...)
	}
}

// GetLatestResults returns up to n most recent results
func (h *JobHistory) GetLatestResults(n int) []JobResult {
	n = min(n, len(h.Results))
	if n <= 0 {
		return []JobResult{}
	}
	return h.Results[len(h.Results)-n:]
}

// GetFailedResults returns the failed runs
func (h *JobHistory) GetFailedResults() []JobResult {
	failed := make([]JobResult, 0)
	for _, result := range h.Results {
		if !result.Success {
			failed = append(failed, result)
		}
	}
	return failed
}

// GetSuccessRate returns successes / runs, 0 without runs
func (h *JobHistory) GetSuccessRate() float64 {
	if len(h.Results) == 0 {
		return 0
	}
	return float64(len(h.Results)-len(h.GetFailedResults())) / float64(len(h.Results))
}
