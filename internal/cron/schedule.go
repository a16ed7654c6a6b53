package cron

import (
	"context"
	"sync"
	"time"
)

// Job is one settlement sweep run by the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type entry struct {
	job     Job
	every   time.Duration
	lastRun time.Time
}

// Schedule tracks how often each job runs. A job with no cadence runs on every tick.
type Schedule struct {
	mu      sync.Mutex
	entries []*entry
}

func NewSchedule() *Schedule {
	return &Schedule{}
}

// Every registers job to run at most once per interval.
func (s *Schedule) Every(interval time.Duration, job Job) *Schedule {
	if job == nil {
		return s
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, &entry{job: job, every: interval})
	return s
}

// EachTick registers job to run on every tick.
func (s *Schedule) EachTick(job Job) *Schedule {
	return s.Every(0, job)
}

// Due returns the jobs whose cadence has elapsed at now, in registration order.
func (s *Schedule) Due(now time.Time) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	due := make([]Job, 0, len(s.entries))
	for _, e := range s.entries {
		if e.lastRun.IsZero() || e.every <= 0 || !now.Before(e.lastRun.Add(e.every)) {
			due = append(due, e.job)
		}
	}
	return due
}

// MarkRan stamps the last run of the named job. Failed runs are stamped too so a
// broken sweep waits for its next slot instead of hammering dependencies.
func (s *Schedule) MarkRan(name string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.job.Name() == name {
			e.lastRun = at
		}
	}
}

func (s *Schedule) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
