package entities

import (
	"context"
	"sync"
	"time"
)

// GroupCount is the contribution of one selected group to a crawl
type GroupCount struct {
	ChatID   int64  `json:"chat_id"`
	Title    string `json:"title"`
	Speakers int    `json:"speakers"`
	Events   int    `json:"events"`
	Skipped  bool   `json:"skipped,omitempty"`
}

// CrawlResult summarizes one account's historical crawl
type CrawlResult struct {
	AccountID   int64        `json:"account_id"`
	NewSpeakers int          `json:"new_speakers"`
	NewEvents   int          `json:"new_events"`
	Scanned     int          `json:"scanned"`
	Skipped     int          `json:"skipped"`
	PerGroup    []GroupCount `json:"per_group"`
}

// AccountOutcome is one account's slot in a multi-account run
type AccountOutcome struct {
	Result *CrawlResult
	Err    error
}

// CrawlHandle tracks a fire-and-forget crawl run
type CrawlHandle struct {
	RunID      string
	Accounts   []int64
	WindowDays int
	StartedAt  time.Time

	done     chan struct{}
	once     sync.Once
	mu       sync.Mutex
	outcomes map[int64]AccountOutcome
}

// NewCrawlHandle creates a handle for a run that has not finished yet
func NewCrawlHandle(runID string, accounts []int64, windowDays int, startedAt time.Time) *CrawlHandle {
	return &CrawlHandle{
		RunID:      runID,
		Accounts:   accounts,
		WindowDays: windowDays,
		StartedAt:  startedAt,
		done:       make(chan struct{}),
	}
}

// Finish stores the outcomes and releases every waiter. Only the first call counts.
func (h *CrawlHandle) Finish(outcomes map[int64]AccountOutcome) {
	h.once.Do(func() {
		h.mu.Lock()
		h.outcomes = outcomes
		h.mu.Unlock()
		close(h.done)
	})
}

// Done is closed when the run ends
func (h *CrawlHandle) Done() <-chan struct{} {
	return h.done
}

// Outcomes returns the per-account outcomes; ok is false while the run is live
func (h *CrawlHandle) Outcomes() (map[int64]AccountOutcome, bool) {
	select {
	case <-h.done:
	default:
		return nil, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcomes, true
}

// Wait blocks until the run ends or ctx is done
func (h *CrawlHandle) Wait(ctx context.Context) (map[int64]AccountOutcome, error) {
	select {
	case <-h.done:
		out, _ := h.Outcomes()
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
