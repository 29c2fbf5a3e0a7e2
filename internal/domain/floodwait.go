package domain

import (
	"context"
	"errors"
	"time"
)

// FloodWaitPolicy retries an operation after platform-mandated waits
type FloodWaitPolicy struct {
	Clock      Clock
	Margin     time.Duration
	MaxRetries int
	OnWait     func(wait time.Duration)
}

// Do runs op, sleeping wait+Margin and re-running it each time op reports a
// FloodWaitError. The last FloodWaitError is returned once MaxRetries is spent.
func (p FloodWaitPolicy) Do(ctx context.Context, op func() error) error {
	for attempt := 0; ; attempt++ {
		err := op()

		var floodErr *FloodWaitError
		if !errors.As(err, &floodErr) {
			return err
		}
		if p.MaxRetries > 0 && attempt >= p.MaxRetries {
			return err
		}

		if p.OnWait != nil {
			p.OnWait(floodErr.Wait)
		}
		if sleepErr := p.Clock.Sleep(ctx, floodErr.Wait+p.Margin); sleepErr != nil {
			return sleepErr
		}
	}
}
