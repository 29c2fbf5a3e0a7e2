// Package resolver turns stored chat ids into live group handles.
//
// A stored id is tried against an ordered list of strategies. Each strategy
// maps the stored id to a candidate marked id, or declines. The first
// candidate that the connection resolves wins.
package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Conte777/tg-userharvest/internal/domain"
)

// Strategy maps a stored chat id to a candidate marked id
type Strategy struct {
	Name   string
	Encode func(storedID int64) (int64, bool)
}

// Direct uses the stored id as-is
var Direct = Strategy{
	Name: "direct",
	Encode: func(storedID int64) (int64, bool) {
		return storedID, true
	},
}

// ChannelFallback re-encodes a positive id as a channel id. Negative ids are
// already encoded and are declined.
var ChannelFallback = Strategy{
	Name: "channel_fallback",
	Encode: func(storedID int64) (int64, bool) {
		if storedID <= 0 {
			return 0, false
		}
		return domain.ChannelMarkedID(storedID), true
	},
}

// ChannelAlways re-encodes every positive id as a channel id and keeps
// negative ids unchanged. The listener subscribes with this strategy only.
var ChannelAlways = Strategy{
	Name: "channel_always",
	Encode: func(storedID int64) (int64, bool) {
		if storedID > 0 {
			return domain.ChannelMarkedID(storedID), true
		}
		return storedID, true
	},
}

// Lookup is the part of domain.Connection the resolver needs
type Lookup interface {
	ResolveChat(ctx context.Context, markedID int64) (*domain.ChatHandle, error)
}

// Resolver tries strategies in order
type Resolver struct {
	strategies  []Strategy
	flood       domain.FloodWaitPolicy
	failurePace time.Duration
	logger      zerolog.Logger
}

// Config holds resolver options
type Config struct {
	Strategies  []Strategy
	FloodWait   domain.FloodWaitPolicy
	FailurePace time.Duration
	Logger      zerolog.Logger
}

// New creates a resolver from cfg
func New(cfg Config) *Resolver {
	return &Resolver{
		strategies:  cfg.Strategies,
		flood:       cfg.FloodWait,
		failurePace: cfg.FailurePace,
		logger:      cfg.Logger.With().Str("component", "entity_resolver").Logger(),
	}
}

// CrawlerStrategies tries the stored id first and falls back to the channel encoding
func CrawlerStrategies() []Strategy {
	return []Strategy{Direct, ChannelFallback}
}

// ListenerStrategies applies the channel encoding unconditionally
func ListenerStrategies() []Strategy {
	return []Strategy{ChannelAlways}
}

// Candidates returns the marked ids the strategies produce, in order, without duplicates
func (r *Resolver) Candidates(storedID int64) []int64 {
	return Candidates(r.strategies, storedID)
}

// Candidates applies strategies to storedID
func Candidates(strategies []Strategy, storedID int64) []int64 {
	out := make([]int64, 0, len(strategies))
	seen := make(map[int64]struct{}, len(strategies))
	for _, s := range strategies {
		id, ok := s.Encode(storedID)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Resolve returns the first handle any strategy yields. Failures are wrapped
// in domain.ErrEntityResolution.
func (r *Resolver) Resolve(ctx context.Context, conn Lookup, storedID int64) (*domain.ChatHandle, error) {
	var lastErr error

	for _, s := range r.strategies {
		markedID, ok := s.Encode(storedID)
		if !ok {
			continue
		}

		var handle *domain.ChatHandle
		err := r.flood.Do(ctx, func() error {
			var lookupErr error
			handle, lookupErr = conn.ResolveChat(ctx, markedID)
			return lookupErr
		})
		if err == nil && handle != nil {
			r.logger.Debug().
				Int64("chat_id", storedID).
				Int64("marked_id", markedID).
				Str("strategy", s.Name).
				Msg("group resolved")
			return handle, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		r.logger.Debug().Err(err).
			Int64("chat_id", storedID).
			Str("strategy", s.Name).
			Msg("lookup failed")

		if r.failurePace > 0 && r.flood.Clock != nil {
			if sleepErr := r.flood.Clock.Sleep(ctx, r.failurePace); sleepErr != nil {
				return nil, sleepErr
			}
		}
	}

	if lastErr == nil {
		return nil, fmt.Errorf("chat %d: %w", storedID, domain.ErrEntityResolution)
	}
	return nil, fmt.Errorf("chat %d: %w: %v", storedID, domain.ErrEntityResolution, lastErr)
}
