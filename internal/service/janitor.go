package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type resetPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type refreshPurger interface {
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type reservationExpirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// Janitor periodically removes expired tokens and cancels unpaid
// reservations whose checkout window has passed.
type Janitor struct {
	Resets       resetPurger
	Tokens       refreshPurger
	Reservations reservationExpirer
	Interval     time.Duration
	Log          *zap.Logger
}

// Run sweeps once immediately and then every Interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) error {
	interval := j.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	j.Sweep(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep runs every cleanup step once. A failing step is logged and does not
// stop the others.
func (j *Janitor) Sweep(ctx context.Context) {
	log := j.Log
	if log == nil {
		log = zap.NewNop()
	}
	now := time.Now().UTC()
	if j.Resets != nil {
		if n, err := j.Resets.DeleteExpired(ctx, now); err != nil {
			log.Error("purge reset tokens", zap.Error(err))
		} else if n > 0 {
			log.Info("purged reset tokens", zap.Int64("count", n))
		}
	}
	if j.Tokens != nil {
		if n, err := j.Tokens.PurgeExpired(ctx, now); err != nil {
			log.Error("purge refresh tokens", zap.Error(err))
		} else if n > 0 {
			log.Info("purged refresh tokens", zap.Int64("count", n))
		}
	}
	if j.Reservations != nil {
		if n, err := j.Reservations.ExpireStale(ctx); err != nil {
			log.Error("expire pending reservations", zap.Error(err))
		} else if n > 0 {
			log.Info("expired pending reservations", zap.Int("count", n))
		}
	}
}
