package service

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	"go.uber.org/zap"

	"github.com/seti-park/Skyscanner/internal/config"
	"github.com/seti-park/Skyscanner/internal/logger"
	"github.com/seti-park/Skyscanner/internal/providers"
)

// RetryPolicy bounds the confirmation stage: Attempts calls in total, Backoff
// between consecutive calls.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

func RetryPolicyFromConfig(c config.ConfirmConfig) RetryPolicy {
	return RetryPolicy{Attempts: c.Attempts, Backoff: c.Backoff}
}

// Confirmer re-prices offers one at a time.
type Confirmer struct {
	provider providers.FlightProvider
	policy   RetryPolicy
	logger   *logger.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewConfirmer(p providers.FlightProvider, policy RetryPolicy, lg *logger.Logger) *Confirmer {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	return &Confirmer{
		provider: p,
		policy:   policy,
		logger:   lg.Named("confirm"),
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Confirm re-prices offer. It never fails: once the attempts are used up, or the
// provider cannot authenticate, it falls back to the search-time price with
// Confirmed unset and Err holding the last failure.
func (c *Confirmer) Confirm(ctx context.Context, offer providers.RawOffer) providers.ConfirmedPrice {
	total, currency, _ := offer.SearchPrice()
	result := providers.ConfirmedPrice{Total: total, Currency: currency}
	lg := c.logger.With(zap.String("offer", offer.ID))

	var lastErr error
	for attempt := 1; attempt <= c.policy.Attempts; attempt++ {
		result.Attempts = attempt

		priced, err := c.provider.ConfirmPrice(ctx, offer)
		if err == nil {
			newTotal, newCurrency, ok := priced.SearchPrice()
			if ok && newTotal > 0 {
				if newCurrency == "" {
					newCurrency = currency
				}
				lg.Debug("price confirmed",
					zap.Int("attempt", attempt),
					zap.Float64("search_price", total),
					zap.Float64("confirmed_price", newTotal))
				return providers.ConfirmedPrice{
					Total:     newTotal,
					Currency:  newCurrency,
					Confirmed: true,
					Attempts:  attempt,
				}
			}
			err = &providers.RequestError{
				Kind: providers.ErrConfirm,
				Op:   "pricing",
				Err:  errors.New("re-priced offer carries no price"),
			}
		}
		lastErr = err
		lg.Warn("confirmation attempt failed", zap.Int("attempt", attempt), zap.Error(err))

		if errors.Is(err, providers.ErrAuth) || !retryable(err) {
			break
		}
		if attempt < c.policy.Attempts {
			if serr := c.sleep(ctx, c.policy.Backoff); serr != nil {
				lastErr = serr
				break
			}
		}
	}

	result.Err = lastErr
	lg.Warn("using unconfirmed search price",
		zap.Int("attempts", result.Attempts),
		zap.Float64("price", total),
		zap.Error(lastErr))
	return result
}

// retryable treats every failure as transient except 4xx answers other than 401;
// after a 401 the next attempt runs with a fresh token.
func retryable(err error) bool {
	var rerr *providers.RequestError
	if !errors.As(err, &rerr) {
		return true
	}
	return rerr.StatusCode == 401 || rerr.Retryable()
}
