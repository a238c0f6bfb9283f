package redis

import (
	"context"
	"encoding/json"
	"time"

	"exam-grading-service/internal/app"
	"exam-grading-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	relayRetryMin = 100 * time.Millisecond
	relayRetryMax = 10 * time.Second
)

// Relay forwards invalidations published by any instance to a local sink, typically the
// websocket hub.
type Relay struct {
	client   *redis.Client
	sink     app.CacheInvalidator
	log      zerolog.Logger
	retryMin time.Duration
	retryMax time.Duration
}

func NewRelay(client *redis.Client, sink app.CacheInvalidator, log zerolog.Logger) *Relay {
	return &Relay{
		client:   client,
		sink:     sink,
		log:      log.With().Str("component", "invalidation_relay").Logger(),
		retryMin: relayRetryMin,
		retryMax: relayRetryMax,
	}
}

// Run blocks until ctx is done, resubscribing with exponential backoff whenever the subscription
// cannot be established. ready, when non-nil, is closed once the first subscription is live.
func (r *Relay) Run(ctx context.Context, ready chan<- struct{}) error {
	backoff := r.retryMin
	for {
		live, err := r.serve(ctx, ready)
		if live {
			ready = nil
			backoff = r.retryMin
		}
		if ctx.Err() != nil {
			return nil
		}
		r.log.Warn().Err(err).Dur("retry_in", backoff).Msg("invalidation subscription lost")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > r.retryMax {
			backoff = r.retryMax
		}
	}
}

// serve runs one subscription. live reports whether it got past the initial Receive.
func (r *Relay) serve(ctx context.Context, ready chan<- struct{}) (live bool, err error) {
	sub := r.client.Subscribe(ctx, invalidationChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return false, err
	}
	if ready != nil {
		close(ready)
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return true, nil
		case msg, ok := <-messages:
			if !ok {
				return true, nil
			}
			var scope domain.CacheScope
			if err := json.Unmarshal([]byte(msg.Payload), &scope); err != nil {
				r.log.Warn().Err(err).Str("payload", msg.Payload).Msg("drop malformed invalidation")
				continue
			}
			if err := r.sink.Invalidate(ctx, scope); err != nil {
				r.log.Warn().Err(err).Str("scope", scope.String()).Msg("forward invalidation failed")
			}
		}
	}
}
