package redis

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"subscription-payments/internal/domain/ports/stream"
)

var _ stream.ChangeStream = (*SubscriptionStream)(nil)

// SubscriptionStream carries subscription-record updates over Redis pub/sub,
// one channel per account. It is a transport deliberately independent from
// the Postgres notification path: a lost payment_history update, or a backend
// job that writes the profile directly, still reaches the coordinator here.
type SubscriptionStream struct {
	cli RedisClient
	log *zerolog.Logger
}

func NewSubscriptionStream(cli RedisClient, logger *zerolog.Logger) *SubscriptionStream {
	strLog := logger.With().Str("component", "SubscriptionStream").Logger()
	return &SubscriptionStream{cli: cli, log: &strLog}
}

func channelFor(userID string) string { return "subscription.updates." + userID }

// PublishSubscriptionUpdate mirrors one subscription change onto the stream.
func (s *SubscriptionStream) PublishSubscriptionUpdate(ctx context.Context, ev stream.ChangeEvent) error {
	userID := ev.Str("user_id")
	if userID == "" {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.cli.Publish(ctx, channelFor(userID), payload)
}

func (s *SubscriptionStream) Subscribe(ctx context.Context, userID string) (<-chan stream.ChangeEvent, func(), error) {
	ps := s.cli.Subscribe(ctx, channelFor(userID))
	// Force the subscription to be established before events can be missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, err
	}

	out := make(chan stream.ChangeEvent, 8)
	var once sync.Once
	cancel := func() { once.Do(func() { _ = ps.Close() }) }

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case msg, ok := <-ps.Channel():
				if !ok {
					return
				}
				var ev stream.ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					s.log.Warn().Err(err).Str("payload", msg.Payload).Msg("malformed stream payload")
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					cancel()
					return
				}
			}
		}
	}()
	return out, cancel, nil
}
