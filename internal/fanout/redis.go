package fanout

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"roomrelay/backend/internal/hub"
)

// DefaultChannel is the pub/sub channel shared by all instances.
const DefaultChannel = "roomrelay:fanout"

// Redis publishes envelopes on a redis channel. Every instance, including the
// publishing one, delivers them to its local hub from Run.
type Redis struct {
	rdb     *redis.Client
	hub     *hub.Hub
	log     *slog.Logger
	channel string
}

// NewRedis connects to redisURL and verifies connectivity.
func NewRedis(ctx context.Context, redisURL string, h *hub.Hub, log *slog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &Redis{rdb: rdb, hub: h, log: log, channel: DefaultChannel}, nil
}

// Publish sends the envelope to all instances.
func (r *Redis) Publish(ctx context.Context, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.channel, raw).Err()
}

// Run delivers envelopes received from redis to the local hub until ctx is done.
// ready, if not nil, is closed once the subscription is active.
func (r *Redis) Run(ctx context.Context, ready chan<- struct{}) error {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	defer func() { _ = pubsub.Close() }()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var wire wireEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &wire); err != nil {
				r.log.Warn("Dropping malformed fan-out envelope", "error", err)
				continue
			}
			deliver(r.hub, wire.toEnvelope())
		}
	}
}

// Close shuts down the redis connection.
func (r *Redis) Close() error { return r.rdb.Close() }
