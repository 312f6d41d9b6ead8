package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RealtimeBridge carries gateway envelopes between instances. Delivery is at
// most once; events published while an instance is unreachable are lost.
type RealtimeBridge interface {
	Publish(ctx context.Context, payload []byte) error
	Subscribe(ctx context.Context, handler func([]byte)) error
}

// NewRealtimeBridge prefers NATS when a connection is available and falls back
// to Redis pub/sub. It returns nil when neither transport is configured.
func NewRealtimeBridge(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) RealtimeBridge {
	if channelBase == "" {
		channelBase = "spark"
	}
	logger = logger.With().Str("component", "realtime_bridge").Logger()

	if natsConn != nil {
		return &natsBridge{
			conn:    natsConn,
			subject: strings.ReplaceAll(channelBase, ":", ".") + ".realtime",
			logger:  logger,
		}
	}
	if redisClient != nil {
		return &redisBridge{
			client:     redisClient,
			channel:    channelBase + ":realtime",
			retryDelay: 500 * time.Millisecond,
			logger:     logger,
		}
	}
	return nil
}

type redisBridge struct {
	client     *redis.Client
	channel    string
	retryDelay time.Duration
	logger     zerolog.Logger
}

func (b *redisBridge) Publish(ctx context.Context, payload []byte) error {
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Subscribe returns once the subscription is confirmed and consumes messages
// until ctx is cancelled. Receive errors are retried; go-redis reconnects and
// resubscribes on the next read.
func (b *redisBridge) Subscribe(ctx context.Context, handler func([]byte)) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe to %s: %w", b.channel, err)
	}

	go func() {
		defer func() {
			_ = pubsub.Close()
		}()
		for {
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
					return
				}
				b.logger.Warn().Err(err).Msg("realtime redis subscription interrupted, retrying")
				select {
				case <-ctx.Done():
					return
				case <-time.After(b.retryDelay):
				}
				continue
			}
			handler([]byte(msg.Payload))
		}
	}()
	return nil
}

type natsBridge struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

func (b *natsBridge) Publish(_ context.Context, payload []byte) error {
	return b.conn.Publish(b.subject, payload)
}

func (b *natsBridge) Subscribe(ctx context.Context, handler func([]byte)) error {
	sub, err := b.conn.Subscribe(b.subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", b.subject, err)
	}
	if err := b.conn.Flush(); err != nil {
		b.logger.Warn().Err(err).Msg("failed to flush nats subscription")
	}

	go func() {
		<-ctx.Done()
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			b.logger.Warn().Err(err).Msg("failed to unsubscribe realtime nats subject")
		}
	}()
	return nil
}
