package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	blockTimeout = 5 * time.Second
	// readCount of 1 keeps at most one unacknowledged message per consumer.
	readCount = 1

	// connErrorPause gives the broker room after a reconnect cycle.
	connErrorPause = 20 * time.Second
	// readErrorPause throttles retries on non-connection read errors.
	readErrorPause = 3 * time.Second
)

// Handler processes one message body. A returned error sends the message to
// the dead-letter stream; it never requeues.
type Handler func(ctx context.Context, body string) error

// Consumer reads a stream through a consumer group, one message at a time.
// Every delivered message is acknowledged after processing regardless of
// the handler outcome, so a poisoned message cannot wedge the stream.
type Consumer struct {
	conn       *Connection
	stream     string
	group      string
	consumerID string
	deadLetter *Publisher
	logger     *zap.Logger

	// pause is an injection point for tests.
	pause func(time.Duration)
}

func NewConsumer(conn *Connection, stream, group, consumerID string, dl *Publisher, logger *zap.Logger) *Consumer {
	return &Consumer{
		conn:       conn,
		stream:     stream,
		group:      group,
		consumerID: consumerID,
		deadLetter: dl,
		logger:     logger,
		pause:      time.Sleep,
	}
}

// Run consumes until ctx is cancelled. An unreachable broker never stops
// the loop; each exhausted reconnect cycle is followed by a pause and a
// fresh cycle.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	var client *redis.Client
	for {
		var err error
		client, err = c.conn.Client(ctx)
		if err == nil {
			err = c.ensureGroup(ctx, client)
		}
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isConnErr(err) {
			return err
		}
		c.logger.Error("consumer could not reach the broker, retrying",
			zap.String("stream", c.stream), zap.Error(err))
		c.pause(connErrorPause)
	}
	c.logger.Info("consumer started",
		zap.String("stream", c.stream), zap.String("group", c.group), zap.String("consumer", c.consumerID))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		streams, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.consumerID,
			Streams:  []string{c.stream, ">"},
			Count:    readCount,
			Block:    blockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if isConnErr(err) {
				c.logger.Warn("consumer lost its connection, reconnecting",
					zap.String("stream", c.stream), zap.Error(err))
				next, rerr := c.conn.Reconnect(ctx)
				if rerr == nil {
					rerr = c.ensureGroup(ctx, next)
				}
				if rerr != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					// The next read fails fast on the stale client and
					// lands back here for another cycle.
					c.logger.Error("consumer could not reconnect, retrying",
						zap.String("stream", c.stream), zap.Error(rerr))
					c.pause(connErrorPause)
					continue
				}
				client = next
				c.pause(connErrorPause)
				continue
			}
			c.logger.Error("consumer read failed",
				zap.String("stream", c.stream), zap.Error(err))
			c.pause(readErrorPause)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				c.process(ctx, client, msg, handler)
			}
		}
	}
}

func (c *Consumer) process(ctx context.Context, client *redis.Client, msg redis.XMessage, handler Handler) {
	body, ok := msg.Values[BodyField].(string)
	if !ok {
		c.logger.Error("discarding malformed message",
			zap.String("stream", c.stream), zap.String("id", msg.ID))
		raw, _ := json.Marshal(msg.Values)
		c.toDeadLetter(ctx, string(raw), "missing body field")
	} else if err := handler(ctx, body); err != nil {
		c.logger.Error("handler failed, dead-lettering message",
			zap.String("stream", c.stream), zap.String("id", msg.ID), zap.Error(err))
		c.toDeadLetter(ctx, body, err.Error())
	}

	if err := client.XAck(ctx, c.stream, c.group, msg.ID).Err(); err != nil {
		c.logger.Error("failed to ack message",
			zap.String("stream", c.stream), zap.String("id", msg.ID), zap.Error(err))
	}
}

func (c *Consumer) toDeadLetter(ctx context.Context, body, reason string) {
	if c.deadLetter == nil {
		return
	}
	if err := c.deadLetter.DeadLetter(ctx, c.stream, body, reason); err != nil {
		c.logger.Error("failed to dead-letter message",
			zap.String("stream", c.stream), zap.Error(err))
	}
}

func (c *Consumer) ensureGroup(ctx context.Context, client *redis.Client) error {
	err := client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}
