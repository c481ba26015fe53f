package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// BodyField carries the serialized payload of a stream message.
	BodyField = "body"
	// EnqueuedAtField carries the publish timestamp.
	EnqueuedAtField = "enqueued_at"
	// ReasonField explains why a message landed on the dead-letter stream.
	ReasonField = "reason"
	// SourceStreamField names the stream a dead-lettered message came from.
	SourceStreamField = "source_stream"
)

// Publisher appends JSON payloads to a stream. A publish that fails on a
// dead connection triggers exactly one reconnect cycle and one retry.
type Publisher struct {
	conn         *Connection
	stream       string
	maxStreamLen int64
	logger       *zap.Logger
}

func NewPublisher(conn *Connection, stream string, maxStreamLen int64, logger *zap.Logger) *Publisher {
	return &Publisher{conn: conn, stream: stream, maxStreamLen: maxStreamLen, logger: logger}
}

func (p *Publisher) Stream() string { return p.stream }

// Publish serializes v and appends it to the publisher's stream.
func (p *Publisher) Publish(ctx context.Context, v any) (string, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("serialize message for %s: %w", p.stream, err)
	}
	return p.publishRaw(ctx, p.stream, map[string]any{
		BodyField:       string(body),
		EnqueuedAtField: time.Now().UTC().Format(time.RFC3339),
	})
}

// DeadLetter copies a raw message body onto a dead-letter stream with the
// failure reason attached.
func (p *Publisher) DeadLetter(ctx context.Context, sourceStream, body, reason string) error {
	_, err := p.publishRaw(ctx, p.stream, map[string]any{
		BodyField:         body,
		ReasonField:       reason,
		SourceStreamField: sourceStream,
		EnqueuedAtField:   time.Now().UTC().Format(time.RFC3339),
	})
	return err
}

func (p *Publisher) publishRaw(ctx context.Context, stream string, values map[string]any) (string, error) {
	client, err := p.conn.Client(ctx)
	if err != nil {
		return "", err
	}
	id, err := p.xadd(ctx, client, stream, values)
	if err == nil {
		return id, nil
	}
	if !isConnErr(err) {
		return "", fmt.Errorf("publish to %s: %w", stream, err)
	}

	p.logger.Warn("publish hit a dead connection, reconnecting",
		zap.String("stream", stream), zap.Error(err))
	client, err = p.conn.Reconnect(ctx)
	if err != nil {
		return "", err
	}
	id, err = p.xadd(ctx, client, stream, values)
	if err != nil {
		return "", fmt.Errorf("publish to %s after reconnect: %w", stream, err)
	}
	return id, nil
}

func (p *Publisher) xadd(ctx context.Context, client *redis.Client, stream string, values map[string]any) (string, error) {
	return client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: p.maxStreamLen,
		Approx: true,
		Values: values,
	}).Result()
}
