package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultStream     = "musicgen:runs"
	redisPublishLimit = 2 * time.Second
)

// RedisNotifier appends run notifications to a Redis stream so other
// services can react to finished runs
type RedisNotifier struct {
	client *redis.Client
	stream string
	maxLen int64
}

// RedisEvent is the JSON document stored in the stream's "data" field
type RedisEvent struct {
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	RunID     string    `json:"run_id,omitempty"`
	ReportKey string    `json:"report_key,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

// NewRedisNotifier connects lazily to addr; nothing is dialled until Send
func NewRedisNotifier(addr, password string, db int, stream string, maxLen int64) *RedisNotifier {
	if stream == "" {
		stream = defaultStream
	}
	return &RedisNotifier{
		client: redis.NewClient(&redis.Options{
			Addr:         addr,
			Password:     password,
			DB:           db,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		}),
		stream: stream,
		maxLen: maxLen,
	}
}

// Stream returns the stream name events are written to
func (r *RedisNotifier) Stream() string { return r.stream }

// Send adds n to the stream
func (r *RedisNotifier) Send(ctx context.Context, n Notification) error {
	ctx, cancel := context.WithTimeout(ctx, redisPublishLimit)
	defer cancel()

	args, err := r.buildArgs(n, time.Now().UTC())
	if err != nil {
		return err
	}
	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis stream %s: %w", r.stream, err)
	}
	return nil
}

// Close releases the connection pool
func (r *RedisNotifier) Close() error {
	return r.client.Close()
}

func (r *RedisNotifier) buildArgs(n Notification, at time.Time) (*redis.XAddArgs, error) {
	data, err := json.Marshal(RedisEvent{
		Type:      n.Type.String(),
		Title:     n.Title,
		Message:   n.Message,
		RunID:     n.RunID,
		ReportKey: n.ReportKey,
		SentAt:    at,
	})
	if err != nil {
		return nil, err
	}
	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{"data": string(data)},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	return args, nil
}
