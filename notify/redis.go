package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/leave"
)

const DefaultChannel = "leave.events"

// RedisConfig is the connection for the pub/sub notifier.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Channel  string
}

// Publisher is the slice of *redis.Client the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisNotifier publishes events as JSON on a pub/sub channel so other
// services (mail, chat, dashboards) can subscribe.
type RedisNotifier struct {
	client  Publisher
	channel string
	logger  *zap.Logger
	closer  func() error
}

// wireEvent is the published payload.
type wireEvent struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	RequestID  string            `json:"requestId"`
	EmployeeID string            `json:"employeeId"`
	ManagerID  string            `json:"managerId,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// NewRedisNotifier connects and pings the server.
func NewRedisNotifier(ctx context.Context, cfg RedisConfig, logger *zap.Logger) (*RedisNotifier, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	n := NewRedisNotifierWithClient(client, cfg.Channel, logger)
	n.closer = client.Close
	return n, nil
}

// NewRedisNotifierWithClient uses a caller-owned client.
func NewRedisNotifierWithClient(client Publisher, channel string, logger *zap.Logger) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisNotifier{client: client, channel: channel, logger: logger}
}

func (n *RedisNotifier) Notify(ctx context.Context, e leave.Event) error {
	data, err := json.Marshal(wireEvent{
		ID:         e.ID,
		Type:       string(e.Type),
		RequestID:  e.RequestID,
		EmployeeID: e.EmployeeID,
		ManagerID:  e.ManagerID,
		Details:    e.Details,
		OccurredAt: e.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", e.ID, err)
	}

	if err := n.client.Publish(ctx, n.channel, data).Err(); err != nil {
		n.logger.Error("failed to publish leave event",
			zap.String("channel", n.channel),
			zap.String("type", string(e.Type)),
			zap.Error(err))
		return fmt.Errorf("publish event %s: %w", e.ID, err)
	}
	return nil
}

// Close releases the client if this notifier created it.
func (n *RedisNotifier) Close() error {
	if n.closer == nil {
		return nil
	}
	return n.closer()
}

var _ leave.Notifier = (*RedisNotifier)(nil)
