package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/abdi2332/calender-app/pkg/logging"
)

const changeChannel = "appointments:changed"

// ChangeNotifier broadcasts "something changed, re-fetch" signals after a
// mutation. Delivery is at-least-once; subscribers must not assume ordering
// or diff information.
type ChangeNotifier interface {
	Publish(ctx context.Context) error
	Subscribe(ctx context.Context, fn func()) (unsubscribe func())
}

// RedisNotifier fans change signals out over a Redis pub/sub channel.
type RedisNotifier struct {
	redis  *redis.Client
	logger *logging.Logger
	tracer trace.Tracer
}

// NewRedisNotifier creates a notifier on the shared change channel.
func NewRedisNotifier(redisClient *redis.Client, logger *logging.Logger) *RedisNotifier {
	if redisClient == nil {
		panic("appointments: redis client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisNotifier{
		redis:  redisClient,
		logger: logger,
		tracer: otel.Tracer("calenderapp.internal.appointments.notifier"),
	}
}

// Publish emits one change signal.
func (n *RedisNotifier) Publish(ctx context.Context) error {
	ctx, span := n.tracer.Start(ctx, "appointments.notify")
	defer span.End()

	payload := fmt.Sprintf("%d", time.Now().UTC().UnixMicro())
	if err := n.redis.Publish(ctx, changeChannel, payload).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("appointments: publish change signal: %w", err)
	}
	return nil
}

// Subscribe invokes fn for every change signal until the returned
// unsubscribe function is called or ctx is cancelled.
func (n *RedisNotifier) Subscribe(ctx context.Context, fn func()) func() {
	sub := n.redis.Subscribe(ctx, changeChannel)
	done := make(chan struct{})

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				fn()
			}
		}
	}()

	var once bool
	return func() {
		if once {
			return
		}
		once = true
		close(done)
		if err := sub.Close(); err != nil {
			n.logger.Warn("failed to close change subscription", "error", err)
		}
	}
}

// NoopNotifier is used when Redis is not configured. Publishing succeeds
// silently and subscriptions never fire, so the rest of the system keeps
// working without live updates.
type NoopNotifier struct{}

// NewNoopNotifier returns the degraded notifier.
func NewNoopNotifier() *NoopNotifier {
	return &NoopNotifier{}
}

// Publish does nothing.
func (n *NoopNotifier) Publish(ctx context.Context) error { return nil }

// Subscribe returns an unsubscribe that does nothing.
func (n *NoopNotifier) Subscribe(ctx context.Context, fn func()) func() {
	return func() {}
}
