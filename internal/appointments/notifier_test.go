package appointments

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/abdi2332/calender-app/pkg/logging"
)

func TestRedisNotifierPublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	notifier := NewRedisNotifier(client, logging.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan struct{}, 1)
	unsubscribe := notifier.Subscribe(ctx, func() {
		select {
		case received <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	// Give the subscriber goroutine a moment to attach.
	deadline := time.After(2 * time.Second)
	for {
		if err := notifier.Publish(ctx); err != nil {
			t.Fatalf("publish: %v", err)
		}
		select {
		case <-received:
			return
		case <-deadline:
			t.Fatal("change signal never delivered")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestRedisNotifierUnsubscribeStopsDelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	notifier := NewRedisNotifier(client, logging.Default())

	ctx := context.Background()
	fired := make(chan struct{}, 8)
	unsubscribe := notifier.Subscribe(ctx, func() { fired <- struct{}{} })
	unsubscribe()
	unsubscribe() // idempotent

	if err := notifier.Publish(ctx); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case <-fired:
		t.Error("callback fired after unsubscribe")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestNoopNotifier(t *testing.T) {
	n := NewNoopNotifier()
	if err := n.Publish(context.Background()); err != nil {
		t.Fatalf("noop publish should never fail: %v", err)
	}
	unsubscribe := n.Subscribe(context.Background(), func() {
		t.Error("noop subscription must never fire")
	})
	unsubscribe()
}
