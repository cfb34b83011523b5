package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotification_JSON(t *testing.T) {
	n := &Notification{
		Type:   TypeSubscriptionChanged,
		UserID: "user_1",
		Data:   map[string]interface{}{"status": "active"},
	}

	data, err := json.Marshal(n)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "user_1", raw["user_id"])
	assert.Equal(t, TypeSubscriptionChanged, raw["type"])
}

func TestPublisherSubscriber(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	publisher := NewPublisher(client)
	subscriber := NewSubscriber(client)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan *Notification, 1)
	go func() {
		subscriber.Subscribe(ctx, func(n *Notification) {
			received <- n
		})
	}()

	// 等待订阅建立
	require.Eventually(t, func() bool {
		return len(mr.PubSubChannels("")) > 0
	}, 2*time.Second, 10*time.Millisecond)

	err := publisher.Notify(ctx, &Notification{
		Type:   TypeTestFinalized,
		UserID: "user_2",
		Data:   map[string]interface{}{"score": 70},
	})
	require.NoError(t, err)

	select {
	case n := <-received:
		assert.Equal(t, "user_2", n.UserID)
		assert.Equal(t, TypeTestFinalized, n.Type)
		assert.Equal(t, float64(70), n.Data["score"])
	case <-ctx.Done():
		t.Fatal("Timeout waiting for notification")
	}
}

func TestLocalNotifier(t *testing.T) {
	var got *Notification
	notifier := NewLocalNotifier(func(n *Notification) { got = n })

	err := notifier.Notify(context.Background(), &Notification{Type: TypeTestFinalized, UserID: "u"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u", got.UserID)
}
