package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const ChannelUserNotifications = "user_notifications"

// 通知类型
const (
	TypeSubscriptionChanged = "subscription_changed"
	TypeTestFinalized       = "test_finalized"
)

// Notification 推送给某个用户的通知
type Notification struct {
	Type   string                 `json:"type"`
	UserID string                 `json:"user_id"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

// Notifier 通知发送方
type Notifier interface {
	Notify(ctx context.Context, n *Notification) error
}

// Publisher Redis 发布者，多实例部署时使用
type Publisher struct {
	client  *redis.Client
	channel string
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client, channel: ChannelUserNotifications}
}

func (p *Publisher) Notify(ctx context.Context, n *Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	return p.client.Publish(ctx, p.channel, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client  *redis.Client
	channel string
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client, channel: ChannelUserNotifications}
}

// Subscribe 阻塞接收通知直到 ctx 结束
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*Notification)) error {
	sub := s.client.Subscribe(ctx, s.channel)
	defer sub.Close()

	// 等待订阅确认，保证之后发布的消息不会丢失
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var n Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				continue // 忽略解析错误
			}

			handler(&n)
		}
	}
}

// LocalNotifier 单实例部署时直接在进程内投递
type LocalNotifier struct {
	deliver func(*Notification)
}

func NewLocalNotifier(deliver func(*Notification)) *LocalNotifier {
	return &LocalNotifier{deliver: deliver}
}

func (l *LocalNotifier) Notify(_ context.Context, n *Notification) error {
	l.deliver(n)
	return nil
}
