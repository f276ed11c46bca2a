// Package gcpubsub 封装 Google Cloud Pub/Sub 的发布与消费组件。
// Publisher 逐条同步发布；Subscriber 以受控并发拉取消息，
// handler 返回 nil 时 Ack，返回错误时 Nack 交由 broker 重投。
package gcpubsub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-kratos/kratos/v2/log"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Message 是与 broker 解耦的消息载体。
type Message struct {
	ID          string
	Data        []byte
	Attributes  map[string]string
	PublishTime time.Time
}

// Publisher 发布消息并返回 broker 分配的 message id。
type Publisher interface {
	Publish(ctx context.Context, msg Message) (string, error)
}

// Subscriber 阻塞消费订阅，直到 ctx 取消或发生不可恢复错误。
type Subscriber interface {
	Receive(ctx context.Context, handler func(ctx context.Context, msg *Message) error) error
}

// ReceiveConfig 控制消费端并发与流控。
type ReceiveConfig struct {
	NumGoroutines          int
	MaxOutstandingMessages int
	MaxOutstandingBytes    int
	MaxExtension           time.Duration
	MaxExtensionPeriod     time.Duration
}

// Config 描述一个 topic + subscription 组合。
type Config struct {
	ProjectID        string
	TopicID          string
	SubscriptionID   string
	EmulatorEndpoint string
	Receive          ReceiveConfig
}

// Dependencies 注入组件依赖。
type Dependencies struct {
	Logger log.Logger
}

// Component 持有 Pub/Sub 客户端与解析后的 topic/subscription。
type Component struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	log    *log.Helper
}

// NewComponent 构造 Pub/Sub 组件并返回清理函数。
func NewComponent(ctx context.Context, cfg Config, deps Dependencies) (*Component, func(), error) {
	if cfg.ProjectID == "" {
		return nil, nil, errors.New("gcpubsub: project id is required")
	}
	if cfg.TopicID == "" && cfg.SubscriptionID == "" {
		return nil, nil, errors.New("gcpubsub: at least one of topic id and subscription id is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = log.DefaultLogger
	}
	helper := log.NewHelper(logger)

	var opts []option.ClientOption
	if cfg.EmulatorEndpoint != "" {
		opts = append(opts,
			option.WithEndpoint(cfg.EmulatorEndpoint),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("gcpubsub: create client: %w", err)
	}

	component := &Component{client: client, log: helper}

	if cfg.TopicID != "" {
		component.topic = client.Topic(cfg.TopicID)
	}
	if cfg.SubscriptionID != "" {
		sub := client.Subscription(cfg.SubscriptionID)
		applyReceiveSettings(sub, cfg.Receive)
		component.sub = sub
	}

	cleanup := func() {
		if component.topic != nil {
			component.topic.Stop()
		}
		if err := client.Close(); err != nil {
			helper.Warnf("close pubsub client: %v", err)
		}
	}
	return component, cleanup, nil
}

func applyReceiveSettings(sub *pubsub.Subscription, cfg ReceiveConfig) {
	if cfg.NumGoroutines > 0 {
		sub.ReceiveSettings.NumGoroutines = cfg.NumGoroutines
	}
	if cfg.MaxOutstandingMessages > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstandingMessages
	}
	if cfg.MaxOutstandingBytes > 0 {
		sub.ReceiveSettings.MaxOutstandingBytes = cfg.MaxOutstandingBytes
	}
	if cfg.MaxExtension > 0 {
		sub.ReceiveSettings.MaxExtension = cfg.MaxExtension
	}
	if cfg.MaxExtensionPeriod > 0 {
		sub.ReceiveSettings.MaxExtensionPeriod = cfg.MaxExtensionPeriod
	}
}

// ProvidePublisher 从组件导出 Publisher；未配置 topic 时返回 nil。
func ProvidePublisher(c *Component) Publisher {
	if c == nil || c.topic == nil {
		return nil
	}
	return &topicPublisher{topic: c.topic, log: c.log}
}

// ProvideSubscriber 从组件导出 Subscriber；未配置 subscription 时返回 nil。
func ProvideSubscriber(c *Component) Subscriber {
	if c == nil || c.sub == nil {
		return nil
	}
	return &subscriptionReceiver{sub: c.sub, log: c.log}
}

type topicPublisher struct {
	topic *pubsub.Topic
	log   *log.Helper
}

// Publish 同步发布：等待 broker 确认后返回 message id。
func (p *topicPublisher) Publish(ctx context.Context, msg Message) (string, error) {
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       msg.Data,
		Attributes: msg.Attributes,
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("gcpubsub: publish to %s: %w", p.topic.ID(), err)
	}
	return id, nil
}

type subscriptionReceiver struct {
	sub *pubsub.Subscription
	log *log.Helper
}

// Receive 按 ReceiveSettings 并发消费：handler 成功 Ack，失败 Nack。
func (s *subscriptionReceiver) Receive(ctx context.Context, handler func(ctx context.Context, msg *Message) error) error {
	return s.sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		wrapped := &Message{
			ID:          m.ID,
			Data:        m.Data,
			Attributes:  m.Attributes,
			PublishTime: m.PublishTime,
		}
		if err := handler(ctx, wrapped); err != nil {
			s.log.WithContext(ctx).Warnf("message %s handling failed, nack: %v", m.ID, err)
			m.Nack()
			return
		}
		m.Ack()
	})
}
