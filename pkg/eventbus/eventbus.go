package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Black-And-White-Club/lastword/pkg/observability/attr"
	"github.com/Black-And-White-Club/lastword/pkg/utils/handlerwrapper"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	nc "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/nats-io/nkeys"
)

// ErrKeyValueUnavailable is returned by buses that have no JetStream backing.
var ErrKeyValueUnavailable = errors.New("key-value store unavailable on this event bus")

// EventBus is a Watermill publisher/subscriber pair plus the JetStream
// administration the engine needs.
type EventBus interface {
	message.Publisher
	message.Subscriber
	// CreateStream makes sure a stream covering subjects exists.
	CreateStream(ctx context.Context, streamName string, subjects ...string) error
	// KeyValue returns (creating if needed) a JetStream key-value bucket.
	KeyValue(ctx context.Context, bucket string) (jetstream.KeyValue, error)
}

// Options configures the NATS connection.
type Options struct {
	URL string
	// NKeySeed authenticates the connection when set.
	NKeySeed string
	// AppType scopes durable consumers and queue groups, e.g. "engine" or "gateway".
	AppType string
}

type natsEventBus struct {
	publisher  *nats.Publisher
	subscriber *nats.Subscriber
	conn       *nc.Conn
	js         jetstream.JetStream
	logger     *slog.Logger

	mu       sync.Mutex
	streams  map[string]bool
	buckets  map[string]jetstream.KeyValue
	closeErr error
	closed   bool
}

// NewEventBus connects to NATS JetStream and builds the Watermill publisher and subscriber.
func NewEventBus(ctx context.Context, opts Options, logger *slog.Logger) (EventBus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	natsOptions, err := connectOptions(opts, logger)
	if err != nil {
		return nil, err
	}

	conn, err := nc.Connect(opts.URL, natsOptions...)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to connect to NATS", attr.Error(err))
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize JetStream: %w", err)
	}

	wmLogger := watermill.NewSlogLogger(logger)
	marshaler := &nats.NATSMarshaler{}
	jsConfig := nats.JetStreamConfig{
		Disabled:      false,
		AutoProvision: false,
		TrackMsgId:    true,
		DurablePrefix: opts.AppType,
		DurableCalculator: func(prefix, topic string) string {
			return durableName(prefix, topic)
		},
	}

	publisher, err := nats.NewPublisher(nats.PublisherConfig{
		URL:         opts.URL,
		NatsOptions: natsOptions,
		Marshaler:   marshaler,
		JetStream:   jsConfig,
	}, wmLogger)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create Watermill publisher: %w", err)
	}

	subscriber, err := nats.NewSubscriber(nats.SubscriberConfig{
		URL:              opts.URL,
		QueueGroupPrefix: opts.AppType,
		SubscribersCount: 4,
		CloseTimeout:     30 * time.Second,
		AckWaitTimeout:   30 * time.Second,
		NatsOptions:      natsOptions,
		Unmarshaler:      marshaler,
		JetStream:        jsConfig,
	}, wmLogger)
	if err != nil {
		_ = publisher.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to create Watermill subscriber: %w", err)
	}

	logger.InfoContext(ctx, "Event bus connected", attr.String("nats_url", opts.URL), attr.String("app_type", opts.AppType))

	return &natsEventBus{
		publisher:  publisher,
		subscriber: subscriber,
		conn:       conn,
		js:         js,
		logger:     logger,
		streams:    make(map[string]bool),
		buckets:    make(map[string]jetstream.KeyValue),
	}, nil
}

func connectOptions(opts Options, logger *slog.Logger) ([]nc.Option, error) {
	options := []nc.Option{
		nc.RetryOnFailedConnect(true),
		nc.Timeout(30 * time.Second),
		nc.ReconnectWait(time.Second),
		nc.ErrorHandler(func(_ *nc.Conn, s *nc.Subscription, err error) {
			if s != nil {
				logger.Error("NATS subscription error", attr.String("subject", s.Subject), attr.Error(err))
				return
			}
			logger.Error("NATS connection error", attr.Error(err))
		}),
	}
	if opts.AppType != "" {
		options = append(options, nc.Name("lastword-"+opts.AppType))
	}
	if opts.NKeySeed != "" {
		kp, err := nkeys.FromSeed([]byte(opts.NKeySeed))
		if err != nil {
			return nil, fmt.Errorf("invalid nkey seed: %w", err)
		}
		pub, err := kp.PublicKey()
		if err != nil {
			return nil, fmt.Errorf("failed to derive nkey public key: %w", err)
		}
		options = append(options, nc.Nkey(pub, kp.Sign))
	}
	return options, nil
}

// durableName turns a subject (possibly containing wildcards) into a legal consumer name.
func durableName(prefix, topic string) string {
	r := strings.NewReplacer(".", "_", "*", "any", ">", "all")
	name := r.Replace(topic)
	if prefix == "" {
		return name
	}
	return prefix + "_" + name
}

// Publish routes each message to the topic in its metadata, falling back to topic.
func (b *natsEventBus) Publish(topic string, msgs ...*message.Message) error {
	for _, msg := range msgs {
		dest := msg.Metadata.Get(handlerwrapper.TopicMetadataKey)
		if dest == "" {
			dest = topic
		}
		if dest == "" {
			return fmt.Errorf("message %s has no destination topic", msg.UUID)
		}
		if err := b.publisher.Publish(dest, msg); err != nil {
			b.logger.Error("Failed to publish message", attr.String("topic", dest), attr.Error(err))
			return fmt.Errorf("failed to publish to %s: %w", dest, err)
		}
	}
	return nil
}

func (b *natsEventBus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.subscriber.Subscribe(ctx, topic)
}

func (b *natsEventBus) CreateStream(ctx context.Context, streamName string, subjects ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.streams[streamName] {
		return nil
	}

	_, err := b.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  subjects,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", streamName, err)
	}
	b.streams[streamName] = true
	b.logger.InfoContext(ctx, "Stream ready", attr.String("stream", streamName), attr.Any("subjects", subjects))
	return nil
}

func (b *natsEventBus) KeyValue(ctx context.Context, bucket string) (jetstream.KeyValue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if kv, ok := b.buckets[bucket]; ok {
		return kv, nil
	}
	kv, err := b.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  bucket,
		History: 1,
		TTL:     48 * time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open key-value bucket %s: %w", bucket, err)
	}
	b.buckets[bucket] = kv
	return kv, nil
}

func (b *natsEventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return b.closeErr
	}
	b.closed = true

	var errs []error
	if err := b.publisher.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := b.subscriber.Close(); err != nil {
		errs = append(errs, err)
	}
	b.conn.Close()
	b.closeErr = errors.Join(errs...)
	return b.closeErr
}

// goChannelBus is an in-process bus used by tests and single-node development.
type goChannelBus struct {
	*gochannel.GoChannel
}

// NewGoChannelBus returns an EventBus backed by Watermill's gochannel pub/sub.
func NewGoChannelBus(logger *slog.Logger) EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &goChannelBus{
		GoChannel: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
		}, watermill.NewSlogLogger(logger)),
	}
}

func (b *goChannelBus) Publish(topic string, msgs ...*message.Message) error {
	for _, msg := range msgs {
		dest := msg.Metadata.Get(handlerwrapper.TopicMetadataKey)
		if dest == "" {
			dest = topic
		}
		if err := b.GoChannel.Publish(dest, msg); err != nil {
			return err
		}
	}
	return nil
}

func (b *goChannelBus) CreateStream(context.Context, string, ...string) error { return nil }

func (b *goChannelBus) KeyValue(context.Context, string) (jetstream.KeyValue, error) {
	return nil, ErrKeyValueUnavailable
}
