package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/auctioneer/internal/config"
)

// HeaderEventType names the header carrying the event type used for routing.
const HeaderEventType = "event-type"

// Message represents a message consumed from the bus.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
	Offset  int64
	Time    time.Time
}

// EventType returns the routing header, or an empty string.
func (m Message) EventType() string {
	return m.Headers[HeaderEventType]
}

// Handler processes an inbound message.
type Handler func(context.Context, Message) error

// Client is the pluggable messaging abstraction. Messages sharing a key are
// delivered to one partition (kafka) so per-auction order is kept.
type Client interface {
	Publish(ctx context.Context, key []byte, value []byte, headers map[string]string) error
	Consume(ctx context.Context, handler Handler) error
	Topic() string
}

// Module wires the messaging client.
var Module = fx.Provide(NewClient)

// NewNoop returns a client that drops everything.
func NewNoop(topic string) Client {
	return noopClient{topic: topic}
}

// noopClient is used when messaging is disabled.
type noopClient struct {
	topic string
}

func (n noopClient) Publish(context.Context, []byte, []byte, map[string]string) error { return nil }
func (n noopClient) Consume(ctx context.Context, handler Handler) error {
	<-ctx.Done()
	return ctx.Err()
}
func (n noopClient) Topic() string { return n.topic }

// kafkaClient implements the Client via kafka-go.
type kafkaClient struct {
	writer *kafka.Writer
	reader *kafka.Reader
	topic  string
	logger *zap.Logger
}

func (k *kafkaClient) Publish(ctx context.Context, key []byte, value []byte, headers map[string]string) error {
	msg := kafka.Message{Key: key, Value: value}
	for name, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: name, Value: []byte(v)})
	}
	return k.writer.WriteMessages(ctx, msg)
}

func (k *kafkaClient) Consume(ctx context.Context, handler Handler) error {
	for {
		msg, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			k.logger.Error("kafka fetch failed", zap.Error(err))

			time.Sleep(time.Second)
			continue
		}

		wrapped := Message{
			Topic:   msg.Topic,
			Key:     append([]byte(nil), msg.Key...),
			Value:   append([]byte(nil), msg.Value...),
			Offset:  msg.Offset,
			Time:    msg.Time,
			Headers: kafkaHeaders(msg.Headers),
		}

		if err := handler(ctx, wrapped); err != nil {
			k.logger.Error("message handler failed", zap.Error(err), zap.Int64("offset", msg.Offset))

			// Handler signals failure; skip commit to allow retry.
			continue
		}

		if err := k.reader.CommitMessages(ctx, msg); err != nil {
			k.logger.Warn("commit failed", zap.Error(err))
		}
	}
}

func (k *kafkaClient) Topic() string { return k.topic }

func kafkaHeaders(headers []kafka.Header) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	m := make(map[string]string, len(headers))
	for _, h := range headers {
		m[h.Key] = string(h.Value)
	}
	return m
}

// natsClient publishes to one subject and consumes it as a queue group, so
// each message reaches a single worker.
type natsClient struct {
	conn    *nats.Conn
	subject string
	group   string
	logger  *zap.Logger
}

const natsKeyHeader = "key"

func (n *natsClient) Publish(_ context.Context, key []byte, value []byte, headers map[string]string) error {
	msg := nats.NewMsg(n.subject)
	msg.Data = value
	if len(key) > 0 {
		msg.Header.Set(natsKeyHeader, string(key))
	}
	for name, v := range headers {
		msg.Header.Set(name, v)
	}
	return n.conn.PublishMsg(msg)
}

func (n *natsClient) Consume(ctx context.Context, handler Handler) error {
	ch := make(chan *nats.Msg, 64)
	sub, err := n.conn.ChanQueueSubscribe(n.subject, n.group, ch)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", n.subject, err)
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			n.logger.Warn("nats unsubscribe failed", zap.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-ch:
			wrapped := Message{
				Topic:   msg.Subject,
				Key:     []byte(msg.Header.Get(natsKeyHeader)),
				Value:   append([]byte(nil), msg.Data...),
				Headers: natsHeaders(msg.Header),
				Time:    time.Now().UTC(),
			}
			if err := handler(ctx, wrapped); err != nil {
				n.logger.Error("message handler failed", zap.Error(err), zap.String("subject", msg.Subject))
			}
		}
	}
}

func (n *natsClient) Topic() string { return n.subject }

func natsHeaders(h nats.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	m := make(map[string]string, len(h))
	for name := range h {
		m[name] = h.Get(name)
	}
	return m
}

// NewClient builds a messaging client based on configuration.
func NewClient(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Client, error) {
	if !cfg.Messaging.Enabled || cfg.Messaging.Driver == "noop" {
		logger.Info("messaging disabled; using noop client")

		return NewNoop(cfg.Messaging.Kafka.Topic), nil
	}

	switch cfg.Messaging.Driver {
	case "kafka":
		return newKafkaClient(lc, cfg, logger)
	case "nats":
		return newNATSClient(lc, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported messaging driver: %s", cfg.Messaging.Driver)
	}
}

func newKafkaClient(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Client, error) {
	topic := cfg.Messaging.Kafka.Topic

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Messaging.Kafka.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		Logger:       kafkaLogger{logger: logger},
		ErrorLogger:  kafkaLogger{logger: logger},
	}

	readerConfig := kafka.ReaderConfig{
		Brokers:        cfg.Messaging.Kafka.Brokers,
		GroupID:        cfg.Messaging.ConsumerGroup,
		Topic:          topic,
		MinBytes:       cfg.Messaging.Kafka.MinBytes,
		MaxBytes:       cfg.Messaging.Kafka.MaxBytes,
		CommitInterval: cfg.Messaging.Kafka.CommitInterval,
		Dialer: &kafka.Dialer{
			Timeout:  cfg.Messaging.Kafka.ConnectTimeout,
			ClientID: cfg.Messaging.Kafka.ClientID,
		},
	}

	reader := kafka.NewReader(readerConfig)

	client := &kafkaClient{writer: writer, reader: reader, topic: topic, logger: logger}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("closing kafka client")

			if err := writer.Close(); err != nil {
				return err
			}
			return reader.Close()
		},
	})

	return client, nil
}

func newNATSClient(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Client, error) {
	client := &natsClient{
		subject: cfg.Messaging.NATS.Subject,
		group:   cfg.Messaging.ConsumerGroup,
		logger:  logger,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			conn, err := nats.Connect(cfg.Messaging.NATS.URL,
				nats.Name(cfg.Messaging.NATS.Name),
				nats.MaxReconnects(-1),
				nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
					if err != nil {
						logger.Warn("nats disconnected", zap.Error(err))
					}
				}),
			)
			if err != nil {
				return fmt.Errorf("connect nats: %w", err)
			}
			client.conn = conn
			logger.Info("nats connected", zap.String("url", cfg.Messaging.NATS.URL))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if client.conn == nil {
				return nil
			}
			logger.Info("draining nats connection")
			return client.conn.Drain()
		},
	})

	return client, nil
}

type kafkaLogger struct {
	logger *zap.Logger
}

func (k kafkaLogger) Printf(msg string, args ...interface{}) {
	k.logger.Sugar().Debugf(msg, args...)
}
