package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/bondoverhobbies/internal/observability"
)

const defaultSubscriberBuffer = 64

// Broker fans events for a topic out to subscribers on this node and, when
// redis or NATS are configured, to subscribers on every other node. Events
// travel over a single transport, NATS when configured and redis otherwise,
// so each node receives one publisher's events in publish order.
type Broker struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}

	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string

	nodeID string
	buffer int
	logger zerolog.Logger
}

// BrokerOptions wires the cross-node transports of a Broker.
type BrokerOptions struct {
	Redis       *redis.Client
	NATS        *nats.Conn
	ChannelBase string
	Buffer      int
}

// Subscription receives raw event payloads for one topic. It is closed when
// the owner calls Close, when the broker drops it for falling behind, or when
// the broker is stopped.
type Subscription struct {
	topic    string
	events   chan json.RawMessage
	done     chan struct{}
	once     sync.Once
	broker   *Broker
	overflow bool
}

type brokerEvent struct {
	ID      string          `json:"id"`
	Source  string          `json:"source"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

// NewBroker constructs a broker. Redis and NATS are optional; when both are
// given redis is left to its other duties and NATS carries the events.
func NewBroker(opts BrokerOptions, logger zerolog.Logger) *Broker {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}

	broker := &Broker{
		topics: make(map[string]map[*Subscription]struct{}),
		nats:   opts.NATS,
		nodeID: uuid.NewString(),
		buffer: buffer,
		logger: logger.With().Str("component", "realtime_broker").Logger(),
	}
	if opts.NATS == nil {
		broker.redis = opts.Redis
	}

	if opts.ChannelBase != "" {
		broker.redisChannel = opts.ChannelBase + ":events"
		broker.natsSubject = strings.ReplaceAll(opts.ChannelBase, ":", ".") + ".events"
	}

	return broker
}

// Start runs the transport consumer until ctx is cancelled.
func (b *Broker) Start(ctx context.Context) {
	switch b.Transport() {
	case "nats":
		go b.consumeNATS(ctx)
	case "redis":
		go b.consumeRedis(ctx)
	}
}

// Subscribe registers a new subscriber for topic.
func (b *Broker) Subscribe(topic string) *Subscription {
	sub := &Subscription{
		topic:  topic,
		events: make(chan json.RawMessage, b.buffer),
		done:   make(chan struct{}),
		broker: b,
	}

	b.mu.Lock()
	if _, ok := b.topics[topic]; !ok {
		b.topics[topic] = make(map[*Subscription]struct{})
	}
	b.topics[topic][sub] = struct{}{}
	b.mu.Unlock()

	observability.RealtimeSubscribers().Inc()
	return sub
}

// Publish delivers payload to local subscribers of topic and forwards it to
// the other nodes.
func (b *Broker) Publish(ctx context.Context, topic string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	event := brokerEvent{
		ID:      uuid.NewString(),
		Source:  b.nodeID,
		Topic:   topic,
		Payload: raw,
		SentAt:  time.Now().UTC(),
	}

	b.deliver(topic, raw)

	encoded, err := json.Marshal(event)
	if err != nil {
		return err
	}

	switch {
	case b.nats != nil && b.natsSubject != "":
		return b.nats.Publish(b.natsSubject, encoded)
	case b.redis != nil && b.redisChannel != "":
		return b.redis.Publish(ctx, b.redisChannel, encoded).Err()
	default:
		return nil
	}
}

// Transport names the cross-node transport in use, or "local".
func (b *Broker) Transport() string {
	switch {
	case b.nats != nil && b.natsSubject != "":
		return "nats"
	case b.redis != nil && b.redisChannel != "":
		return "redis"
	default:
		return "local"
	}
}

func (b *Broker) deliver(topic string, raw json.RawMessage) {
	var lagging []*Subscription

	b.mu.RLock()
	for sub := range b.topics[topic] {
		select {
		case sub.events <- raw:
		default:
			lagging = append(lagging, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range lagging {
		b.logger.Warn().Str("topic", topic).Msg("closing subscriber that fell behind")
		observability.RealtimeDroppedSubscribers().Inc()
		sub.closeWith(true)
	}
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.topics[sub.topic]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.topics, sub.topic)
		}
	}
}

func (b *Broker) consumeRedis(ctx context.Context) {
	pubsub := b.redis.Subscribe(ctx, b.redisChannel)
	defer func() {
		_ = pubsub.Close()
	}()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			b.logger.Error().Err(err).Msg("realtime redis subscription closed")
			return
		}
		b.handleEvent([]byte(msg.Payload))
	}
}

func (b *Broker) consumeNATS(ctx context.Context) {
	sub, err := b.nats.Subscribe(b.natsSubject, func(msg *nats.Msg) {
		b.handleEvent(msg.Data)
	})
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to subscribe to nats realtime subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			b.logger.Warn().Err(err).Msg("failed to drain realtime nats subscription")
		}
	}()
}

func (b *Broker) handleEvent(data []byte) {
	var event brokerEvent
	if err := json.Unmarshal(data, &event); err != nil {
		b.logger.Warn().Err(err).Msg("invalid realtime event")
		return
	}

	if event.Source == b.nodeID || event.Topic == "" {
		return
	}

	b.deliver(event.Topic, event.Payload)
}

// Events returns the stream of raw payloads.
func (s *Subscription) Events() <-chan json.RawMessage {
	return s.events
}

// Done is closed once the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Overflowed reports whether the broker closed the subscription because its
// buffer filled up.
func (s *Subscription) Overflowed() bool {
	select {
	case <-s.done:
		return s.overflow
	default:
		return false
	}
}

// Close releases the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.closeWith(false)
}

func (s *Subscription) closeWith(overflow bool) {
	s.once.Do(func() {
		s.overflow = overflow
		s.broker.remove(s)
		close(s.done)
		observability.RealtimeSubscribers().Dec()
	})
}

func messageTopic(communityID, channel string) string {
	return "messages:" + communityID + ":" + channel
}

func communityTopic(communityID string) string {
	return "community:" + communityID
}

func sessionTopic(uid string) string {
	return "session:" + uid
}

func decodeEvent(raw json.RawMessage, target interface{}) error {
	return json.Unmarshal(raw, target)
}
