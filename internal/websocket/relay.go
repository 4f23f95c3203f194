// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/qualitypulse/internal/metrics"
)

// ErrRelayClosed is returned when forwarding through a closed relay.
var ErrRelayClosed = errors.New("relay is closed")

// RelayConfig configures the NATS relay.
type RelayConfig struct {
	URL           string
	Topic         string
	MaxReconnects int
	ReconnectWait time.Duration
}

// Relay bridges a Hub to other API instances over core NATS pub/sub.
// Every instance subscribes without a queue group so each one sees every
// broadcast and delivers it to the connections it holds. Delivery stays
// fire-and-forget: nothing is persisted and no acknowledgment flows back
// to the producer.
type Relay struct {
	hub        *Hub
	topic      string
	origin     string
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     watermill.LoggerAdapter
	ready      chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewRelay connects to NATS and installs the relay as hub's forwarder.
func NewRelay(hub *Hub, cfg RelayConfig, logger watermill.LoggerAdapter) (*Relay, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("Relay disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("Relay reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create relay publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.URL,
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     30 * time.Second,
		SubscribeTimeout: 30 * time.Second,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("create relay subscriber: %w", err)
	}

	r := &Relay{
		hub:        hub,
		topic:      cfg.Topic,
		origin:     uuid.New().String(),
		publisher:  pub,
		subscriber: sub,
		logger:     logger,
		ready:      make(chan struct{}),
	}
	hub.SetForwarder(r)
	return r, nil
}

// Origin returns the id this instance stamps on the envelopes it publishes.
func (r *Relay) Origin() string {
	return r.origin
}

// Ready is closed once Run has subscribed to the relay topic.
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

// Forward implements Forwarder by publishing env to the relay topic.
func (r *Relay) Forward(env *Envelope) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrRelayClosed
	}

	env.ID = uuid.New().String()
	env.Origin = r.origin
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode relay envelope: %w", err)
	}

	msg := message.NewMessage(env.ID, data)
	msg.Metadata.Set("event", env.Event)
	err = r.publisher.Publish(r.topic, msg)
	metrics.RecordRelayPublish(err)
	return err
}

// Run subscribes to the relay topic and delivers envelopes published by
// other instances until ctx is canceled.
func (r *Relay) Run(ctx context.Context) error {
	messages, err := r.subscriber.Subscribe(ctx, r.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", r.topic, err)
	}
	r.markReady()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.handle(msg)
			msg.Ack()
		}
	}
}

func (r *Relay) markReady() {
	select {
	case <-r.ready:
	default:
		close(r.ready)
	}
}

func (r *Relay) handle(msg *message.Message) {
	var env Envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil || env.Channel == "" || env.Event == "" {
		metrics.RelayReceived.WithLabelValues("invalid").Inc()
		r.logger.Error("Dropping invalid relay message", err, watermill.LogFields{
			"message_uuid": msg.UUID,
		})
		return
	}
	if env.Origin == r.origin {
		metrics.RelayReceived.WithLabelValues("own").Inc()
		return
	}

	var payload interface{}
	if len(env.Payload) > 0 {
		payload = env.Payload
	}
	r.hub.deliver(env.Channel, Message{Type: env.Event, Data: payload})
	metrics.RelayReceived.WithLabelValues("delivered").Inc()
}

// Close releases the NATS connections. Further Forward calls fail with
// ErrRelayClosed.
func (r *Relay) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	return errors.Join(r.subscriber.Close(), r.publisher.Close())
}
