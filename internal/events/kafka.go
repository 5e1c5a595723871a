// Package events publishes navigation session events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shaunagostinho/navcore/internal/navigation"
)

const (
	DefaultTopic = "navcore.navigation.events"
	source       = "navcore"
	queueSize    = 256
)

// Envelope is the JSON value of every published message. Its shape follows
// CloudEvents 1.0 structured mode.
type Envelope struct {
	SpecVersion     string           `json:"specversion"`
	ID              string           `json:"id"`
	Source          string           `json:"source"`
	Type            string           `json:"type"`
	Subject         string           `json:"subject"`
	Time            time.Time        `json:"time"`
	DataContentType string           `json:"datacontenttype"`
	Data            navigation.Event `json:"data"`
}

// EventType returns the envelope type for a session event type.
func EventType(t navigation.EventType) string {
	return "navcore.navigation." + string(t)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config selects the brokers and topic. SkipUpdates drops the per-sample
// "updated" events and publishes only transitions.
type Config struct {
	Brokers     []string
	Topic       string
	SkipUpdates bool
}

// Publisher is a navigation.Listener. SessionEvent never blocks: events are
// queued and written by Run. When the queue is full new events are dropped.
type Publisher struct {
	writer      messageWriter
	topic       string
	skipUpdates bool
	logger      *zap.Logger
	queue       chan navigation.Event
	dropped     atomic.Int64
}

func NewPublisher(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(w, cfg, logger), nil
}

func newPublisher(w messageWriter, cfg Config, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	return &Publisher{
		writer:      w,
		topic:       cfg.Topic,
		skipUpdates: cfg.SkipUpdates,
		logger:      logger.Named("events"),
		queue:       make(chan navigation.Event, queueSize),
	}
}

// SessionEvent queues e for publishing.
func (p *Publisher) SessionEvent(e navigation.Event) {
	if p.skipUpdates && e.Type == navigation.EventUpdated {
		return
	}
	select {
	case p.queue <- e:
	default:
		if n := p.dropped.Add(1); n == 1 || n%100 == 0 {
			p.logger.Warn("event queue full, dropping", zap.Int64("dropped", n))
		}
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (p *Publisher) Dropped() int64 { return p.dropped.Load() }

// Run writes queued events until ctx is done, then drains what is left
// with a short grace period and closes the writer.
func (p *Publisher) Run(ctx context.Context) error {
	p.logger.Info("publishing navigation events", zap.String("topic", p.topic))
	for {
		select {
		case e := <-p.queue:
			p.write(ctx, e)
		case <-ctx.Done():
			p.drain()
			return p.writer.Close()
		}
	}
}

func (p *Publisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case e := <-p.queue:
			p.write(ctx, e)
		default:
			return
		}
	}
}

func (p *Publisher) write(ctx context.Context, e navigation.Event) {
	msg, err := Message(e)
	if err != nil {
		p.logger.Error("encode event", zap.Error(err))
		return
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("publish event failed",
				zap.String("type", string(e.Type)),
				zap.String("session_id", e.SessionID),
				zap.Error(err))
		}
		return
	}
	p.logger.Debug("event published", zap.String("type", string(e.Type)))
}

// Message encodes e as a Kafka message keyed by session, so one session's
// events stay ordered within a partition.
func Message(e navigation.Event) (kafkago.Message, error) {
	env := Envelope{
		SpecVersion:     "1.0",
		ID:              uuid.NewString(),
		Source:          source,
		Type:            EventType(e.Type),
		Subject:         e.SessionID,
		Time:            e.At,
		DataContentType: "application/json",
		Data:            e,
	}
	value, err := json.Marshal(env)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	return kafkago.Message{
		Key:   []byte(e.SessionID),
		Value: value,
		Time:  e.At,
		Headers: []kafkago.Header{
			{Key: "ce_type", Value: []byte(env.Type)},
		},
	}, nil
}

// Decode parses a message value written by Message. The snapshot's route is
// never serialized.
func Decode(value []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode event: %w", err)
	}
	return env, nil
}
