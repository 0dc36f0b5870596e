// Package changeevents publishes record writes to Kafka.
//
// Point records are tagged with the H3 cell that contains them so spatial
// consumers can invalidate or recompute by cell.
package changeevents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/cartodb-adapter/internal/core/model"
	"github.com/mohammed-shakir/cartodb-adapter/internal/core/observability"
	"github.com/mohammed-shakir/cartodb-adapter/internal/logger"
)

type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

type Event struct {
	Op        string    `json:"op"`
	Table     string    `json:"table"`
	ID        int64     `json:"id"`
	Point     *Point    `json:"point,omitempty"`
	Cell      string    `json:"cell,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	TS        time.Time `json:"ts"`
}

type Publisher struct {
	topic  string
	res    int
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	closed  bool
	events  chan Event
	prod    sarama.AsyncProducer
	stopped chan struct{}
}

// ProducerConfig is the sarama configuration used by NewPublisher.
func ProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	return cfg
}

func NewPublisher(brokers []string, topic string, queueSize, res int, log *slog.Logger) (*Publisher, error) {
	prod, err := sarama.NewAsyncProducer(brokers, ProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("changeevents: create async producer: %w", err)
	}
	return NewWithProducer(prod, topic, queueSize, res, log), nil
}

// NewWithProducer takes ownership of prod; Close closes it.
func NewWithProducer(prod sarama.AsyncProducer, topic string, queueSize, res int, log *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	p := &Publisher{
		topic:   topic,
		res:     res,
		logger:  log,
		now:     time.Now,
		events:  make(chan Event, queueSize),
		prod:    prod,
		stopped: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				observability.IncChangeEvent("failed")
				p.logger.Error("changeevents: marshal", "err", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(ev.Table),
				Value: sarama.ByteEncoder(b),
			}
		}
	}()

	go func() {
		for err := range p.prod.Errors() {
			if err != nil {
				observability.IncChangeEvent("failed")
				p.logger.Warn("changeevents: producer error", "err", err)
			}
		}
	}()

	return p
}

// Publish never blocks; events are dropped when the queue is full.
func (p *Publisher) Publish(ev Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		observability.IncChangeEvent("dropped")
		return
	}
	select {
	case p.events <- ev:
		observability.IncChangeEvent("queued")
	default:
		observability.IncChangeEvent("dropped")
	}
}

// RecordChanged builds and publishes the event for one successful write.
func (p *Publisher) RecordChanged(ctx context.Context, op, table string, rec model.Record) {
	ev := Event{
		Op:        op,
		Table:     table,
		ID:        rec.ID,
		RequestID: logger.RequestID(ctx),
		TS:        p.now().UTC(),
	}
	if lon, lat, err := rec.Geometry.Point(); err == nil {
		ev.Point = &Point{Lon: lon, Lat: lat}
		cell, err := Cell(lon, lat, p.res)
		if err != nil {
			p.logger.WarnContext(ctx, "changeevents: cell lookup", "err", err)
		} else {
			ev.Cell = cell
		}
	}
	p.Publish(ev)
}

// Cell returns the H3 index containing lon/lat at res.
func Cell(lon, lat float64, res int) (string, error) {
	c, err := h3.LatLngToCell(h3.LatLng{Lat: lat, Lng: lon}, res)
	if err != nil {
		return "", fmt.Errorf("h3 cell at res %d: %w", res, err)
	}
	return c.String(), nil
}

// Close drains queued events and closes the producer.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	<-p.stopped
	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("changeevents: close producer: %w", err)
	}
	return nil
}
