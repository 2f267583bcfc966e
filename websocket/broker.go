package websocket

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"campusline/metrics"
)

// Emitter publishes an event to every connection of one user.
type Emitter interface {
	Emit(ctx context.Context, userID, event string, data interface{}) error
}

// Broker carries user-addressed payloads between server instances.
type Broker interface {
	Publish(ctx context.Context, userID string, payload []byte) error
	// Subscribe starts delivering payloads for any user until ctx is done.
	Subscribe(ctx context.Context, deliver func(userID string, payload []byte)) error
	Close() error
}

// Relay emits through a Broker so that users connected to another instance
// receive the event too. Every instance delivers what it receives to its own Hub.
type Relay struct {
	hub     *Hub
	broker  Broker
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewRelay(hub *Hub, broker Broker, logger *zap.Logger, m *metrics.Metrics) *Relay {
	return &Relay{hub: hub, broker: broker, logger: logger, metrics: m}
}

func (r *Relay) Start(ctx context.Context) error {
	return r.broker.Subscribe(ctx, func(userID string, payload []byte) {
		r.hub.SendToUser(userID, payload)
	})
}

func (r *Relay) Emit(ctx context.Context, userID, event string, data interface{}) error {
	payload, err := json.Marshal(&Message{Event: event, Data: data})
	if err != nil {
		return err
	}
	err = r.broker.Publish(ctx, userID, payload)
	r.metrics.RecordEmit(event, err)
	return err
}

// LocalEmitter emits straight into the Hub for single-instance deployments.
type LocalEmitter struct {
	hub     *Hub
	metrics *metrics.Metrics
}

func NewLocalEmitter(hub *Hub, m *metrics.Metrics) *LocalEmitter {
	return &LocalEmitter{hub: hub, metrics: m}
}

func (e *LocalEmitter) Emit(ctx context.Context, userID, event string, data interface{}) error {
	err := e.hub.Emit(ctx, userID, event, data)
	e.metrics.RecordEmit(event, err)
	return err
}
