// Package events publishes zone transitions and dropped-pin lifecycle events
// to NATS so other processes (push gateways, analytics) can react to them.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"

	"kilroy/internal/config"
	"kilroy/internal/domain/entities"
)

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher turns domain events into JSON messages on subjects of the form
// "<prefix>.zone.entered" or "<prefix>.pin.dropped". Publish failures are
// logged and never returned: events are best-effort.
type Publisher struct {
	conn   Conn
	prefix string
}

// NewPublisher creates a Publisher. An empty prefix selects "kilroy".
func NewPublisher(conn Conn, prefix string) *Publisher {
	if prefix == "" {
		prefix = "kilroy"
	}
	return &Publisher{conn: conn, prefix: prefix}
}

// ZoneSubject returns the subject used for a zone transition.
func (p *Publisher) ZoneSubject(t entities.ZoneTransition) string {
	return fmt.Sprintf("%s.zone.%s", p.prefix, t)
}

// PinSubject returns the subject used for a pin lifecycle step.
func (p *Publisher) PinSubject(a entities.PinAction) string {
	return fmt.Sprintf("%s.pin.%s", p.prefix, a)
}

func (p *Publisher) ZoneEntered(ctx context.Context, event entities.ZoneEvent) {
	p.publish(p.ZoneSubject(entities.ZoneEntered), event)
}

func (p *Publisher) ZoneLeft(ctx context.Context, event entities.ZoneEvent) {
	p.publish(p.ZoneSubject(entities.ZoneLeft), event)
}

func (p *Publisher) PublishPinEvent(ctx context.Context, event entities.PinEvent) {
	p.publish(p.PinSubject(event.Action), event)
}

func (p *Publisher) publish(subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[NATS] Encode %s: %v", subject, err)
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		log.Printf("[NATS] Publish %s: %v", subject, err)
	}
}

// Connect dials NATS with reconnect handling. Connection state changes are
// logged.
func Connect(cfg config.NATSConfig) (*nats.Conn, error) {
	options := []nats.Option{
		nats.Name("kilroy"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("[NATS] Disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[NATS] Reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Printf("[NATS] Connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to NATS: %w", err)
	}
	return nc, nil
}
