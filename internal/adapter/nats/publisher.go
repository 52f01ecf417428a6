// Package nats forwards leak events to a NATS subject.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/furzing/leakWhisperer/internal/domain"
)

// Publisher implements domain.EventPublisher over a core NATS connection.
type Publisher struct {
	conn    *natsgo.Conn
	subject string
	logger  *slog.Logger
}

// Connect dials the NATS server at url.
func Connect(url, subject string, logger *slog.Logger) (*Publisher, error) {
	if subject == "" {
		return nil, fmt.Errorf("nats subject is required")
	}
	conn, err := natsgo.Connect(url,
		natsgo.Name("leak-whisperer"),
		natsgo.Timeout(5*time.Second),
		natsgo.MaxReconnects(-1),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		natsgo.ReconnectHandler(func(c *natsgo.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	logger.Info("connected to nats", "url", url, "subject", subject)
	return &Publisher{conn: conn, subject: subject, logger: logger}, nil
}

// Name identifies the sink in metrics and logs.
func (p *Publisher) Name() string { return "nats" }

// Publish sends one leak event as JSON, keyed by meter id in the header.
func (p *Publisher) Publish(ctx context.Context, event domain.LeakEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serialize leak event: %w", err)
	}
	msg := natsgo.NewMsg(p.subject)
	msg.Data = data
	msg.Header.Set("meter_id", event.MeterID)
	msg.Header.Set("severity", string(event.Severity))
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish leak event %s: %w", event.MeterID, err)
	}
	return nil
}

// Healthy reports whether the connection is up.
func (p *Publisher) Healthy() bool {
	return p.conn != nil && p.conn.Status() == natsgo.CONNECTED
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	p.logger.Info("closing nats connection")
	return p.conn.Drain()
}
