// Package events publishes collection results to NATS so downstream
// consumers can react to flagged sessions without polling the snapshot.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/nats-io/nats.go"

	"github.com/dagolovach/ise-session-manager/internal/model"
)

// natsConn is the slice of nats.Conn the publisher drives.
type natsConn interface {
	IsConnected() bool
	PublishMsg(*nats.Msg) error
}

// Publisher pushes collection results onto a NATS subject.
type Publisher struct {
	conn    natsConn
	subject string
	logger  *slog.Logger
}

// NewPublisher creates a publisher on subject. A nil conn yields a publisher
// whose Publish reports the connection as unavailable.
func NewPublisher(nc *nats.Conn, subject string, logger *slog.Logger) *Publisher {
	p := &Publisher{
		subject: subject,
		logger:  logger,
	}
	if nc != nil {
		p.conn = nc
	}
	return p
}

// Publish sends one collection result to the configured subject.
func (p *Publisher) Publish(result *model.CollectionResult) error {
	if p.conn == nil || !p.conn.IsConnected() {
		return fmt.Errorf("NATS connection not available")
	}

	msg, err := newResultMsg(p.subject, result)
	if err != nil {
		return err
	}

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish result: %w", err)
	}

	p.logger.Info("Published collection result",
		"run_id", result.RunID,
		"target", result.Target,
		"flagged", result.Flagged(),
		"subject", p.subject)

	return nil
}

// newResultMsg builds the NATS message for one collection result. Consumers
// that only route on headers never have to parse the body.
func newResultMsg(subject string, result *model.CollectionResult) (*nats.Msg, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	headers := nats.Header{}
	headers.Set("x-run-id", result.RunID)
	headers.Set("x-target", result.Target)
	headers.Set("x-flagged-count", strconv.Itoa(result.Flagged()))

	return &nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  headers,
	}, nil
}
