package natsclient

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Client is a thin wrapper over a NATS JetStream connection used for
// fire-and-forget event publishing.
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	log  zerolog.Logger
}

// Connect dials NATS and initializes the JetStream context.
func Connect(url string, log zerolog.Logger) (*Client, error) {
	conn, err := nats.Connect(url,
		nats.Name("be-governance"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &Client{conn: conn, js: js, log: log}, nil
}

// Publish publishes data to the given subject, respecting ctx cancellation.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := c.js.Publish(subject, data, nats.Context(ctx))
	return err
}

// Close drains and closes the connection.
func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		c.log.Warn().Err(err).Msg("NATS drain failed")
		c.conn.Close()
	}
}
