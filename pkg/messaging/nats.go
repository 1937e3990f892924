// Package messaging wraps the NATS connection used to fan the ticket
// pipeline's two cross-process events — ticket-ready notifications and
// escalation alerts — out to every subscribing process.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Client wraps a core NATS connection with the reconnect bookkeeping the
// worker and api processes need to know whether cross-process events are
// currently deliverable.
type Client struct {
	conn       *nats.Conn
	subs       map[string]*nats.Subscription
	mu         sync.RWMutex
	reconnects int

	connected bool
}

// Config holds NATS connection settings.
type Config struct {
	URL            string
	Name           string
	ReconnectWait  time.Duration
	MaxReconnects  int
	ConnectTimeout time.Duration
}

// NewClient dials NATS and tracks reconnect/disconnect transitions.
func NewClient(cfg Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	client := &Client{
		conn:      conn,
		subs:      make(map[string]*nats.Subscription),
		connected: true,
	}

	conn.SetReconnectHandler(func(nc *nats.Conn) {
		client.reconnects++
		client.connected = true
	})

	conn.SetDisconnectErrHandler(func(nc *nats.Conn, err error) {
		client.connected = false
	})

	return client, nil
}

// Publish marshals data as JSON and publishes it to subject — used for
// both the escalation-event subject and the ticket-ready subject.
func (c *Client) Publish(ctx context.Context, subject string, data interface{}) error {
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	return c.conn.Publish(subject, payload)
}

// Subscribe registers handler on subject. The api process uses this for
// the ticket-ready subject so a ticket completed by any worker fans out
// to every api process's connected WebSocket clients.
func (c *Client) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.subs[subject]; exists {
		return fmt.Errorf("already subscribed to %s", subject)
	}

	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	c.subs[subject] = sub
	return nil
}

// IsConnected reports whether the connection is currently up, surfaced
// through the api process's health endpoint.
func (c *Client) IsConnected() bool {
	return c.connected && c.conn != nil && c.conn.IsConnected()
}

// Close unsubscribes everything and closes the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		sub.Unsubscribe()
		delete(c.subs, subject)
	}

	if c.conn != nil {
		c.conn.Close()
	}

	c.connected = false
	return nil
}

// Reconnects returns the number of times this client has reconnected,
// surfaced through the api process's health endpoint alongside
// IsConnected.
func (c *Client) Reconnects() int {
	return c.reconnects
}
