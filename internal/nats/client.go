// internal/nats/client.go
package nats

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	nc "github.com/nats-io/nats.go"
)

// Message is a received NATS message
type Message struct {
	Subject string
	Reply   string
	Data    []byte
}

// Client wraps a NATS connection with convenience methods
type Client struct {
	conn *nc.Conn
}

// NewClient connects to the NATS server with indefinite reconnects
func NewClient(url string) (*Client, error) {
	opts := []nc.Option{
		nc.ReconnectWait(2 * time.Second),
		nc.MaxReconnects(-1),
		nc.DisconnectErrHandler(func(conn *nc.Conn, err error) {
			if err != nil {
				log.Printf("[NATS] Disconnected: %v", err)
			}
		}),
		nc.ReconnectHandler(func(conn *nc.Conn) {
			log.Printf("[NATS] Reconnected to %s", conn.ConnectedUrl())
		}),
		nc.ClosedHandler(func(conn *nc.Conn) {
			log.Printf("[NATS] Connection closed")
		}),
	}

	conn, err := nc.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the NATS connection
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// Publish publishes data to a subject
func (c *Client) Publish(subject string, data []byte) error {
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// PublishJSON publishes a JSON-encoded message to a subject
func (c *Client) PublishJSON(subject string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return c.Publish(subject, data)
}

// Subscribe creates an asynchronous subscription
func (c *Client) Subscribe(subject string, handler func(*Message)) (*nc.Subscription, error) {
	sub, err := c.conn.Subscribe(subject, func(msg *nc.Msg) {
		handler(&Message{Subject: msg.Subject, Reply: msg.Reply, Data: msg.Data})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	return sub, nil
}

// QueueSubscribe creates a load-balanced queue subscription
func (c *Client) QueueSubscribe(subject, queue string, handler func(*Message)) (*nc.Subscription, error) {
	sub, err := c.conn.QueueSubscribe(subject, queue, func(msg *nc.Msg) {
		handler(&Message{Subject: msg.Subject, Reply: msg.Reply, Data: msg.Data})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to queue subscribe to %s: %w", subject, err)
	}
	return sub, nil
}

// Flush flushes buffered data to the server
func (c *Client) Flush() error {
	if err := c.conn.Flush(); err != nil {
		return fmt.Errorf("flush failed: %w", err)
	}
	return nil
}

// IsConnected returns true if the client is connected
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Conn returns the underlying connection, for JetStream setup
func (c *Client) Conn() *nc.Conn {
	return c.conn
}
