// Package websocket is a small gorilla/websocket client that mirrors ring
// occupancy snapshots pushed by internal/monitor, used by cmd/llq-watch.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lowlatency/llq/internal/config"
	"github.com/lowlatency/llq/internal/monitor"
)

// Handler receives each batch of queue snapshots as it arrives.
type Handler interface {
	HandleSnapshot(snapshots []monitor.Snapshot)
}

// Client is a reconnecting websocket client for the monitor's /ws/stats
// feed.
type Client struct {
	config  *config.WatchConfig
	handler Handler

	mutex sync.RWMutex
	conn  *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc
}

// NewClient creates a watch client bound to cfg.URL.
func NewClient(parentCtx context.Context, cfg *config.WatchConfig, handler Handler) *Client {
	ctx, cancel := context.WithCancel(parentCtx)
	return &Client{config: cfg, handler: handler, ctx: ctx, cancel: cancel}
}

// Start begins the connect/read/reconnect loop in the background.
func (c *Client) Start() error {
	go c.connectLoop()
	return nil
}

// Stop ends the loop and closes any open connection.
func (c *Client) Stop() error {
	c.cancel()

	c.mutex.Lock()
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			log.Printf("watch: close connection: %v", err)
		}
	}
	c.mutex.Unlock()
	return nil
}

// IsConnected reports whether a connection is currently established.
func (c *Client) IsConnected() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.conn != nil
}

func (c *Client) connectLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		if err := c.connect(); err != nil {
			log.Printf("watch: connect failed: %v (retrying in %s)", err, c.config.ReconnectDelay)
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(c.config.ReconnectDelay):
				continue
			}
		}

		c.readLoop()
	}
}

func (c *Client) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.config.URL, nil)
	if err != nil {
		return err
	}

	if err := conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout)); err != nil {
		conn.Close()
		return fmt.Errorf("set read deadline: %w", err)
	}

	c.mutex.Lock()
	c.conn = conn
	c.mutex.Unlock()
	return nil
}

func (c *Client) readLoop() {
	defer func() {
		c.mutex.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.mutex.Unlock()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mutex.RLock()
		conn := c.conn
		c.mutex.RUnlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Printf("watch: read failed: %v", err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		var snapshots []monitor.Snapshot
		if err := json.Unmarshal(message, &snapshots); err != nil {
			log.Printf("watch: decode snapshot: %v", err)
			continue
		}
		c.handler.HandleSnapshot(snapshots)
	}
}
