package ws

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"voicehub/contract"
	"voicehub/domain/event"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	sendBuffer = 64
)

var _ contract.EventSink = (*Client)(nil)

// Client owns one websocket connection. The write pump is the only
// goroutine allowed to write to the socket; everyone else goes through
// the buffered send channel via Consume.
type Client struct {
	connID string
	conn   *websocket.Conn
	log    *slog.Logger
	send   chan event.Outbound
	done   chan struct{}
}

func newClient(connID string, conn *websocket.Conn, log *slog.Logger) *Client {
	return &Client{
		connID: connID,
		conn:   conn,
		log:    log.With("conn", connID),
		send:   make(chan event.Outbound, sendBuffer),
		done:   make(chan struct{}),
	}
}

// Consume queues one event for delivery. It never blocks: a client that
// cannot drain its own buffer is considered slow and loses the event.
func (c *Client) Consume(ctx context.Context, e event.Outbound) error {
	select {
	case <-c.done:
		return fmt.Errorf("connection %s closed", c.connID)
	case c.send <- e:
		return nil
	default:
		return fmt.Errorf("connection %s send buffer full", c.connID)
	}
}

// writePump serializes queued events onto the socket and keeps the
// connection alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case e := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(e); err != nil {
				c.log.Debug("Write failed, closing", "err", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}
