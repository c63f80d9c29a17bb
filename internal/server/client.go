package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
	sendQueueSize  = 256
)

// Client is a websocket connection to the board server. Its identity is
// valid for the lifetime of the connection only.
type Client struct {
	id       string
	conn     *websocket.Conn
	server   *BoardServer
	log      *logrus.Logger
	send     chan *ServerMessage
	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(conn *websocket.Conn, s *BoardServer, l *logrus.Logger) *Client {
	return &Client{
		id:     uuid.NewString(),
		conn:   conn,
		server: s,
		log:    l,
		send:   make(chan *ServerMessage, sendQueueSize),
		stop:   make(chan struct{}),
	}
}

func (c *Client) Id() string {
	return c.id
}

func (c *Client) Send(msg *ServerMessage) bool {
	return c.queueMessage(msg)
}

func (c *Client) Close() {
	c.stopClient()
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.WithField("conn_id", c.id).Debug("write exiting")
	}()

	for {
		select {
		case msg := <-c.send:
			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.WithError(err).WithField("conn_id", c.id).Error("failed to serialize message")
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.WithField("conn_id", c.id).Debug("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.WithError(err).WithField("conn_id", c.id).Warn("ws read")
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Event == "" {
			c.log.WithField("conn_id", c.id).Debug("dropping unparsable frame")
			continue
		}

		c.server.Handle(c, &msg)
	}
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.WithField("conn_id", c.id).Warn("failed to send message to client, channel is full")
		return false
	}

	return true
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.WithError(err).WithField("conn_id", c.id).Warn("write message")
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.server.Unregister(c)
	c.stopClient()
}
