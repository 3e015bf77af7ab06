package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// NotificationHub fans live workflow notifications out to connected websocket
// clients. Each client is subscribed to its user's Redis channel, so events
// published by any instance reach clients on every instance.
type NotificationHub struct {
	clients    map[*NotificationClient]bool
	register   chan *NotificationClient
	unregister chan *NotificationClient
	mutex      sync.RWMutex
	redis      *redis.Client
}

type NotificationClient struct {
	hub    *NotificationHub
	id     string
	socket *websocket.Conn
	send   chan []byte
	userID uint
	pubsub *redis.PubSub
}

type HubMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

func NewNotificationHub(redisClient *redis.Client) *NotificationHub {
	return &NotificationHub{
		clients:    make(map[*NotificationClient]bool),
		register:   make(chan *NotificationClient),
		unregister: make(chan *NotificationClient),
		redis:      redisClient,
	}
}

func (h *NotificationHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			logrus.WithFields(logrus.Fields{
				"client_id": client.id,
				"user_id":   client.userID,
				"total":     h.ClientCount(),
			}).Info("notification client registered")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				// Closing the subscription ends forwardPump, which owns
				// closing the send channel. Closing send here instead would
				// race a forward still in flight.
				if client.pubsub != nil {
					client.pubsub.Close()
				}
			}
			h.mutex.Unlock()
			logrus.WithFields(logrus.Fields{
				"client_id": client.id,
				"user_id":   client.userID,
				"total":     h.ClientCount(),
			}).Info("notification client unregistered")
		}
	}
}

func (h *NotificationHub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// IsUserConnected reports whether the user has at least one live connection.
func (h *NotificationHub) IsUserConnected(userID uint) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	for client := range h.clients {
		if client.userID == userID {
			return true
		}
	}
	return false
}

// RegisterClient wires an upgraded websocket connection into the hub and
// starts forwarding the user's Redis notifications to it.
func (h *NotificationHub) RegisterClient(conn *websocket.Conn, userID uint) *NotificationClient {
	client := &NotificationClient{
		hub:    h,
		id:     generateClientID(),
		socket: conn,
		send:   make(chan []byte, 256),
		userID: userID,
	}

	client.pubsub = h.redis.Subscribe(context.Background(), NotificationChannel(userID))

	h.register <- client

	go client.forwardPump()
	go client.writePump()
	go client.readPump()

	return client
}

func (h *NotificationHub) UnregisterClient(client *NotificationClient) {
	h.unregister <- client
}

// forwardPump moves messages from the Redis subscription into the client's
// send buffer until the subscription is closed. It is the sole writer of the
// send channel after readPump exits, so it alone closes it.
func (c *NotificationClient) forwardPump() {
	defer close(c.send)
	for msg := range c.pubsub.Channel() {
		message := HubMessage{Type: "notification"}
		if err := json.Unmarshal([]byte(msg.Payload), &message.Payload); err != nil {
			logrus.WithError(err).Warn("dropping malformed notification message")
			continue
		}
		data, err := json.Marshal(message)
		if err != nil {
			logrus.WithError(err).Warn("failed to marshal hub message")
			continue
		}
		select {
		case c.send <- data:
		default:
			logrus.WithField("client_id", c.id).Warn("client send buffer full, dropping notification")
		}
	}
}

func (c *NotificationClient) readPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.socket.Close()
	}()

	for {
		_, message, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).Debug("websocket read error")
			}
			break
		}

		var msg HubMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			logrus.WithError(err).Debug("ignoring malformed client message")
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *NotificationClient) writePump() {
	defer func() {
		c.socket.Close()
	}()

	for message := range c.send {
		w, err := c.socket.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		w.Write(message)
		if err := w.Close(); err != nil {
			return
		}
	}
	c.socket.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *NotificationClient) handleMessage(msg HubMessage) {
	switch msg.Type {
	case "ping":
		response := HubMessage{Type: "pong", Payload: "pong"}
		data, _ := json.Marshal(response)
		select {
		case c.send <- data:
		default:
		}
	default:
		logrus.WithFields(logrus.Fields{
			"type":    msg.Type,
			"user_id": c.userID,
		}).Debug("unknown websocket message type")
	}
}

func generateClientID() string {
	return fmt.Sprintf("client_%d", time.Now().UnixNano())
}
