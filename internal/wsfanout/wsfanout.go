// Package wsfanout forwards market-data channels onto websocket
// clients. Each client sends {"method":"SUBSCRIBE","params":["trade.BTC_USDT"],"id":1}
// / UNSUBSCRIBE messages; the manager tracks per-client subscriptions
// and a reference count per channel, opening a single upstream
// queue.Subscription the first time any client asks for a channel and
// closing it once the last subscriber leaves — the same
// reference-counted scheme the original ws-stream worker used.
package wsfanout

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"fenrir/internal/queue"
	"fenrir/internal/workerpool"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// subscribeMessage is a client's subscribe/unsubscribe control frame.
type subscribeMessage struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

type client struct {
	conn    *websocket.Conn
	send    chan string
	channel map[string]struct{}
	mu      sync.Mutex
}

// Manager fans market-data channels out to connected websocket clients.
type Manager struct {
	q *queue.Client

	mu            sync.Mutex
	clients       map[*client]struct{}
	subscriptions map[string]*upstream
	pool          *workerpool.Pool
}

type upstream struct {
	sub         *queue.Subscription
	cancel      context.CancelFunc
	subscribers map[*client]struct{}
}

// New constructs a Manager over an already-dialed queue client.
func New(q *queue.Client) *Manager {
	return &Manager{
		q:             q,
		clients:       make(map[*client]struct{}),
		subscriptions: make(map[string]*upstream),
		pool:          workerpool.New(64),
	}
}

// Run starts the write-pump worker pool under t and returns at once;
// the workers stop once t dies.
func (m *Manager) Run(t *tomb.Tomb) {
	m.pool.Run(t, m.writePump)
}

// ServeHTTP upgrades the connection and runs its read loop until the
// client disconnects.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan string, 32), channel: make(map[string]struct{})}
	m.addClient(c)
	defer m.removeClient(c)

	m.pool.AddTask(c)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg subscribeMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Error().Err(err).Msg("dropping malformed subscribe message")
			continue
		}

		switch msg.Method {
		case "SUBSCRIBE":
			for _, ch := range msg.Params {
				m.subscribe(c, ch)
			}
		case "UNSUBSCRIBE":
			for _, ch := range msg.Params {
				m.unsubscribe(c, ch)
			}
		}
	}
}

func (m *Manager) addClient(c *client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c] = struct{}{}
}

func (m *Manager) removeClient(c *client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.clients, c)
	c.mu.Lock()
	channels := make([]string, 0, len(c.channel))
	for ch := range c.channel {
		channels = append(channels, ch)
	}
	c.mu.Unlock()
	close(c.send)

	for _, ch := range channels {
		m.dropSubscriberLocked(c, ch)
	}
	_ = c.conn.Close()
}

func (m *Manager) subscribe(c *client, channel string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c.mu.Lock()
	c.channel[channel] = struct{}{}
	c.mu.Unlock()

	up, ok := m.subscriptions[channel]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		up = &upstream{sub: m.q.PSubscribe(ctx, channel), cancel: cancel, subscribers: make(map[*client]struct{})}
		m.subscriptions[channel] = up
		go m.pumpUpstream(ctx, channel, up)
	}
	up.subscribers[c] = struct{}{}
}

func (m *Manager) unsubscribe(c *client, channel string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c.mu.Lock()
	delete(c.channel, channel)
	c.mu.Unlock()

	m.dropSubscriberLocked(c, channel)
}

// dropSubscriberLocked assumes m.mu is held.
func (m *Manager) dropSubscriberLocked(c *client, channel string) {
	up, ok := m.subscriptions[channel]
	if !ok {
		return
	}
	delete(up.subscribers, c)
	if len(up.subscribers) == 0 {
		up.cancel()
		_ = up.sub.Close()
		delete(m.subscriptions, channel)
	}
}

func (m *Manager) pumpUpstream(ctx context.Context, channel string, up *upstream) {
	for {
		_, payload, err := up.sub.Next(ctx)
		if err != nil {
			return
		}

		m.mu.Lock()
		recipients := make([]*client, 0, len(up.subscribers))
		for c := range up.subscribers {
			recipients = append(recipients, c)
		}
		m.mu.Unlock()

		for _, c := range recipients {
			select {
			case c.send <- payload:
			default:
				log.Error().Str("channel", channel).Msg("dropping message for slow client")
			}
		}
	}
}

func (m *Manager) writePump(t *tomb.Tomb, task any) error {
	c, ok := task.(*client)
	if !ok {
		return nil
	}

	for {
		select {
		case <-t.Dying():
			return nil
		case payload, ok := <-c.send:
			if !ok {
				return nil
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
				return nil
			}
		}
	}
}
