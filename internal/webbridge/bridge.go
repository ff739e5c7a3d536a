// Package webbridge mirrors server chat and presence onto websocket
// clients, and lets them post text back in through the system seat.
package webbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/proto"

	"github.com/murmelhq/murmel/internal/config"
	"github.com/murmelhq/murmel/internal/metrics"
	"github.com/murmelhq/murmel/internal/mumbleproto"
	"github.com/murmelhq/murmel/internal/router"
	"github.com/murmelhq/murmel/internal/session"
)

var ErrBackpressure = errors.New("backpressure")

// WSConn is an indirection over *websocket.Conn to ease testing.
type WSConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// WireMessage is the JSON envelope exchanged with web clients.
type WireMessage struct {
	Kind    string `json:"kind"`
	From    string `json:"from,omitempty"`
	Session uint32 `json:"session,omitempty"`
	Channel uint32 `json:"channel,omitempty"`
	Body    string `json:"body,omitempty"`
}

// Bridge owns the set of connected web clients and the event mirror.
type Bridge struct {
	reg *session.Registry
	rt  *router.Router
	cfg *config.Config

	mu      sync.RWMutex
	clients map[string]*Client
}

// New builds a bridge and installs it as the router's observer.
func New(reg *session.Registry, rt *router.Router, cfg *config.Config) *Bridge {
	b := &Bridge{
		reg:     reg,
		rt:      rt,
		cfg:     cfg,
		clients: make(map[string]*Client),
	}
	rt.SetObserver(b.onEvent)
	return b
}

// Attach registers a websocket connection under a display name and starts
// its pumps. The returned Client is removed when either pump exits.
func (b *Bridge) Attach(ctx context.Context, conn WSConn, name string) *Client {
	c := &Client{
		id:     uuid.NewString(),
		name:   name,
		conn:   conn,
		send:   make(chan []byte, 256),
		bridge: b,
	}

	b.mu.Lock()
	b.clients[c.id] = c
	b.mu.Unlock()
	metrics.WebClients.Inc()

	log.Info().Str("module", "webbridge").Str("client", c.id).
		Str("name", name).Msg("web client attached")

	c.startWriteLoop(ctx)
	c.startReadLoop(ctx)
	return c
}

func (b *Bridge) detach(c *Client) {
	b.mu.Lock()
	_, ok := b.clients[c.id]
	if ok {
		delete(b.clients, c.id)
	}
	b.mu.Unlock()
	if ok {
		metrics.WebClients.Dec()
		log.Info().Str("module", "webbridge").Str("client", c.id).Msg("web client detached")
	}
}

// onEvent mirrors control broadcasts to every web client.
func (b *Bridge) onEvent(ev router.Event) {
	var wm WireMessage

	switch m := ev.Msg.(type) {
	case *mumbleproto.TextMessage:
		if m.Message == nil {
			return
		}
		wm = WireMessage{Kind: "text", Session: ev.Origin, Body: *m.Message}
		if s, ok := b.reg.GetByNumber(ev.Origin); ok {
			wm.From = s.Name
		}
		if len(m.ChannelID) > 0 {
			wm.Channel = m.ChannelID[0]
		}
	case *mumbleproto.UserState:
		// Only full announcements carry a name; partial diffs stay internal.
		if m.Name == nil || m.Session == nil {
			return
		}
		wm = WireMessage{Kind: "join", From: *m.Name, Session: *m.Session}
	case *mumbleproto.UserRemove:
		if m.Session == nil {
			return
		}
		wm = WireMessage{Kind: "leave", Session: *m.Session}
	default:
		return
	}

	b.fanout(wm)
}

// NotifyTalk publishes speaker activity to web clients. Wired to the voice
// engine's talk-state callbacks.
func (b *Bridge) NotifyTalk(number uint32, started bool) {
	kind := "talk-end"
	if started {
		kind = "talk-start"
	}
	wm := WireMessage{Kind: kind, Session: number}
	if s, ok := b.reg.GetByNumber(number); ok {
		wm.From = s.Name
	}
	b.fanout(wm)
}

func (b *Bridge) fanout(wm WireMessage) {
	data, err := json.Marshal(wm)
	if err != nil {
		return
	}

	b.mu.RLock()
	clients := make([]*Client, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		if err := c.trySend(data); err != nil {
			log.Warn().Str("module", "webbridge").Str("client", c.id).
				Msg("web client backpressure, message dropped")
		}
	}
}

// inject posts a web client's message into the server chat through the
// system seat, addressed to the default channel.
func (b *Bridge) inject(c *Client, body string) {
	if body == "" {
		return
	}
	if max := b.cfg.MaxTextLength; max > 0 && len(body) > max {
		return
	}

	channel := b.cfg.DefaultChannel
	b.rt.Publish(router.Event{
		Msg: &mumbleproto.TextMessage{
			Actor:     proto.Uint32(session.SystemSession),
			ChannelID: []uint32{channel},
			Message:   proto.String(fmt.Sprintf("[web] %s: %s", c.name, body)),
		},
		Origin:   session.SystemSession,
		Channels: []uint32{channel},
	})
}

// Client is one websocket attachment.
type Client struct {
	id     string
	name   string
	conn   WSConn
	send   chan []byte
	bridge *Bridge
	once   sync.Once
}

func (c *Client) trySend(data []byte) error {
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

// Close is safe to call from both pumps; only the first call closes the
// send queue and the socket.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close()
		c.bridge.detach(c)
	})
}

func (c *Client) startWriteLoop(ctx context.Context) {
	go func() {
		defer c.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case data, ok := <-c.send:
				if !ok {
					return
				}
				_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			}
		}
	}()
}

func (c *Client) startReadLoop(ctx context.Context) {
	go func() {
		defer c.Close()
		for {
			select {
			case <-ctx.Done():
				return
			default:
				_, data, err := c.conn.ReadMessage()
				if err != nil {
					return
				}
				var wm WireMessage
				if err := json.Unmarshal(data, &wm); err != nil || wm.Kind != "text" {
					continue
				}
				c.bridge.inject(c, wm.Body)
			}
		}
	}()
}
