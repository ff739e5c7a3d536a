// Package conn runs the per-client protocol state machine over an
// established transport: version exchange, authentication, state
// synchronization and steady-state message dispatch.
package conn

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/proto"

	"github.com/murmelhq/murmel/internal/config"
	"github.com/murmelhq/murmel/internal/metrics"
	"github.com/murmelhq/murmel/internal/mumbleproto"
	"github.com/murmelhq/murmel/internal/router"
	"github.com/murmelhq/murmel/internal/session"
	"github.com/murmelhq/murmel/internal/voice"
	"github.com/murmelhq/murmel/internal/wire"
)

// State is the connection lifecycle phase.
type State int

const (
	StateConnected State = iota
	StateAuthenticating
	StateSynchronizing
	StateActive
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAuthenticating:
		return "authenticating"
	case StateSynchronizing:
		return "synchronizing"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Protocol version advertised in Version and echoed by discovery: 1.2.4.
const protocolVersion uint32 = 0x00010204

// CELT bitstream versions advertised in CodecVersion.
const (
	celtAlphaVersion int32 = -2147483637
	celtBetaVersion  int32 = -2147483632
)

// Permission mask handed out by the canned permission replies: traverse,
// enter, speak, whisper and text message.
const cannedPermissions uint32 = 0x30E

// Reject and PermissionDenied reason codes from the protocol schema.
const (
	rejectInvalidUsername uint32 = 2
	rejectServerFull      uint32 = 6
	rejectNoCertificate   uint32 = 7

	denyPermission  uint32 = 1
	denyTextTooLong uint32 = 4
)

// Options wires a connection engine to the server's shared state.
type Options struct {
	Registry *session.Registry
	Router   *router.Router
	Voice    *voice.Engine // nil disables voice ingest, relay still works
	Config   *config.Config

	// Fingerprint is the peer certificate's SHA-1 hex digest, empty when
	// the peer presented none. TLS itself is handled by the listener.
	Fingerprint string
	Remote      string
}

// Engine drives one client connection. Inbound messages are processed
// strictly in arrival order on the Run goroutine; broadcast deliveries are
// written by a separate pump so a slow peer cannot stall publishers.
type Engine struct {
	opts      Options
	transport io.ReadWriteCloser
	writer    *wire.Writer
	decoder   *wire.Decoder
	logger    zerolog.Logger

	state     State
	sessionID string
	number    uint32

	// pendingState buffers a UserState that arrived before the session
	// existed (clients send one alongside Authenticate).
	pendingState *mumbleproto.UserState

	queue    <-chan router.Delivery
	pumpDone chan struct{}

	closeOnce sync.Once
}

// New builds an engine over an established, already-authenticated byte
// stream.
func New(transport io.ReadWriteCloser, opts Options) *Engine {
	return &Engine{
		opts:      opts,
		transport: transport,
		writer:    wire.NewWriter(transport),
		decoder:   wire.NewDecoder(),
		logger: log.With().Str("module", "conn").
			Str("remote", opts.Remote).Logger(),
		state:    StateConnected,
		pumpDone: make(chan struct{}),
	}
}

// Run sends the initial Version and processes inbound frames until the
// transport closes, the context is cancelled or a protocol error occurs.
// Teardown always goes through the same idempotent path.
func (e *Engine) Run(ctx context.Context) {
	defer e.teardown()

	go func() {
		<-ctx.Done()
		e.transport.Close()
	}()

	e.state = StateAuthenticating
	e.send(&mumbleproto.Version{
		Version: proto.Uint32(protocolVersion),
		Release: proto.String("murmel"),
		OS:      proto.String(runtime.GOOS),
	})

	buf := make([]byte, 4096)
	for {
		n, err := e.transport.Read(buf)
		if n > 0 {
			frames, ferr := e.decoder.Feed(buf[:n])
			for _, f := range frames {
				if derr := e.dispatch(ctx, f); derr != nil {
					metrics.ProtocolErrors.Inc()
					e.logger.Warn().Err(derr).Msg("fatal protocol error, disconnecting")
					return
				}
			}
			if ferr != nil {
				metrics.ProtocolErrors.Inc()
				e.logger.Warn().Err(ferr).Msg("malformed stream, disconnecting")
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				e.logger.Debug().Err(err).Msg("transport read ended")
			}
			return
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, f wire.Frame) error {
	typ := mumbleproto.Type(f.Type)
	metrics.FramesIn.WithLabelValues(typ.Name()).Inc()

	// The voice tunnel payload is raw, not schema encoded; route it before
	// the registry gets a chance to misparse it.
	if typ == mumbleproto.TypeUDPTunnel {
		e.handleTunnel(f.Payload)
		return nil
	}

	msg, err := mumbleproto.Unmarshal(typ, f.Payload)
	if err != nil {
		return err
	}

	e.logger.Trace().Str("type", typ.Name()).Msg("protocol-in")

	switch m := msg.(type) {
	case *mumbleproto.Version:
		e.handleVersion(m)
	case *mumbleproto.Authenticate:
		return e.handleAuthenticate(ctx, m)
	case *mumbleproto.Ping:
		e.handlePing(m)
	case *mumbleproto.TextMessage:
		e.handleTextMessage(m)
	case *mumbleproto.UserState:
		e.handleUserState(m)
	case *mumbleproto.PermissionQuery:
		e.handlePermissionQuery(m)
	case *mumbleproto.ACL:
		e.handleACL(m)
	case *mumbleproto.ChannelRemove:
		e.handleChannelRemove(m)
	default:
		e.logger.Trace().Str("type", typ.Name()).Msg("unhandled message dropped")
	}
	return nil
}

func (e *Engine) handleVersion(m *mumbleproto.Version) {
	ev := e.logger.Debug()
	if m.Version != nil {
		ev = ev.Uint32("version", *m.Version)
	}
	if m.Release != nil {
		ev = ev.Str("release", *m.Release)
	}
	ev.Msg("client version")
}

func (e *Engine) handleAuthenticate(ctx context.Context, m *mumbleproto.Authenticate) error {
	if e.state != StateAuthenticating {
		e.logger.Debug().Msg("duplicate Authenticate ignored")
		return nil
	}

	username := ""
	if m.Username != nil {
		username = *m.Username
	}
	if username == "" {
		e.send(&mumbleproto.Reject{
			RejectType: proto.Uint32(rejectInvalidUsername),
			Reason:     proto.String("username required"),
		})
		return errors.New("conn: empty username")
	}
	if e.opts.Config.CertRequired && e.opts.Fingerprint == "" {
		e.send(&mumbleproto.Reject{
			RejectType: proto.Uint32(rejectNoCertificate),
			Reason:     proto.String("certificate required"),
		})
		return errors.New("conn: certificate required")
	}
	if e.opts.Registry.Count()-1 >= e.opts.Config.MaxUsers {
		e.send(&mumbleproto.Reject{
			RejectType: proto.Uint32(rejectServerFull),
			Reason:     proto.String("server is full"),
		})
		return errors.New("conn: server full")
	}

	e.state = StateSynchronizing

	id, err := e.opts.Registry.AddUser(ctx, session.Attrs{
		Name:      username,
		Hash:      e.opts.Fingerprint,
		ChannelID: e.opts.Config.DefaultChannel,
	})
	if err != nil {
		return err
	}
	e.sessionID = id

	self, _ := e.opts.Registry.Get(id)
	e.number = self.Number
	e.logger = e.logger.With().Uint32("session", e.number).Str("name", username).Logger()
	metrics.Sessions.Inc()

	if e.pendingState != nil {
		e.opts.Registry.Apply(id, e.pendingState)
		e.pendingState = nil
		self, _ = e.opts.Registry.Get(id)
	}

	e.send(&mumbleproto.CryptSetup{
		Key:         randomBytes(16),
		ClientNonce: randomBytes(16),
		ServerNonce: randomBytes(16),
	})
	e.send(&mumbleproto.CodecVersion{
		Alpha:       proto.Int32(celtAlphaVersion),
		Beta:        proto.Int32(celtBetaVersion),
		PreferAlpha: proto.Bool(true),
		Opus:        proto.Bool(true),
	})

	channels := e.opts.Registry.Channels()
	for i := range channels {
		e.send(channels[i].State())
	}

	e.send(&mumbleproto.PermissionQuery{
		ChannelID:   proto.Uint32(self.ChannelID),
		Permissions: proto.Uint32(cannedPermissions),
		Flush:       proto.Bool(true),
	})

	// Join the broadcast group before snapshotting the user list. A peer
	// that authenticates in between then lands on the queue even if the
	// snapshot missed it; the client may see that peer twice, which is an
	// idempotent state update, whereas a missed join would not heal until
	// the peer's next state change.
	e.queue = e.opts.Router.Subscribe(e.number, 64)
	go e.pump()

	// Full user list, the new session last. The system pseudo-session is
	// not a visible user.
	for _, s := range e.opts.Registry.Sessions() {
		if s.Number == session.SystemSession {
			continue
		}
		e.send(s.State())
	}

	e.opts.Router.Publish(router.Event{Msg: self.State(), Origin: e.number})

	e.send(&mumbleproto.ServerSync{
		Session:      proto.Uint32(e.number),
		MaxBandwidth: proto.Uint32(uint32(e.opts.Config.MaxBandwidth)),
		WelcomeText:  proto.String(e.opts.Config.WelcomeText),
		Permissions:  proto.Uint64(uint64(cannedPermissions)),
	})
	e.send(&mumbleproto.ServerConfig{
		MaxBandwidth:  proto.Uint32(uint32(e.opts.Config.MaxBandwidth)),
		WelcomeText:   proto.String(e.opts.Config.WelcomeText),
		AllowHTML:     proto.Bool(e.opts.Config.AllowHTML),
		MessageLength: proto.Uint32(uint32(e.opts.Config.MaxTextLength)),
		MaxUsers:      proto.Uint32(uint32(e.opts.Config.MaxUsers)),
	})
	e.send(&mumbleproto.SuggestConfig{
		Version: proto.Uint32(e.opts.Config.SuggestVersion),
	})

	e.state = StateActive
	e.logger.Info().Msg("connection initialized")
	return nil
}

func (e *Engine) handlePing(m *mumbleproto.Ping) {
	reply := &mumbleproto.Ping{Timestamp: m.Timestamp}
	if reply.Timestamp == nil {
		reply.Timestamp = proto.Uint64(uint64(time.Now().UnixMilli()))
	}
	e.send(reply)
}

func (e *Engine) handleTextMessage(m *mumbleproto.TextMessage) {
	if e.state != StateActive {
		return
	}
	if len(m.ChannelID) == 0 {
		e.logger.Trace().Msg("text message without destination dropped")
		return
	}
	if m.Message == nil {
		return
	}
	if max := e.opts.Config.MaxTextLength; max > 0 && len(*m.Message) > max {
		e.send(&mumbleproto.PermissionDenied{
			DenyType: proto.Uint32(denyTextTooLong),
			Reason:   proto.String("message too long"),
		})
		return
	}

	e.opts.Router.Publish(router.Event{
		Msg: &mumbleproto.TextMessage{
			Actor:     proto.Uint32(e.number),
			ChannelID: m.ChannelID,
			Message:   m.Message,
		},
		Origin:   e.number,
		Channels: m.ChannelID,
	})
}

func (e *Engine) handleUserState(m *mumbleproto.UserState) {
	if e.sessionID == "" {
		// Arrived alongside Authenticate; apply right after the session
		// exists.
		e.pendingState = m
		return
	}

	diff, ok := e.opts.Registry.Apply(e.sessionID, m)
	if !ok || emptyState(diff) {
		return
	}
	diff.Session = proto.Uint32(e.number)
	diff.Actor = proto.Uint32(e.number)
	e.opts.Router.Publish(router.Event{Msg: diff, Origin: e.number})
}

func emptyState(st *mumbleproto.UserState) bool {
	return st.Mute == nil && st.Deaf == nil && st.Suppress == nil &&
		st.SelfMute == nil && st.SelfDeaf == nil && st.Recording == nil &&
		st.PrioritySpeaker == nil && st.ChannelID == nil &&
		st.Comment == nil && st.PluginIdentity == nil && st.PluginContext == nil
}

// handlePermissionQuery answers with fixed data. Real ACL evaluation is
// external to this server; the reply shape depends on the configured
// policy.
func (e *Engine) handlePermissionQuery(m *mumbleproto.PermissionQuery) {
	if e.opts.Config.PermissionMode == "deny" {
		e.send(&mumbleproto.PermissionDenied{
			DenyType:  proto.Uint32(denyPermission),
			ChannelID: m.ChannelID,
		})
		return
	}
	e.send(&mumbleproto.PermissionQuery{
		ChannelID:   m.ChannelID,
		Permissions: proto.Uint32(cannedPermissions),
	})
}

// handleACL returns a canned empty ACL for the queried channel.
func (e *Engine) handleACL(m *mumbleproto.ACL) {
	e.send(&mumbleproto.ACL{
		ChannelID:   m.ChannelID,
		InheritACLs: proto.Bool(true),
		Query:       proto.Bool(true),
	})
}

// handleChannelRemove replicates an externally authorized channel removal.
func (e *Engine) handleChannelRemove(m *mumbleproto.ChannelRemove) {
	if e.state != StateActive || m.ChannelID == nil {
		return
	}
	if !e.opts.Registry.RemoveChannel(*m.ChannelID) {
		return
	}
	e.opts.Router.Publish(router.Event{
		Msg:           &mumbleproto.ChannelRemove{ChannelID: m.ChannelID},
		Origin:        e.number,
		IncludeOrigin: true,
	})
}

func (e *Engine) handleTunnel(payload []byte) {
	if e.state != StateActive {
		return
	}
	pkt, err := voice.ParseIncoming(payload)
	if err != nil {
		e.logger.Trace().Err(err).Msg("malformed voice packet dropped")
		return
	}
	if !pkt.Codec.Known() {
		return
	}
	metrics.VoicePackets.Inc()

	out := voice.EncodeOutgoing(pkt.Codec, pkt.Target, e.number, pkt.Sequence, pkt.FrameBytes)
	e.opts.Router.PublishAudio(out, e.number)

	if e.opts.Voice != nil {
		e.opts.Voice.Ingest(e.number, pkt)
	}
}

// pump writes broadcast deliveries until the router closes the queue on
// unsubscribe.
func (e *Engine) pump() {
	defer close(e.pumpDone)
	for d := range e.queue {
		if d.Audio != nil {
			e.writer.WriteFrame(uint16(mumbleproto.TypeUDPTunnel), d.Audio)
			metrics.FramesOut.WithLabelValues(mumbleproto.TypeUDPTunnel.Name()).Inc()
			continue
		}
		if d.Msg != nil {
			e.send(d.Msg)
		}
	}
}

func (e *Engine) send(m mumbleproto.Message) {
	if err := e.writer.WriteFrame(uint16(m.Type()), mumbleproto.Marshal(m)); err != nil {
		e.logger.Debug().Err(err).Str("type", m.Type().Name()).Msg("write failed")
		return
	}
	e.logger.Trace().Str("type", m.Type().Name()).Msg("protocol-out")
	metrics.FramesOut.WithLabelValues(m.Type().Name()).Inc()
}

// teardown runs exactly once no matter how many paths race into it:
// announce departure, leave the broadcast group, drop the session, release
// voice state and close the transport.
func (e *Engine) teardown() {
	e.closeOnce.Do(func() {
		e.state = StateDisconnected

		if e.sessionID != "" {
			e.opts.Router.Publish(router.Event{
				Msg:    &mumbleproto.UserRemove{Session: proto.Uint32(e.number)},
				Origin: e.number,
			})
			e.opts.Router.Unsubscribe(e.number)
			<-e.pumpDone
			e.opts.Registry.Delete(e.sessionID)
			if e.opts.Voice != nil {
				e.opts.Voice.Release(e.number)
			}
			metrics.Sessions.Dec()
		}

		e.writer.Close()
		e.transport.Close()
		e.logger.Info().Msg("disconnect")
	})
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	rand.Read(b)
	return b
}
