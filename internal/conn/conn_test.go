package conn_test

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/protobuf/proto"

	"github.com/murmelhq/murmel/internal/config"
	"github.com/murmelhq/murmel/internal/conn"
	"github.com/murmelhq/murmel/internal/mumbleproto"
	"github.com/murmelhq/murmel/internal/router"
	"github.com/murmelhq/murmel/internal/session"
	"github.com/murmelhq/murmel/internal/store"
	"github.com/murmelhq/murmel/internal/wire"
)

type fixture struct {
	reg *session.Registry
	rt  *router.Router
	cfg *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := session.NewRegistry(store.NewMemory(), 1)
	root := uint32(0)
	if err := reg.SetChannels([]store.ChannelRecord{
		{ID: 0, Name: "Root"},
		{ID: 1, Parent: &root, Name: "Lobby"},
		{ID: 2, Parent: &root, Name: "Games"},
	}); err != nil {
		t.Fatalf("SetChannels: %v", err)
	}
	return &fixture{
		reg: reg,
		rt:  router.New(reg),
		cfg: &config.Config{
			WelcomeText:    "welcome",
			MaxUsers:       10,
			MaxBandwidth:   72000,
			MaxTextLength:  100,
			AllowHTML:      true,
			PermissionMode: "canned",
		},
	}
}

// client drives one side of a net.Pipe as a protocol peer.
type client struct {
	t       *testing.T
	conn    net.Conn
	dec     *wire.Decoder
	pending []wire.Frame
	done    chan struct{}
}

func (f *fixture) dial(t *testing.T) *client {
	t.Helper()
	clientSide, serverSide := net.Pipe()

	e := conn.New(serverSide, conn.Options{
		Registry: f.reg,
		Router:   f.rt,
		Config:   f.cfg,
		Remote:   "pipe",
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		clientSide.Close()
		<-done
	})

	return &client{t: t, conn: clientSide, dec: wire.NewDecoder(), done: done}
}

func (c *client) next() wire.Frame {
	c.t.Helper()
	if len(c.pending) > 0 {
		f := c.pending[0]
		c.pending = c.pending[1:]
		return f
	}

	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			c.t.Fatalf("read: %v", err)
		}
		frames, ferr := c.dec.Feed(buf[:n])
		if ferr != nil {
			c.t.Fatalf("feed: %v", ferr)
		}
		if len(frames) > 0 {
			c.pending = frames[1:]
			return frames[0]
		}
	}
}

func (c *client) expect(want mumbleproto.Type) mumbleproto.Message {
	c.t.Helper()
	f := c.next()
	if mumbleproto.Type(f.Type) != want {
		c.t.Fatalf("got %s frame, want %s", mumbleproto.Type(f.Type).Name(), want.Name())
	}
	m, err := mumbleproto.Unmarshal(mumbleproto.Type(f.Type), f.Payload)
	if err != nil {
		c.t.Fatalf("unmarshal %s: %v", want.Name(), err)
	}
	return m
}

func (c *client) send(m mumbleproto.Message) {
	c.t.Helper()
	c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := c.conn.Write(wire.Encode(uint16(m.Type()), mumbleproto.Marshal(m))); err != nil {
		c.t.Fatalf("write %s: %v", m.Type().Name(), err)
	}
}

// handshake authenticates and consumes the synchronization sequence,
// returning the assigned session number.
func (c *client) handshake(name string, existingUsers int) uint32 {
	c.t.Helper()
	c.expect(mumbleproto.TypeVersion)
	c.send(&mumbleproto.Authenticate{Username: proto.String(name)})

	c.expect(mumbleproto.TypeCryptSetup)
	c.expect(mumbleproto.TypeCodecVersion)
	for i := 0; i < 3; i++ {
		c.expect(mumbleproto.TypeChannelState)
	}
	c.expect(mumbleproto.TypePermissionQuery)

	var own uint32
	for i := 0; i < existingUsers+1; i++ {
		st := c.expect(mumbleproto.TypeUserState).(*mumbleproto.UserState)
		if st.Session != nil {
			own = *st.Session
		}
	}

	sync := c.expect(mumbleproto.TypeServerSync).(*mumbleproto.ServerSync)
	if sync.Session == nil || *sync.Session != own {
		c.t.Fatalf("ServerSync session mismatch: %+v, own %d", sync, own)
	}
	c.expect(mumbleproto.TypeServerConfig)
	c.expect(mumbleproto.TypeSuggestConfig)
	return own
}

func TestHandshakeSequence(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)

	c.expect(mumbleproto.TypeVersion)
	c.send(&mumbleproto.Authenticate{Username: proto.String("alice")})

	c.expect(mumbleproto.TypeCryptSetup)
	cv := c.expect(mumbleproto.TypeCodecVersion).(*mumbleproto.CodecVersion)
	if cv.Opus == nil || !*cv.Opus {
		t.Fatalf("CodecVersion does not advertise opus: %+v", cv)
	}

	seen := map[uint32]bool{}
	for i := 0; i < 3; i++ {
		cs := c.expect(mumbleproto.TypeChannelState).(*mumbleproto.ChannelState)
		seen[*cs.ChannelID] = true
	}
	for id := uint32(0); id < 3; id++ {
		if !seen[id] {
			t.Fatalf("channel %d missing from sync: %v", id, seen)
		}
	}

	c.expect(mumbleproto.TypePermissionQuery)

	st := c.expect(mumbleproto.TypeUserState).(*mumbleproto.UserState)
	if st.Name == nil || *st.Name != "alice" {
		t.Fatalf("own UserState mismatch: %+v", st)
	}

	sync := c.expect(mumbleproto.TypeServerSync).(*mumbleproto.ServerSync)
	if *sync.Session != *st.Session {
		t.Fatalf("ServerSync session %d, UserState session %d", *sync.Session, *st.Session)
	}
	if sync.WelcomeText == nil || *sync.WelcomeText != "welcome" {
		t.Fatalf("welcome text missing: %+v", sync)
	}

	sc := c.expect(mumbleproto.TypeServerConfig).(*mumbleproto.ServerConfig)
	if sc.MessageLength == nil || *sc.MessageLength != 100 {
		t.Fatalf("ServerConfig limits wrong: %+v", sc)
	}
	c.expect(mumbleproto.TypeSuggestConfig)
}

func TestPingEcho(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)
	c.handshake("alice", 0)

	c.send(&mumbleproto.Ping{Timestamp: proto.Uint64(424242)})
	pong := c.expect(mumbleproto.TypePing).(*mumbleproto.Ping)
	if pong.Timestamp == nil || *pong.Timestamp != 424242 {
		t.Fatalf("ping timestamp not echoed: %+v", pong)
	}
}

func TestRejectEmptyUsername(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)

	c.expect(mumbleproto.TypeVersion)
	c.send(&mumbleproto.Authenticate{})

	rej := c.expect(mumbleproto.TypeReject).(*mumbleproto.Reject)
	if rej.RejectType == nil || *rej.RejectType != 2 {
		t.Fatalf("reject type = %+v, want InvalidUsername", rej)
	}
}

func TestTextMessageBetweenClients(t *testing.T) {
	f := newFixture(t)

	alice := f.dial(t)
	alice.handshake("alice", 0)

	bob := f.dial(t)
	bob.handshake("bob", 1)

	// Alice sees bob join.
	joined := alice.expect(mumbleproto.TypeUserState).(*mumbleproto.UserState)
	if joined.Name == nil || *joined.Name != "bob" {
		t.Fatalf("join broadcast mismatch: %+v", joined)
	}

	bob.send(&mumbleproto.TextMessage{
		ChannelID: []uint32{0},
		Message:   proto.String("hello"),
	})

	msg := alice.expect(mumbleproto.TypeTextMessage).(*mumbleproto.TextMessage)
	if msg.Message == nil || *msg.Message != "hello" {
		t.Fatalf("text message body mismatch: %+v", msg)
	}
	if msg.Actor == nil || *msg.Actor != *joined.Session {
		t.Fatalf("actor not set to sender: %+v", msg)
	}
}

func TestOverlongTextMessageDenied(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)
	c.handshake("alice", 0)

	long := make([]byte, 101)
	for i := range long {
		long[i] = 'x'
	}
	c.send(&mumbleproto.TextMessage{
		ChannelID: []uint32{0},
		Message:   proto.String(string(long)),
	})

	den := c.expect(mumbleproto.TypePermissionDenied).(*mumbleproto.PermissionDenied)
	if den.DenyType == nil || *den.DenyType != 4 {
		t.Fatalf("deny type = %+v, want TextTooLong", den)
	}
}

func TestUserStateDiffBroadcast(t *testing.T) {
	f := newFixture(t)

	alice := f.dial(t)
	alice.handshake("alice", 0)

	bob := f.dial(t)
	bobSession := bob.handshake("bob", 1)
	alice.expect(mumbleproto.TypeUserState) // bob joined

	bob.send(&mumbleproto.UserState{SelfMute: proto.Bool(true)})

	diff := alice.expect(mumbleproto.TypeUserState).(*mumbleproto.UserState)
	if diff.Session == nil || *diff.Session != bobSession {
		t.Fatalf("diff session mismatch: %+v", diff)
	}
	if diff.SelfMute == nil || !*diff.SelfMute {
		t.Fatalf("changed field missing: %+v", diff)
	}
	if diff.SelfDeaf != nil || diff.Name != nil {
		t.Fatalf("unchanged fields leaked into diff: %+v", diff)
	}
}

func TestJoinDuringPeerSynchronizationIsDelivered(t *testing.T) {
	f := newFixture(t)

	// Drive alice only as far as PermissionQuery. The pipe is unbuffered,
	// so her engine is now parked writing the user-list snapshot, having
	// already joined the broadcast group.
	alice := f.dial(t)
	alice.expect(mumbleproto.TypeVersion)
	alice.send(&mumbleproto.Authenticate{Username: proto.String("alice")})
	alice.expect(mumbleproto.TypeCryptSetup)
	alice.expect(mumbleproto.TypeCodecVersion)
	for i := 0; i < 3; i++ {
		alice.expect(mumbleproto.TypeChannelState)
	}
	alice.expect(mumbleproto.TypePermissionQuery)

	// Bob authenticates completely while alice is still synchronizing. His
	// join broadcast must land on alice's queue even though her snapshot
	// was taken before he existed.
	bob := f.dial(t)
	bobSession := bob.handshake("bob", 1)

	// Alice resumes reading. The queued join contends with the rest of her
	// synchronization sequence on the writer, so its position is
	// unspecified; only its delivery is.
	var ownSeen, bobSeen, syncSeen, configSeen, suggestSeen bool
	for !ownSeen || !bobSeen || !syncSeen || !configSeen || !suggestSeen {
		fr := alice.next()
		switch mumbleproto.Type(fr.Type) {
		case mumbleproto.TypeUserState:
			m, err := mumbleproto.Unmarshal(mumbleproto.TypeUserState, fr.Payload)
			if err != nil {
				t.Fatalf("unmarshal UserState: %v", err)
			}
			st := m.(*mumbleproto.UserState)
			switch {
			case st.Name != nil && *st.Name == "alice":
				ownSeen = true
			case st.Session != nil && *st.Session == bobSession:
				bobSeen = true
			default:
				t.Fatalf("unexpected UserState: %+v", st)
			}
		case mumbleproto.TypeServerSync:
			syncSeen = true
		case mumbleproto.TypeServerConfig:
			configSeen = true
		case mumbleproto.TypeSuggestConfig:
			suggestSeen = true
		default:
			t.Fatalf("unexpected %s frame during synchronization", mumbleproto.Type(fr.Type).Name())
		}
	}
}

func TestPermissionQueryCannedReply(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)
	c.handshake("alice", 0)

	c.send(&mumbleproto.PermissionQuery{ChannelID: proto.Uint32(1)})
	pq := c.expect(mumbleproto.TypePermissionQuery).(*mumbleproto.PermissionQuery)
	if pq.ChannelID == nil || *pq.ChannelID != 1 {
		t.Fatalf("channel not echoed: %+v", pq)
	}
	if pq.Permissions == nil || *pq.Permissions == 0 {
		t.Fatalf("canned permissions missing: %+v", pq)
	}
}

func TestVoiceTunnelRelay(t *testing.T) {
	f := newFixture(t)

	alice := f.dial(t)
	alice.handshake("alice", 0)

	bob := f.dial(t)
	bobSession := bob.handshake("bob", 1)
	alice.expect(mumbleproto.TypeUserState) // bob joined

	// Opus packet: header 0x80, sequence 1, 2-byte frame.
	bob.send(&mumbleproto.UDPTunnel{Data: []byte{0x80, 0x01, 0x02, 0xAA, 0xBB}})

	frame := alice.next()
	if mumbleproto.Type(frame.Type) != mumbleproto.TypeUDPTunnel {
		t.Fatalf("got %s frame, want UDPTunnel", mumbleproto.Type(frame.Type).Name())
	}
	// Relayed payload gains the speaker's session after the header byte.
	want := []byte{0x80, byte(bobSession), 0x01, 0x02, 0xAA, 0xBB}
	if string(frame.Payload) != string(want) {
		t.Fatalf("relayed payload = %x, want %x", frame.Payload, want)
	}
}

func TestDisconnectBroadcastsUserRemove(t *testing.T) {
	f := newFixture(t)

	alice := f.dial(t)
	alice.handshake("alice", 0)

	bob := f.dial(t)
	bobSession := bob.handshake("bob", 1)
	alice.expect(mumbleproto.TypeUserState) // bob joined

	bob.conn.Close()
	<-bob.done

	rm := alice.expect(mumbleproto.TypeUserRemove).(*mumbleproto.UserRemove)
	if rm.Session == nil || *rm.Session != bobSession {
		t.Fatalf("UserRemove session mismatch: %+v", rm)
	}
	if _, ok := f.reg.GetByNumber(bobSession); ok {
		t.Fatalf("session survived disconnect")
	}
}
