// Package session holds the authoritative in-memory table of connected
// users, the channel tree, and the routing index the voice path reads.
package session

import (
	"github.com/murmelhq/murmel/internal/mumbleproto"
	"google.golang.org/protobuf/proto"
)

// Session is one authenticated, connected client and its presence state.
// The string ID is server-local; Number is the protocol-visible session id.
type Session struct {
	ID     string
	Number uint32

	Name   string
	UserID *uint32 // registered user id, nil for guests
	Hash   string  // certificate fingerprint

	ChannelID uint32

	Deaf            bool
	Mute            bool
	SelfDeaf        bool
	SelfMute        bool
	Suppress        bool
	Recording       bool
	PrioritySpeaker bool

	PluginIdentity string
	PluginContext  []byte
	Comment        string
	CommentHash    []byte
	TextureHash    []byte
	Texture        []byte
}

// State renders the session's full presence as a UserState message, used
// during synchronization.
func (s *Session) State() *mumbleproto.UserState {
	st := &mumbleproto.UserState{
		Session:         proto.Uint32(s.Number),
		Name:            proto.String(s.Name),
		ChannelID:       proto.Uint32(s.ChannelID),
		Deaf:            proto.Bool(s.Deaf),
		Mute:            proto.Bool(s.Mute),
		SelfDeaf:        proto.Bool(s.SelfDeaf),
		SelfMute:        proto.Bool(s.SelfMute),
		Suppress:        proto.Bool(s.Suppress),
		Recording:       proto.Bool(s.Recording),
		PrioritySpeaker: proto.Bool(s.PrioritySpeaker),
	}
	if s.UserID != nil {
		st.UserID = proto.Uint32(*s.UserID)
	}
	if s.Hash != "" {
		st.Hash = proto.String(s.Hash)
	}
	if s.Comment != "" {
		st.Comment = proto.String(s.Comment)
	}
	if s.PluginIdentity != "" {
		st.PluginIdentity = proto.String(s.PluginIdentity)
	}
	if len(s.PluginContext) > 0 {
		st.PluginContext = append([]byte(nil), s.PluginContext...)
	}
	return st
}

// Channel is one node of the server's room tree.
type Channel struct {
	ID          uint32
	Parent      *uint32 // nil only for the root
	Name        string
	Description string
	Position    int32
	Temporary   bool
}

// State renders the channel as a ChannelState message.
func (c *Channel) State() *mumbleproto.ChannelState {
	st := &mumbleproto.ChannelState{
		ChannelID: proto.Uint32(c.ID),
		Name:      proto.String(c.Name),
		Position:  proto.Int32(c.Position),
		Temporary: proto.Bool(c.Temporary),
	}
	if c.Parent != nil {
		st.Parent = proto.Uint32(*c.Parent)
	}
	if c.Description != "" {
		st.Description = proto.String(c.Description)
	}
	return st
}
