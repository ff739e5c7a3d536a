package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/murmelhq/murmel/internal/mumbleproto"
	"github.com/murmelhq/murmel/internal/store"
)

const (
	// SystemSession is the reserved protocol session number of the server's
	// built-in pseudo-user. Real sessions never collide with it.
	SystemSession uint32 = 10

	// firstSession seeds the session number counter above every reserved
	// value. Numbers are never reused within a process lifetime, so a stale
	// number in an in-flight broadcast can't resolve to a newer session.
	firstSession uint32 = 100
)

// ErrBadChannelTree is returned when the loaded channel set is not a tree.
var ErrBadChannelTree = errors.New("session: channel set is not a tree")

// Attrs are the caller-supplied fields for a new session.
type Attrs struct {
	Name      string
	Hash      string
	ChannelID uint32
}

// Registry is the single point of truth for connected sessions and the
// channel tree. All mutations are atomic with respect to reads: the routing
// index never disagrees with a session's ChannelID.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]*Session
	byNumber map[uint32]*Session
	routing  map[uint32]uint32 // session number -> channel id
	channels map[uint32]*Channel
	next     uint32

	users    store.UserStore
	serverID int
}

// NewRegistry builds a registry backed by the given registered-user store.
// It seeds the reserved system pseudo-session.
func NewRegistry(users store.UserStore, serverID int) *Registry {
	r := &Registry{
		byID:     make(map[string]*Session),
		byNumber: make(map[uint32]*Session),
		routing:  make(map[uint32]uint32),
		channels: make(map[uint32]*Channel),
		next:     firstSession,
		users:    users,
		serverID: serverID,
	}

	sys := &Session{ID: "system", Number: SystemSession, Name: "system"}
	r.byID[sys.ID] = sys
	r.byNumber[sys.Number] = sys
	r.routing[sys.Number] = sys.ChannelID
	return r
}

// SetChannels loads the channel tree, validating that it actually is one:
// a single root, every parent present, no cycles. An empty record set
// degrades to a synthetic root so the server can still accept users.
func (r *Registry) SetChannels(recs []store.ChannelRecord) error {
	chans := make(map[uint32]*Channel, len(recs))
	for _, rec := range recs {
		chans[rec.ID] = &Channel{
			ID:          rec.ID,
			Parent:      rec.Parent,
			Name:        rec.Name,
			Description: rec.Description,
			Position:    rec.Position,
		}
	}
	if len(chans) == 0 {
		chans[0] = &Channel{ID: 0, Name: "Root"}
	}

	roots := 0
	for _, c := range chans {
		if c.Parent == nil {
			roots++
			continue
		}
		if _, ok := chans[*c.Parent]; !ok {
			return fmt.Errorf("%w: channel %d has unknown parent %d", ErrBadChannelTree, c.ID, *c.Parent)
		}
	}
	if roots != 1 {
		return fmt.Errorf("%w: %d roots", ErrBadChannelTree, roots)
	}
	for _, c := range chans {
		steps := 0
		for cur := c; cur.Parent != nil; cur = chans[*cur.Parent] {
			steps++
			if steps > len(chans) {
				return fmt.Errorf("%w: cycle through channel %d", ErrBadChannelTree, c.ID)
			}
		}
	}

	r.mu.Lock()
	r.channels = chans
	r.mu.Unlock()
	return nil
}

// AddUser resolves the fingerprint against the registered-user store,
// creates the session and registers it in the routing index. Store failures
// degrade to an unregistered guest profile instead of rejecting the user.
func (r *Registry) AddUser(ctx context.Context, attrs Attrs) (string, error) {
	s := &Session{
		ID:   uuid.NewString(),
		Name: attrs.Name,
		Hash: attrs.Hash,
	}

	if attrs.Hash != "" {
		reg, err := r.users.FindByHash(ctx, r.serverID, attrs.Hash)
		switch {
		case err == nil:
			s.UserID = &reg.UserID
			s.ChannelID = reg.LastChannel
			s.Comment = reg.Comment
		case errors.Is(err, store.ErrNotFound):
			// guest
		default:
			log.Warn().Err(err).Str("module", "session").
				Str("hash", attrs.Hash).Msg("identity lookup failed, continuing as guest")
		}
	}

	// Caller-supplied channel wins over the stored last channel.
	if attrs.ChannelID != 0 || s.ChannelID == 0 {
		s.ChannelID = attrs.ChannelID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.channels[s.ChannelID]; !ok {
		s.ChannelID = r.rootLocked()
	}

	s.Number = r.next
	r.next++

	r.byID[s.ID] = s
	r.byNumber[s.Number] = s
	r.routing[s.Number] = s.ChannelID

	log.Info().Str("module", "session").Str("id", s.ID).
		Uint32("session", s.Number).Str("name", s.Name).
		Uint32("channel", s.ChannelID).Bool("registered", s.UserID != nil).
		Msg("session created")
	return s.ID, nil
}

func (r *Registry) rootLocked() uint32 {
	for _, c := range r.channels {
		if c.Parent == nil {
			return c.ID
		}
	}
	return 0
}

// Get returns a snapshot of the session, or false for unknown ids. Absence
// is a checkable state, not an error.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// GetByNumber returns a snapshot by protocol session number.
func (r *Registry) GetByNumber(n uint32) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byNumber[n]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Apply merges the recognized fields of a partial UserState into the
// session and returns a UserState holding only the fields that actually
// changed. Unknown or unchanged fields are dropped; a channel move to a
// nonexistent channel is rejected and dropped from the diff.
func (r *Registry) Apply(id string, in *mumbleproto.UserState) (*mumbleproto.UserState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return nil, false
	}

	diff := &mumbleproto.UserState{}

	applyBool := func(in *bool, cur *bool, out **bool) {
		if in != nil && *in != *cur {
			*cur = *in
			*out = in
		}
	}
	applyBool(in.Deaf, &s.Deaf, &diff.Deaf)
	applyBool(in.Mute, &s.Mute, &diff.Mute)
	applyBool(in.SelfDeaf, &s.SelfDeaf, &diff.SelfDeaf)
	applyBool(in.SelfMute, &s.SelfMute, &diff.SelfMute)
	applyBool(in.Suppress, &s.Suppress, &diff.Suppress)
	applyBool(in.Recording, &s.Recording, &diff.Recording)
	applyBool(in.PrioritySpeaker, &s.PrioritySpeaker, &diff.PrioritySpeaker)

	if in.PluginIdentity != nil && *in.PluginIdentity != s.PluginIdentity {
		s.PluginIdentity = *in.PluginIdentity
		diff.PluginIdentity = in.PluginIdentity
	}
	if in.PluginContext != nil && string(in.PluginContext) != string(s.PluginContext) {
		s.PluginContext = in.PluginContext
		diff.PluginContext = in.PluginContext
	}
	if in.Comment != nil && *in.Comment != s.Comment {
		s.Comment = *in.Comment
		diff.Comment = in.Comment
	}
	if in.ChannelID != nil && *in.ChannelID != s.ChannelID {
		if _, exists := r.channels[*in.ChannelID]; exists {
			s.ChannelID = *in.ChannelID
			r.routing[s.Number] = s.ChannelID
			diff.ChannelID = in.ChannelID
		} else {
			log.Info().Str("module", "session").Uint32("session", s.Number).
				Uint32("channel", *in.ChannelID).Msg("move to unknown channel rejected")
		}
	}

	return diff, true
}

// Delete removes the session and retires its routing entry. Calling it on
// an already-removed id is a no-op.
func (r *Registry) Delete(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return Session{}, false
	}
	delete(r.byID, id)
	delete(r.byNumber, s.Number)
	delete(r.routing, s.Number)

	log.Info().Str("module", "session").Str("id", id).
		Uint32("session", s.Number).Msg("session removed")
	return *s, true
}

// ChannelOf resolves a session number to its channel through the routing
// index. The voice path uses this instead of the session table so a
// mid-flight channel move can't tear a packet's filter decision.
func (r *Registry) ChannelOf(number uint32) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.routing[number]
	return ch, ok
}

// Sessions returns snapshots of every live session, ordered by number.
func (r *Registry) Sessions() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0, len(r.byNumber))
	for _, s := range r.byNumber {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Count reports the number of live sessions, the system seat included.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byNumber)
}

// Channels returns the channel tree ordered by id.
func (r *Registry) Channels() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Channel, 0, len(r.channels))
	for _, c := range r.channels {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Channel returns one channel by id.
func (r *Registry) Channel(id uint32) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.channels[id]
	if !ok {
		return Channel{}, false
	}
	return *c, true
}

// RemoveChannel drops a channel after an external removal event and moves
// its occupants to the root. The root itself cannot be removed.
func (r *Registry) RemoveChannel(id uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.channels[id]
	if !ok || c.Parent == nil {
		return false
	}
	delete(r.channels, id)

	root := r.rootLocked()
	for _, s := range r.byNumber {
		if s.ChannelID == id {
			s.ChannelID = root
			r.routing[s.Number] = root
		}
	}
	return true
}
