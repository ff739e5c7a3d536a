package mumbleproto

// Message structs for the fixed protocol vocabulary. Optional fields are
// pointers; nil marks the field absent on the wire. Unknown fields inside a
// known message are skipped on decode.

// Version announces protocol and software versions. Always the first
// message the server sends.
type Version struct {
	Version   *uint32
	Release   *string
	OS        *string
	OSVersion *string
}

func (*Version) Type() Type { return TypeVersion }

func (m *Version) marshal(b []byte) []byte {
	b = appendUint32Opt(b, 1, m.Version)
	b = appendStringOpt(b, 2, m.Release)
	b = appendStringOpt(b, 3, m.OS)
	b = appendStringOpt(b, 4, m.OSVersion)
	return b
}

func (m *Version) unmarshal(b []byte) error {
	d := &decodeState{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			return d.err
		}
		switch num {
		case 1:
			m.Version = d.uint32v()
		case 2:
			m.Release = d.stringv()
		case 3:
			m.OS = d.stringv()
		case 4:
			m.OSVersion = d.stringv()
		default:
			d.skip(num, typ)
		}
	}
}

// UDPTunnel carries a raw voice packet inside the control stream. The
// payload is not protobuf encoded; the registry passes it through untouched.
type UDPTunnel struct {
	Data []byte
}

func (*UDPTunnel) Type() Type { return TypeUDPTunnel }

func (m *UDPTunnel) marshal(b []byte) []byte {
	return append(b, m.Data...)
}

func (m *UDPTunnel) unmarshal(b []byte) error {
	m.Data = append([]byte(nil), b...)
	return nil
}

// Authenticate is the client's login request.
type Authenticate struct {
	Username     *string
	Password     *string
	Tokens       []string
	CeltVersions []int32
	Opus         *bool
}

func (*Authenticate) Type() Type { return TypeAuthenticate }

func (m *Authenticate) marshal(b []byte) []byte {
	b = appendStringOpt(b, 1, m.Username)
	b = appendStringOpt(b, 2, m.Password)
	b = appendStringRep(b, 3, m.Tokens)
	b = appendInt32Rep(b, 4, m.CeltVersions)
	b = appendBoolOpt(b, 5, m.Opus)
	return b
}

func (m *Authenticate) unmarshal(b []byte) error {
	d := &decodeState{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			return d.err
		}
		switch num {
		case 1:
			m.Username = d.stringv()
		case 2:
			m.Password = d.stringv()
		case 3:
			if s := d.stringv(); s != nil {
				m.Tokens = append(m.Tokens, *s)
			}
		case 4:
			m.CeltVersions = d.repInt32(m.CeltVersions, typ)
		case 5:
			m.Opus = d.boolv()
		default:
			d.skip(num, typ)
		}
	}
}

// Ping is echoed by the server with the client's timestamp.
type Ping struct {
	Timestamp  *uint64
	Good       *uint32
	Late       *uint32
	Lost       *uint32
	Resync     *uint32
	UDPPackets *uint32
	TCPPackets *uint32
	UDPPingAvg *float32
	UDPPingVar *float32
	TCPPingAvg *float32
	TCPPingVar *float32
}

func (*Ping) Type() Type { return TypePing }

func (m *Ping) marshal(b []byte) []byte {
	b = appendUint64Opt(b, 1, m.Timestamp)
	b = appendUint32Opt(b, 2, m.Good)
	b = appendUint32Opt(b, 3, m.Late)
	b = appendUint32Opt(b, 4, m.Lost)
	b = appendUint32Opt(b, 5, m.Resync)
	b = appendUint32Opt(b, 6, m.UDPPackets)
	b = appendUint32Opt(b, 7, m.TCPPackets)
	b = appendFloatOpt(b, 8, m.UDPPingAvg)
	b = appendFloatOpt(b, 9, m.UDPPingVar)
	b = appendFloatOpt(b, 10, m.TCPPingAvg)
	b = appendFloatOpt(b, 11, m.TCPPingVar)
	return b
}

func (m *Ping) unmarshal(b []byte) error {
	d := &decodeState{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			return d.err
		}
		switch num {
		case 1:
			m.Timestamp = d.uint64v()
		case 2:
			m.Good = d.uint32v()
		case 3:
			m.Late = d.uint32v()
		case 4:
			m.Lost = d.uint32v()
		case 5:
			m.Resync = d.uint32v()
		case 6:
			m.UDPPackets = d.uint32v()
		case 7:
			m.TCPPackets = d.uint32v()
		case 8:
			m.UDPPingAvg = d.floatv()
		case 9:
			m.UDPPingVar = d.floatv()
		case 10:
			m.TCPPingAvg = d.floatv()
		case 11:
			m.TCPPingVar = d.floatv()
		default:
			d.skip(num, typ)
		}
	}
}

// Reject refuses a connection during authentication.
type Reject struct {
	RejectType *uint32
	Reason     *string
}

func (*Reject) Type() Type { return TypeReject }

func (m *Reject) marshal(b []byte) []byte {
	b = appendUint32Opt(b, 1, m.RejectType)
	b = appendStringOpt(b, 2, m.Reason)
	return b
}

func (m *Reject) unmarshal(b []byte) error {
	d := &decodeState{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			return d.err
		}
		switch num {
		case 1:
			m.RejectType = d.uint32v()
		case 2:
			m.Reason = d.stringv()
		default:
			d.skip(num, typ)
		}
	}
}

// ServerSync completes synchronization and tells the client its session.
type ServerSync struct {
	Session      *uint32
	MaxBandwidth *uint32
	WelcomeText  *string
	Permissions  *uint64
}

func (*ServerSync) Type() Type { return TypeServerSync }

func (m *ServerSync) marshal(b []byte) []byte {
	b = appendUint32Opt(b, 1, m.Session)
	b = appendUint32Opt(b, 2, m.MaxBandwidth)
	b = appendStringOpt(b, 3, m.WelcomeText)
	b = appendUint64Opt(b, 4, m.Permissions)
	return b
}

func (m *ServerSync) unmarshal(b []byte) error {
	d := &decodeState{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			return d.err
		}
		switch num {
		case 1:
			m.Session = d.uint32v()
		case 2:
			m.MaxBandwidth = d.uint32v()
		case 3:
			m.WelcomeText = d.stringv()
		case 4:
			m.Permissions = d.uint64v()
		default:
			d.skip(num, typ)
		}
	}
}

// ChannelRemove announces channel deletion. Deletion authority is external;
// the server only replicates the event.
type ChannelRemove struct {
	ChannelID *uint32
}

func (*ChannelRemove) Type() Type { return TypeChannelRemove }

func (m *ChannelRemove) marshal(b []byte) []byte {
	return appendUint32Opt(b, 1, m.ChannelID)
}

func (m *ChannelRemove) unmarshal(b []byte) error {
	d := &decodeState{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			return d.err
		}
		if num == 1 {
			m.ChannelID = d.uint32v()
		} else {
			d.skip(num, typ)
		}
	}
}

// ChannelState replicates one node of the channel tree.
type ChannelState struct {
	ChannelID       *uint32
	Parent          *uint32
	Name            *string
	Links           []uint32
	Description     *string
	LinksAdd        []uint32
	LinksRemove     []uint32
	Temporary       *bool
	Position        *int32
	DescriptionHash []byte
	MaxUsers        *uint32
}

func (*ChannelState) Type() Type { return TypeChannelState }

func (m *ChannelState) marshal(b []byte) []byte {
	b = appendUint32Opt(b, 1, m.ChannelID)
	b = appendUint32Opt(b, 2, m.Parent)
	b = appendStringOpt(b, 3, m.Name)
	b = appendUint32Rep(b, 4, m.Links)
	b = appendStringOpt(b, 5, m.Description)
	b = appendUint32Rep(b, 6, m.LinksAdd)
	b = appendUint32Rep(b, 7, m.LinksRemove)
	b = appendBoolOpt(b, 8, m.Temporary)
	b = appendInt32Opt(b, 9, m.Position)
	b = appendBytesField(b, 10, m.DescriptionHash)
	b = appendUint32Opt(b, 11, m.MaxUsers)
	return b
}

func (m *ChannelState) unmarshal(b []byte) error {
	d := &decodeState{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			return d.err
		}
		switch num {
		case 1:
			m.ChannelID = d.uint32v()
		case 2:
			m.Parent = d.uint32v()
		case 3:
			m.Name = d.stringv()
		case 4:
			m.Links = d.repUint32(m.Links, typ)
		case 5:
			m.Description = d.stringv()
		case 6:
			m.LinksAdd = d.repUint32(m.LinksAdd, typ)
		case 7:
			m.LinksRemove = d.repUint32(m.LinksRemove, typ)
		case 8:
			m.Temporary = d.boolv()
		case 9:
			m.Position = d.int32v()
		case 10:
			m.DescriptionHash = d.bytesv()
		case 11:
			m.MaxUsers = d.uint32v()
		default:
			d.skip(num, typ)
		}
	}
}

// UserRemove announces a departed session to everyone remaining.
type UserRemove struct {
	Session *uint32
	Actor   *uint32
	Reason  *string
	Ban     *bool
}

func (*UserRemove) Type() Type { return TypeUserRemove }

func (m *UserRemove) marshal(b []byte) []byte {
	b = appendUint32Opt(b, 1, m.Session)
	b = appendUint32Opt(b, 2, m.Actor)
	b = appendStringOpt(b, 3, m.Reason)
	b = appendBoolOpt(b, 4, m.Ban)
	return b
}

func (m *UserRemove) unmarshal(b []byte) error {
	d := &decodeState{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			return d.err
		}
		switch num {
		case 1:
			m.Session = d.uint32v()
		case 2:
			m.Actor = d.uint32v()
		case 3:
			m.Reason = d.stringv()
		case 4:
			m.Ban = d.boolv()
		default:
			d.skip(num, typ)
		}
	}
}

// UserState carries full or partial presence state. Partial updates set
// only the changed fields; the rest stay nil.
type UserState struct {
	Session         *uint32
	Actor           *uint32
	Name            *string
	UserID          *uint32
	ChannelID       *uint32
	Mute            *bool
	Deaf            *bool
	Suppress        *bool
	SelfMute        *bool
	SelfDeaf        *bool
	Texture         []byte
	PluginContext   []byte
	PluginIdentity  *string
	Comment         *string
	Hash            *string
	CommentHash     []byte
	TextureHash     []byte
	PrioritySpeaker *bool
	Recording       *bool
}

func (*UserState) Type() Type { return TypeUserState }

func (m *UserState) marshal(b []byte) []byte {
	b = appendUint32Opt(b, 1, m.Session)
	b = appendUint32Opt(b, 2, m.Actor)
	b = appendStringOpt(b, 3, m.Name)
	b = appendUint32Opt(b, 4, m.UserID)
	b = appendUint32Opt(b, 5, m.ChannelID)
	b = appendBoolOpt(b, 6, m.Mute)
	b = appendBoolOpt(b, 7, m.Deaf)
	b = appendBoolOpt(b, 8, m.Suppress)
	b = appendBoolOpt(b, 9, m.SelfMute)
	b = appendBoolOpt(b, 10, m.SelfDeaf)
	b = appendBytesField(b, 11, m.Texture)
	b = appendBytesField(b, 12, m.PluginContext)
	b = appendStringOpt(b, 13, m.PluginIdentity)
	b = appendStringOpt(b, 14, m.Comment)
	b = appendStringOpt(b, 15, m.Hash)
	b = appendBytesField(b, 16, m.CommentHash)
	b = appendBytesField(b, 17, m.TextureHash)
	b = appendBoolOpt(b, 18, m.PrioritySpeaker)
	b = appendBoolOpt(b, 19, m.Recording)
	return b
}

func (m *UserState) unmarshal(b []byte) error {
	d := &decodeState{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			return d.err
		}
		switch num {
		case 1:
			m.Session = d.uint32v()
		case 2:
			m.Actor = d.uint32v()
		case 3:
			m.Name = d.stringv()
		case 4:
			m.UserID = d.uint32v()
		case 5:
			m.ChannelID = d.uint32v()
		case 6:
			m.Mute = d.boolv()
		case 7:
			m.Deaf = d.boolv()
		case 8:
			m.Suppress = d.boolv()
		case 9:
			m.SelfMute = d.boolv()
		case 10:
			m.SelfDeaf = d.boolv()
		case 11:
			m.Texture = d.bytesv()
		case 12:
			m.PluginContext = d.bytesv()
		case 13:
			m.PluginIdentity = d.stringv()
		case 14:
			m.Comment = d.stringv()
		case 15:
			m.Hash = d.stringv()
		case 16:
			m.CommentHash = d.bytesv()
		case 17:
			m.TextureHash = d.bytesv()
		case 18:
			m.PrioritySpeaker = d.boolv()
		case 19:
			m.Recording = d.boolv()
		default:
			d.skip(num, typ)
		}
	}
}

// BanList is recorded and forwarded only; the server keeps no ban state.
type BanList struct {
	Query *bool
}

func (*BanList) Type() Type { return TypeBanList }

func (m *BanList) marshal(b []byte) []byte {
	return appendBoolOpt(b, 2, m.Query)
}

func (m *BanList) unmarshal(b []byte) error {
	d := &decodeState{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			return d.err
		}
		if num == 2 {
			m.Query = d.boolv()
		} else {
			d.skip(num, typ)
		}
	}
}

// TextMessage is a chat message addressed to sessions, channels or subtrees.
type TextMessage struct {
	Actor     *uint32
	Session   []uint32
	ChannelID []uint32
	TreeID    []uint32
	Message   *string
}

func (*TextMessage) Type() Type { return TypeTextMessage }

func (m *TextMessage) marshal(b []byte) []byte {
	b = appendUint32Opt(b, 1, m.Actor)
	b = appendUint32Rep(b, 2, m.Session)
	b = appendUint32Rep(b, 3, m.ChannelID)
	b = appendUint32Rep(b, 4, m.TreeID)
	b = appendStringOpt(b, 5, m.Message)
	return b
}

func (m *TextMessage) unmarshal(b []byte) error {
	d := &decodeState{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			return d.err
		}
		switch num {
		case 1:
			m.Actor = d.uint32v()
		case 2:
			m.Session = d.repUint32(m.Session, typ)
		case 3:
			m.ChannelID = d.repUint32(m.ChannelID, typ)
		case 4:
			m.TreeID = d.repUint32(m.TreeID, typ)
		case 5:
			m.Message = d.stringv()
		default:
			d.skip(num, typ)
		}
	}
}

// PermissionDenied reports a refused operation.
type PermissionDenied struct {
	Permission *uint32
	ChannelID  *uint32
	Session    *uint32
	Reason     *string
	DenyType   *uint32
	Name       *string
}

func (*PermissionDenied) Type() Type { return TypePermissionDenied }

func (m *PermissionDenied) marshal(b []byte) []byte {
	b = appendUint32Opt(b, 1, m.Permission)
	b = appendUint32Opt(b, 2, m.ChannelID)
	b = appendUint32Opt(b, 3, m.Session)
	b = appendStringOpt(b, 4, m.Reason)
	b = appendUint32Opt(b, 5, m.DenyType)
	b = appendStringOpt(b, 6, m.Name)
	return b
}

func (m *PermissionDenied) unmarshal(b []byte) error {
	d := &decodeState{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			return d.err
		}
		switch num {
		case 1:
			m.Permission = d.uint32v()
		case 2:
			m.ChannelID = d.uint32v()
		case 3:
			m.Session = d.uint32v()
		case 4:
			m.Reason = d.stringv()
		case 5:
			m.DenyType = d.uint32v()
		case 6:
			m.Name = d.stringv()
		default:
			d.skip(num, typ)
		}
	}
}

// ACL queries are answered with canned data; group and entry lists are
// skipped on decode.
type ACL struct {
	ChannelID   *uint32
	InheritACLs *bool
	Query       *bool
}

func (*ACL) Type() Type { return TypeACL }

func (m *ACL) marshal(b []byte) []byte {
	b = appendUint32Opt(b, 1, m.ChannelID)
	b = appendBoolOpt(b, 4, m.InheritACLs)
	b = appendBoolOpt(b, 5, m.Query)
	return b
}

func (m *ACL) unmarshal(b []byte) error {
	d := &decodeState{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			return d.err
		}
		switch num {
		case 1:
			m.ChannelID = d.uint32v()
		case 4:
			m.InheritACLs = d.boolv()
		case 5:
			m.Query = d.boolv()
		default:
			d.skip(num, typ)
		}
	}
}

// QueryUsers resolves registered user ids to names and back.
type QueryUsers struct {
	IDs   []uint32
	Names []string
}

func (*QueryUsers) Type() Type { return TypeQueryUsers }

func (m *QueryUsers) marshal(b []byte) []byte {
	b = appendUint32Rep(b, 1, m.IDs)
	b = appendStringRep(b, 2, m.Names)
	return b
}

func (m *QueryUsers) unmarshal(b []byte) error {
	d := &decodeState{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			return d.err
		}
		switch num {
		case 1:
			m.IDs = d.repUint32(m.IDs, typ)
		case 2:
			if s := d.stringv(); s != nil {
				m.Names = append(m.Names, *s)
			}
		default:
			d.skip(num, typ)
		}
	}
}

// CryptSetup hands the client the OCB key material for the UDP channel.
type CryptSetup struct {
	Key         []byte
	ClientNonce []byte
	ServerNonce []byte
}

func (*CryptSetup) Type() Type { return TypeCryptSetup }

func (m *CryptSetup) marshal(b []byte) []byte {
	b = appendBytesField(b, 1, m.Key)
	b = appendBytesField(b, 2, m.ClientNonce)
	b = appendBytesField(b, 3, m.ServerNonce)
	return b
}

func (m *CryptSetup) unmarshal(b []byte) error {
	d := &decodeState{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			return d.err
		}
		switch num {
		case 1:
			m.Key = d.bytesv()
		case 2:
			m.ClientNonce = d.bytesv()
		case 3:
			m.ServerNonce = d.bytesv()
		default:
			d.skip(num, typ)
		}
	}
}

// ContextActionModify registers or removes a client context menu action.
type ContextActionModify struct {
	Action    *string
	Text      *string
	Context   *uint32
	Operation *uint32
}

func (*ContextActionModify) Type() Type { return TypeContextActionModify }

func (m *ContextActionModify) marshal(b []byte) []byte {
	b = appendStringOpt(b, 1, m.Action)
	b = appendStringOpt(b, 2, m.Text)
	b = appendUint32Opt(b, 3, m.Context)
	b = appendUint32Opt(b, 4, m.Operation)
	return b
}

func (m *ContextActionModify) unmarshal(b []byte) error {
	d := &decodeState{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			return d.err
		}
		switch num {
		case 1:
			m.Action = d.stringv()
		case 2:
			m.Text = d.stringv()
		case 3:
			m.Context = d.uint32v()
		case 4:
			m.Operation = d.uint32v()
		default:
			d.skip(num, typ)
		}
	}
}

// ContextAction fires a previously registered context action.
type ContextAction struct {
	Session   *uint32
	ChannelID *uint32
	Action    *string
}

func (*ContextAction) Type() Type { return TypeContextAction }

func (m *ContextAction) marshal(b []byte) []byte {
	b = appendUint32Opt(b, 1, m.Session)
	b = appendUint32Opt(b, 2, m.ChannelID)
	b = appendStringOpt(b, 3, m.Action)
	return b
}

func (m *ContextAction) unmarshal(b []byte) error {
	d := &decodeState{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			return d.err
		}
		switch num {
		case 1:
			m.Session = d.uint32v()
		case 2:
			m.ChannelID = d.uint32v()
		case 3:
			m.Action = d.stringv()
		default:
			d.skip(num, typ)
		}
	}
}

// UserListEntry is one registered user in a UserList reply.
type UserListEntry struct {
	UserID *uint32
	Name   *string
}

func (e *UserListEntry) marshal(b []byte) []byte {
	b = appendUint32Opt(b, 1, e.UserID)
	b = appendStringOpt(b, 2, e.Name)
	return b
}

func (e *UserListEntry) unmarshal(b []byte) error {
	d := &decodeState{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			return d.err
		}
		switch num {
		case 1:
			e.UserID = d.uint32v()
		case 2:
			e.Name = d.stringv()
		default:
			d.skip(num, typ)
		}
	}
}

// UserList enumerates registered users.
type UserList struct {
	Users []UserListEntry
}

func (*UserList) Type() Type { return TypeUserList }

func (m *UserList) marshal(b []byte) []byte {
	for i := range m.Users {
		b = appendBytesField(b, 1, m.Users[i].marshal(nil))
	}
	return b
}

func (m *UserList) unmarshal(b []byte) error {
	d := &decodeState{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			return d.err
		}
		if num == 1 {
			raw := d.bytesv()
			if d.err != nil {
				return d.err
			}
			var e UserListEntry
			if err := e.unmarshal(raw); err != nil {
				return err
			}
			m.Users = append(m.Users, e)
		} else {
			d.skip(num, typ)
		}
	}
}

// VoiceTargetEntry is one target selector inside a VoiceTarget.
type VoiceTargetEntry struct {
	Session   []uint32
	ChannelID *uint32
	Group     *string
	Links     *bool
	Children  *bool
}

func (e *VoiceTargetEntry) marshal(b []byte) []byte {
	b = appendUint32Rep(b, 1, e.Session)
	b = appendUint32Opt(b, 2, e.ChannelID)
	b = appendStringOpt(b, 3, e.Group)
	b = appendBoolOpt(b, 4, e.Links)
	b = appendBoolOpt(b, 5, e.Children)
	return b
}

func (e *VoiceTargetEntry) unmarshal(b []byte) error {
	d := &decodeState{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			return d.err
		}
		switch num {
		case 1:
			e.Session = d.repUint32(e.Session, typ)
		case 2:
			e.ChannelID = d.uint32v()
		case 3:
			e.Group = d.stringv()
		case 4:
			e.Links = d.boolv()
		case 5:
			e.Children = d.boolv()
		default:
			d.skip(num, typ)
		}
	}
}

// VoiceTarget configures whisper/shout target slots.
type VoiceTarget struct {
	ID      *uint32
	Targets []VoiceTargetEntry
}

func (*VoiceTarget) Type() Type { return TypeVoiceTarget }

func (m *VoiceTarget) marshal(b []byte) []byte {
	b = appendUint32Opt(b, 1, m.ID)
	for i := range m.Targets {
		b = appendBytesField(b, 2, m.Targets[i].marshal(nil))
	}
	return b
}

func (m *VoiceTarget) unmarshal(b []byte) error {
	d := &decodeState{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			return d.err
		}
		switch num {
		case 1:
			m.ID = d.uint32v()
		case 2:
			raw := d.bytesv()
			if d.err != nil {
				return d.err
			}
			var e VoiceTargetEntry
			if err := e.unmarshal(raw); err != nil {
				return err
			}
			m.Targets = append(m.Targets, e)
		default:
			d.skip(num, typ)
		}
	}
}

// PermissionQuery asks for (and answers with) a channel permission mask.
type PermissionQuery struct {
	ChannelID   *uint32
	Permissions *uint32
	Flush       *bool
}

func (*PermissionQuery) Type() Type { return TypePermissionQuery }

func (m *PermissionQuery) marshal(b []byte) []byte {
	b = appendUint32Opt(b, 1, m.ChannelID)
	b = appendUint32Opt(b, 2, m.Permissions)
	b = appendBoolOpt(b, 3, m.Flush)
	return b
}

func (m *PermissionQuery) unmarshal(b []byte) error {
	d := &decodeState{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			return d.err
		}
		switch num {
		case 1:
			m.ChannelID = d.uint32v()
		case 2:
			m.Permissions = d.uint32v()
		case 3:
			m.Flush = d.boolv()
		default:
			d.skip(num, typ)
		}
	}
}

// CodecVersion advertises the codecs in use on this server.
type CodecVersion struct {
	Alpha       *int32
	Beta        *int32
	PreferAlpha *bool
	Opus        *bool
}

func (*CodecVersion) Type() Type { return TypeCodecVersion }

func (m *CodecVersion) marshal(b []byte) []byte {
	b = appendInt32Opt(b, 1, m.Alpha)
	b = appendInt32Opt(b, 2, m.Beta)
	b = appendBoolOpt(b, 3, m.PreferAlpha)
	b = appendBoolOpt(b, 4, m.Opus)
	return b
}

func (m *CodecVersion) unmarshal(b []byte) error {
	d := &decodeState{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			return d.err
		}
		switch num {
		case 1:
			m.Alpha = d.int32v()
		case 2:
			m.Beta = d.int32v()
		case 3:
			m.PreferAlpha = d.boolv()
		case 4:
			m.Opus = d.boolv()
		default:
			d.skip(num, typ)
		}
	}
}

// UserStats carries connection statistics for one session. Certificate
// chains and nested packet stats are skipped on decode.
type UserStats struct {
	Session    *uint32
	StatsOnly  *bool
	UDPPackets *uint32
	TCPPackets *uint32
	OnlineSecs *uint32
	IdleSecs   *uint32
	Opus       *bool
}

func (*UserStats) Type() Type { return TypeUserStats }

func (m *UserStats) marshal(b []byte) []byte {
	b = appendUint32Opt(b, 1, m.Session)
	b = appendBoolOpt(b, 2, m.StatsOnly)
	b = appendUint32Opt(b, 6, m.UDPPackets)
	b = appendUint32Opt(b, 7, m.TCPPackets)
	b = appendUint32Opt(b, 16, m.OnlineSecs)
	b = appendUint32Opt(b, 17, m.IdleSecs)
	b = appendBoolOpt(b, 19, m.Opus)
	return b
}

func (m *UserStats) unmarshal(b []byte) error {
	d := &decodeState{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			return d.err
		}
		switch num {
		case 1:
			m.Session = d.uint32v()
		case 2:
			m.StatsOnly = d.boolv()
		case 6:
			m.UDPPackets = d.uint32v()
		case 7:
			m.TCPPackets = d.uint32v()
		case 16:
			m.OnlineSecs = d.uint32v()
		case 17:
			m.IdleSecs = d.uint32v()
		case 19:
			m.Opus = d.boolv()
		default:
			d.skip(num, typ)
		}
	}
}

// RequestBlob asks for textures, comments or channel descriptions by hash.
type RequestBlob struct {
	SessionTexture     []uint32
	SessionComment     []uint32
	ChannelDescription []uint32
}

func (*RequestBlob) Type() Type { return TypeRequestBlob }

func (m *RequestBlob) marshal(b []byte) []byte {
	b = appendUint32Rep(b, 1, m.SessionTexture)
	b = appendUint32Rep(b, 2, m.SessionComment)
	b = appendUint32Rep(b, 3, m.ChannelDescription)
	return b
}

func (m *RequestBlob) unmarshal(b []byte) error {
	d := &decodeState{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			return d.err
		}
		switch num {
		case 1:
			m.SessionTexture = d.repUint32(m.SessionTexture, typ)
		case 2:
			m.SessionComment = d.repUint32(m.SessionComment, typ)
		case 3:
			m.ChannelDescription = d.repUint32(m.ChannelDescription, typ)
		default:
			d.skip(num, typ)
		}
	}
}

// ServerConfig announces server-side limits after sync.
type ServerConfig struct {
	MaxBandwidth       *uint32
	WelcomeText        *string
	AllowHTML          *bool
	MessageLength      *uint32
	ImageMessageLength *uint32
	MaxUsers           *uint32
}

func (*ServerConfig) Type() Type { return TypeServerConfig }

func (m *ServerConfig) marshal(b []byte) []byte {
	b = appendUint32Opt(b, 1, m.MaxBandwidth)
	b = appendStringOpt(b, 2, m.WelcomeText)
	b = appendBoolOpt(b, 3, m.AllowHTML)
	b = appendUint32Opt(b, 4, m.MessageLength)
	b = appendUint32Opt(b, 5, m.ImageMessageLength)
	b = appendUint32Opt(b, 6, m.MaxUsers)
	return b
}

func (m *ServerConfig) unmarshal(b []byte) error {
	d := &decodeState{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			return d.err
		}
		switch num {
		case 1:
			m.MaxBandwidth = d.uint32v()
		case 2:
			m.WelcomeText = d.stringv()
		case 3:
			m.AllowHTML = d.boolv()
		case 4:
			m.MessageLength = d.uint32v()
		case 5:
			m.ImageMessageLength = d.uint32v()
		case 6:
			m.MaxUsers = d.uint32v()
		default:
			d.skip(num, typ)
		}
	}
}

// SuggestConfig recommends client settings.
type SuggestConfig struct {
	Version    *uint32
	Positional *bool
	PushToTalk *bool
}

func (*SuggestConfig) Type() Type { return TypeSuggestConfig }

func (m *SuggestConfig) marshal(b []byte) []byte {
	b = appendUint32Opt(b, 1, m.Version)
	b = appendBoolOpt(b, 2, m.Positional)
	b = appendBoolOpt(b, 3, m.PushToTalk)
	return b
}

func (m *SuggestConfig) unmarshal(b []byte) error {
	d := &decodeState{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			return d.err
		}
		switch num {
		case 1:
			m.Version = d.uint32v()
		case 2:
			m.Positional = d.boolv()
		case 3:
			m.PushToTalk = d.boolv()
		default:
			d.skip(num, typ)
		}
	}
}
