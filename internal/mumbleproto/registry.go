// Package mumbleproto maps protocol message type ids to structured message
// schemas and encodes/decodes them, independent of transport. Payloads are
// protobuf wire format except UDPTunnel, whose payload is raw voice bytes.
package mumbleproto

import "fmt"

// Type identifies a protocol message kind. The numeric values are fixed by
// the wire format.
type Type uint16

const (
	TypeVersion Type = iota
	TypeUDPTunnel
	TypeAuthenticate
	TypePing
	TypeReject
	TypeServerSync
	TypeChannelRemove
	TypeChannelState
	TypeUserRemove
	TypeUserState
	TypeBanList
	TypeTextMessage
	TypePermissionDenied
	TypeACL
	TypeQueryUsers
	TypeCryptSetup
	TypeContextActionModify
	TypeContextAction
	TypeUserList
	TypeVoiceTarget
	TypePermissionQuery
	TypeCodecVersion
	TypeUserStats
	TypeRequestBlob
	TypeServerConfig
	TypeSuggestConfig

	typeCount
)

var typeNames = [typeCount]string{
	"Version", "UDPTunnel", "Authenticate", "Ping", "Reject", "ServerSync",
	"ChannelRemove", "ChannelState", "UserRemove", "UserState", "BanList",
	"TextMessage", "PermissionDenied", "ACL", "QueryUsers", "CryptSetup",
	"ContextActionModify", "ContextAction", "UserList", "VoiceTarget",
	"PermissionQuery", "CodecVersion", "UserStats", "RequestBlob",
	"ServerConfig", "SuggestConfig",
}

var typesByName = func() map[string]Type {
	m := make(map[string]Type, typeCount)
	for t := Type(0); t < typeCount; t++ {
		m[typeNames[t]] = t
	}
	return m
}()

var factories = [typeCount]func() Message{
	TypeVersion:             func() Message { return &Version{} },
	TypeUDPTunnel:           func() Message { return &UDPTunnel{} },
	TypeAuthenticate:        func() Message { return &Authenticate{} },
	TypePing:                func() Message { return &Ping{} },
	TypeReject:              func() Message { return &Reject{} },
	TypeServerSync:          func() Message { return &ServerSync{} },
	TypeChannelRemove:       func() Message { return &ChannelRemove{} },
	TypeChannelState:        func() Message { return &ChannelState{} },
	TypeUserRemove:          func() Message { return &UserRemove{} },
	TypeUserState:           func() Message { return &UserState{} },
	TypeBanList:             func() Message { return &BanList{} },
	TypeTextMessage:         func() Message { return &TextMessage{} },
	TypePermissionDenied:    func() Message { return &PermissionDenied{} },
	TypeACL:                 func() Message { return &ACL{} },
	TypeQueryUsers:          func() Message { return &QueryUsers{} },
	TypeCryptSetup:          func() Message { return &CryptSetup{} },
	TypeContextActionModify: func() Message { return &ContextActionModify{} },
	TypeContextAction:       func() Message { return &ContextAction{} },
	TypeUserList:            func() Message { return &UserList{} },
	TypeVoiceTarget:         func() Message { return &VoiceTarget{} },
	TypePermissionQuery:     func() Message { return &PermissionQuery{} },
	TypeCodecVersion:        func() Message { return &CodecVersion{} },
	TypeUserStats:           func() Message { return &UserStats{} },
	TypeRequestBlob:         func() Message { return &RequestBlob{} },
	TypeServerConfig:        func() Message { return &ServerConfig{} },
	TypeSuggestConfig:       func() Message { return &SuggestConfig{} },
}

// Message is one protocol message with a fixed wire type id.
type Message interface {
	Type() Type
	marshal(dst []byte) []byte
	unmarshal(b []byte) error
}

// ProtocolError reports a malformed frame, unknown message type or decode
// failure. It is fatal to the connection it occurred on, never to the server.
type ProtocolError struct {
	TypeID uint16
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s (type %d): %v", e.Reason, e.TypeID, e.Err)
	}
	return fmt.Sprintf("protocol error: %s (type %d)", e.Reason, e.TypeID)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Name returns the message kind name for a type id, or "" for unknown ids.
func (t Type) Name() string {
	if t >= typeCount {
		return ""
	}
	return typeNames[t]
}

// TypeByName resolves a message kind name to its type id.
func TypeByName(name string) (Type, bool) {
	t, ok := typesByName[name]
	return t, ok
}

// Marshal serializes a message payload. The frame header is the transport's
// concern.
func Marshal(m Message) []byte {
	return m.marshal(nil)
}

// Unmarshal decodes a payload for the given type id. Unknown ids and
// malformed payloads yield a ProtocolError; UDPTunnel payloads pass through
// as raw bytes.
func Unmarshal(t Type, payload []byte) (Message, error) {
	if t >= typeCount {
		return nil, &ProtocolError{TypeID: uint16(t), Reason: "unknown message type"}
	}
	m := factories[t]()
	if err := m.unmarshal(payload); err != nil {
		return nil, &ProtocolError{TypeID: uint16(t), Reason: "malformed payload", Err: err}
	}
	return m, nil
}
