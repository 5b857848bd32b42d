// Package message defines the RTMP message model exchanged between the
// connection engine and its chunk codec.
//
// A message is the unit delivered by the decoder and accepted by the encoder.
// The binary chunk framing and the AMF serialization of command arguments are
// owned by the codec, not by this package: argument values travel here as
// opaque Go values.
package message

import "fmt"

// ControlChunkStreamID is the chunk stream ID used for protocol control
// messages, including the bandwidth announcements a server makes immediately
// after a successful handshake.
const ControlChunkStreamID = 2

// Type identifies the kind of an RTMP message.
type Type byte

// Message types.
const (
	TypeSetChunkSize     Type = 1
	TypeAbortMessage     Type = 2
	TypeAcknowledge      Type = 3
	TypeUserControl      Type = 4
	TypeSetWindowAckSize Type = 5
	TypeSetPeerBandwidth Type = 6
	TypeAudio            Type = 8
	TypeVideo            Type = 9
	TypeDataAMF3         Type = 15
	TypeCommandAMF3      Type = 17
	TypeDataAMF0         Type = 18
	TypeCommandAMF0      Type = 20
)

func (t Type) String() string {
	switch t {
	case TypeSetChunkSize:
		return "SET_CHUNK_SIZE"
	case TypeAbortMessage:
		return "ABORT"
	case TypeAcknowledge:
		return "ACK"
	case TypeUserControl:
		return "USER_CONTROL"
	case TypeSetWindowAckSize:
		return "WINDOW_ACK_SIZE"
	case TypeSetPeerBandwidth:
		return "SET_PEER_BANDWIDTH"
	case TypeAudio:
		return "AUDIO"
	case TypeVideo:
		return "VIDEO"
	case TypeDataAMF3:
		return "DATA_AMF3"
	case TypeCommandAMF3:
		return "COMMAND_AMF3"
	case TypeDataAMF0:
		return "DATA_AMF0"
	case TypeCommandAMF0:
		return "COMMAND_AMF0"
	default:
		return fmt.Sprintf("TYPE:%d", byte(t))
	}
}

// A Message is any value the codec can frame onto the wire.
type Message interface {
	// MessageType reports the RTMP type tag for the message.
	MessageType() Type
}

// An Invoke is an RPC command message. It carries both call requests and
// their responses: a response is an Invoke whose Name is one of the reserved
// response tags ("_result" or "_error") and whose CallID matches the request.
//
// A CallID of zero means no response is expected.
type Invoke struct {
	Name    string
	CallID  uint32
	Command any
	Args    []any
}

// MessageType implements the Message interface.
func (*Invoke) MessageType() Type { return TypeCommandAMF0 }

func (m *Invoke) String() string {
	return fmt.Sprintf("Invoke(Name=%q, CallID=%d, Args=%v)", m.Name, m.CallID, m.Args)
}

// DownstreamBandwidth announces the window acknowledgement size of the
// sending end, i.e. the bandwidth the peer may consume downstream.
type DownstreamBandwidth struct {
	Bandwidth uint32
}

// MessageType implements the Message interface.
func (DownstreamBandwidth) MessageType() Type { return TypeSetWindowAckSize }

// Bandwidth limit types for UpstreamBandwidth messages.
const (
	LimitHard    byte = 0
	LimitSoft    byte = 1
	LimitDynamic byte = 2
)

// UpstreamBandwidth asks the peer to limit its outgoing bandwidth.
type UpstreamBandwidth struct {
	Bandwidth uint32
	Limit     byte
}

// MessageType implements the Message interface.
func (UpstreamBandwidth) MessageType() Type { return TypeSetPeerBandwidth }

// UserControlType identifies a user control event.
type UserControlType uint16

// User control event types.
const (
	UserControlStreamBegin      UserControlType = 0
	UserControlStreamEOF        UserControlType = 1
	UserControlStreamDry        UserControlType = 2
	UserControlSetBufferLength  UserControlType = 3
	UserControlStreamIsRecorded UserControlType = 4
	UserControlPingRequest      UserControlType = 6
	UserControlPingResponse     UserControlType = 7
)

// A ControlEvent is a user control message such as the StreamBegin event a
// server issues after the handshake.
type ControlEvent struct {
	Event UserControlType
	Value uint32
}

// MessageType implements the Message interface.
func (ControlEvent) MessageType() Type { return TypeUserControl }

func (m ControlEvent) String() string {
	return fmt.Sprintf("ControlEvent(Event=%d, Value=%d)", m.Event, m.Value)
}

// SetChunkSize asks the peer to use a new maximum chunk body size.
type SetChunkSize struct {
	Size uint32
}

// MessageType implements the Message interface.
func (SetChunkSize) MessageType() Type { return TypeSetChunkSize }

// AudioData is a raw audio payload for a media stream.
type AudioData struct {
	Payload []byte
}

// MessageType implements the Message interface.
func (*AudioData) MessageType() Type { return TypeAudio }

// VideoData is a raw video payload for a media stream.
type VideoData struct {
	Payload []byte
}

// MessageType implements the Message interface.
func (*VideoData) MessageType() Type { return TypeVideo }
