package websocket

import (
	"github.com/aukilabs/quadrant/models"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

// MsgType identifies the kind of a message exchanged over a connection.
type MsgType string

const (
	MsgTypePing                MsgType = "ping"
	MsgTypePong                MsgType = "pong"
	MsgTypeQuery               MsgType = "query"
	MsgTypeQueryResponse       MsgType = "query_response"
	MsgTypeSubscribe           MsgType = "subscribe"
	MsgTypeSubscribeResponse   MsgType = "subscribe_response"
	MsgTypeUnsubscribe         MsgType = "unsubscribe"
	MsgTypeUnsubscribeResponse MsgType = "unsubscribe_response"
	MsgTypeFrame               MsgType = "frame"
	MsgTypeError               MsgType = "error"
)

const (
	ErrTypeMsgDecode      = "msg_decode_error"
	ErrTypeUnknownMsgType = "unknown_msg_type"
	ErrTypeNoWorld        = "no_world"
)

// Msg is the JSON envelope of every message. Fields irrelevant to a type are
// omitted.
type Msg struct {
	Type      MsgType             `json:"type"`
	RequestID uint32              `json:"request_id,omitempty"`
	WorldID   uint32              `json:"world_id,omitempty"`
	X         float64             `json:"x,omitempty"`
	Y         float64             `json:"y,omitempty"`
	Frame     uint64              `json:"frame,omitempty"`
	Entities  []models.EntityView `json:"entities,omitempty"`
	Error     string              `json:"error,omitempty"`
	Message   string              `json:"message,omitempty"`
}

// JSON is a codec that sends and receives messages as JSON text frames.
var JSON = websocket.Codec{
	Marshal: func(v any) ([]byte, byte, error) {
		b, err := json.Marshal(v)
		return b, websocket.TextFrame, err
	},
	Unmarshal: func(data []byte, payloadType byte, v any) error {
		return json.Unmarshal(data, v)
	},
}

// Receiver reads the next message and reports the number of bytes read.
type Receiver func() (Msg, int, error)

// Sender writes a message and reports the number of bytes written.
type Sender func(Msg) (int, error)

// ResponseSender queues messages for the connected client.
type ResponseSender interface {
	Send(Msg)
}
