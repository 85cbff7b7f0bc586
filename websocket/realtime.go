package websocket

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/quadrant/models"
	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

// HeaderClientID is the request header a client can use to identify itself.
// A random id is generated when it is missing.
const HeaderClientID = "X-Client-ID"

// RealtimeHandler serves point queries and per-frame subscriptions for the
// world a client connected to.
type RealtimeHandler struct {
	// The time a client is idle before being disconnected.
	ClientIdleTimeout time.Duration

	// The store that contains all the server worlds.
	Worlds *models.WorldStore

	conn     *websocket.Conn
	clientID string
	world    *models.World

	subscriptionMutex sync.Mutex
	subscription      *subscription
}

type subscription struct {
	x                 float64
	y                 float64
	stopFrameHandling func()
}

func (h *RealtimeHandler) HandleConnect(conn *websocket.Conn) error {
	req := conn.Request()
	h.conn = conn

	h.clientID = req.Header.Get(HeaderClientID)
	if h.clientID == "" {
		h.clientID = uuid.NewString()
	}

	v := req.PathValue("id")
	id, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return errors.New("invalid world id").
			WithType(ErrTypeNoWorld).
			WithTag("world_id", v).
			Wrap(err)
	}

	world, err := h.Worlds.Get(uint32(id))
	if err != nil {
		return err
	}

	h.world = world
	return nil
}

func (h *RealtimeHandler) HandleDisconnect(_ error) {
	h.unsubscribe()
}

func (h *RealtimeHandler) HandlePing(ctx context.Context, respond ResponseSender, msg Msg) error {
	respond.Send(Msg{
		Type:      MsgTypePong,
		RequestID: msg.RequestID,
	})
	return nil
}

func (h *RealtimeHandler) HandleQuery(ctx context.Context, respond ResponseSender, msg Msg) error {
	respond.Send(Msg{
		Type:      MsgTypeQueryResponse,
		RequestID: msg.RequestID,
		WorldID:   h.world.ID,
		X:         msg.X,
		Y:         msg.Y,
		Frame:     h.world.FrameCount(),
		Entities:  models.EntitiesToViews(h.world.Nearby(msg.X, msg.Y)),
	})
	return nil
}

func (h *RealtimeHandler) HandleSubscribe(ctx context.Context, handleFrame func(), respond ResponseSender, msg Msg) error {
	h.unsubscribe()

	h.subscriptionMutex.Lock()
	h.subscription = &subscription{
		x:                 msg.X,
		y:                 msg.Y,
		stopFrameHandling: h.world.HandleFrame(handleFrame),
	}
	h.subscriptionMutex.Unlock()

	respond.Send(Msg{
		Type:      MsgTypeSubscribeResponse,
		RequestID: msg.RequestID,
		WorldID:   h.world.ID,
		X:         msg.X,
		Y:         msg.Y,
	})
	return nil
}

func (h *RealtimeHandler) HandleUnsubscribe(ctx context.Context, respond ResponseSender, msg Msg) error {
	h.unsubscribe()

	respond.Send(Msg{
		Type:      MsgTypeUnsubscribeResponse,
		RequestID: msg.RequestID,
		WorldID:   h.world.ID,
	})
	return nil
}

func (h *RealtimeHandler) SendFrame(ctx context.Context, respond ResponseSender) error {
	h.subscriptionMutex.Lock()
	sub := h.subscription
	h.subscriptionMutex.Unlock()

	// Frames signaled right before an unsubscribe are dropped.
	if sub == nil {
		return nil
	}

	respond.Send(Msg{
		Type:     MsgTypeFrame,
		WorldID:  h.world.ID,
		X:        sub.x,
		Y:        sub.y,
		Frame:    h.world.FrameCount(),
		Entities: models.EntitiesToViews(h.world.Nearby(sub.x, sub.y)),
	})
	return nil
}

func (h *RealtimeHandler) Receiver() Receiver {
	return func() (Msg, int, error) {
		var data []byte
		if err := websocket.Message.Receive(h.conn, &data); err != nil {
			return Msg{}, 0, err
		}

		var msg Msg
		if err := JSON.Unmarshal(data, websocket.TextFrame, &msg); err != nil {
			return Msg{}, len(data), errors.New("decoding message failed").
				WithType(ErrTypeMsgDecode).
				Wrap(err)
		}
		return msg, len(data), nil
	}
}

func (h *RealtimeHandler) Sender() Sender {
	return func(msg Msg) (int, error) {
		b, _, err := JSON.Marshal(msg)
		if err != nil {
			return 0, err
		}

		if err := websocket.Message.Send(h.conn, string(b)); err != nil {
			return 0, err
		}
		return len(b), nil
	}
}

func (h *RealtimeHandler) Close() {
	h.unsubscribe()
}

func (h *RealtimeHandler) IdleTimeout() time.Duration {
	return h.ClientIdleTimeout
}

func (h *RealtimeHandler) CurrentWorld() *models.World {
	return h.world
}

func (h *RealtimeHandler) GetClientID() string {
	return h.clientID
}

func (h *RealtimeHandler) unsubscribe() {
	h.subscriptionMutex.Lock()
	defer h.subscriptionMutex.Unlock()

	if h.subscription == nil {
		return
	}

	h.subscription.stopFrameHandling()
	h.subscription = nil
}
