package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/DoyleJ11/werewolf-backend/internal/hub"
	"github.com/DoyleJ11/werewolf-backend/internal/protocol"
	"github.com/DoyleJ11/werewolf-backend/internal/room"
)

var (
	errBadFrame     = errors.New("bad json")
	errUnknownEvent = errors.New("unknown event")
)

type client struct {
	id   string
	conn *websocket.Conn
	reg  Registry
	out  chan protocol.Message
	log  *zap.Logger
	cfg  Config

	code string // room joined by this connection, reader goroutine only
}

// writeLoop is the only goroutine writing to the socket, pings included. The
// outbox is never closed because rooms may still hold it; the loop ends with
// ctx. A peer that misses a pong is closed, which ends readLoop.
func (c *client) writeLoop(ctx context.Context) {
	pings, stop := c.cfg.Tickers.Create(c.cfg.PingInterval)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pings:
			pctx, cancel := context.WithTimeout(ctx, c.cfg.PingTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				c.log.Debug("ping failed", zap.Error(err))
				c.conn.Close(websocket.StatusPolicyViolation, "ping timeout")
				return
			}
		case m := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
			err := wsjson.Write(wctx, c.conn, m)
			cancel()
			if err != nil {
				c.log.Debug("write failed", zap.String("event", m.Event), zap.Error(err))
				c.conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

func (c *client) readLoop(ctx context.Context) {
	for {
		// no read deadline: silent listeners are fine as long as they pong
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				c.log.Debug("client closed")
			default:
				c.log.Debug("read failed", zap.Error(err))
			}
			return
		}

		var frame protocol.ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.push(protocol.Error(protocol.EvtError, errBadFrame))
			continue
		}
		c.dispatch(ctx, frame)
	}
}

func (c *client) dispatch(ctx context.Context, frame protocol.ClientFrame) {
	switch frame.Event {
	case protocol.EvtJoinRoom:
		var req protocol.JoinRoomRequest
		if !c.decode(frame, &req) {
			return
		}
		c.join(ctx, req)

	case protocol.EvtStartGame:
		var req protocol.StartGameRequest
		if !c.decode(frame, &req) {
			return
		}
		c.toRoom(ctx, req.RoomCode, room.StartGame{PlayerID: c.id, Composition: req.RoleComposition})

	case protocol.EvtLoupVote:
		var req protocol.TargetRequest
		if !c.decode(frame, &req) {
			return
		}
		c.toRoom(ctx, req.RoomCode, room.LethalVote{VoterID: c.id, TargetID: req.TargetID})

	case protocol.EvtVoyanteAction:
		var req protocol.TargetRequest
		if !c.decode(frame, &req) {
			return
		}
		c.toRoom(ctx, req.RoomCode, room.RevealAction{RequesterID: c.id, TargetID: req.TargetID})

	case protocol.EvtSendMessage:
		var req protocol.SendMessageRequest
		if !c.decode(frame, &req) {
			return
		}
		c.toRoom(ctx, req.Room, room.Chat{Username: protocol.NormalizeUsername(req.Username), Message: req.Message})

	default:
		c.push(protocol.Error(protocol.EvtError, fmt.Errorf("%w: %q", errUnknownEvent, frame.Event)))
	}
}

func (c *client) join(ctx context.Context, req protocol.JoinRoomRequest) {
	res, err := c.reg.Join(ctx, hub.JoinRequest{
		ConnID:   c.id,
		Username: protocol.NormalizeUsername(req.Username),
		Code:     normalizeCode(req.RoomCode),
		Outbox:   c.out,
	})
	if err != nil {
		c.log.Info("join rejected", zap.String("requested", req.RoomCode), zap.Error(err))
		c.push(protocol.Error(protocol.EvtError, err))
		return
	}
	c.code = res.Code
	c.log.Info("joined room", zap.String("room", res.Code), zap.Int("players", len(res.Players)))
}

// toRoom forwards m to the named room, or to the joined room when the frame
// names none. Unknown rooms are dropped.
func (c *client) toRoom(ctx context.Context, code string, m room.Msg) {
	code = normalizeCode(code)
	if code == "" {
		code = c.code
	}
	rm, ok := c.reg.Lookup(ctx, code)
	if !ok {
		c.log.Debug("unknown room, dropped", zap.String("room", code), zap.String("msg", fmt.Sprintf("%T", m)))
		return
	}
	if !rm.Send(m) {
		c.log.Debug("room closed, dropped", zap.String("room", code))
	}
}

func (c *client) decode(frame protocol.ClientFrame, v any) bool {
	if len(frame.Data) == 0 {
		return true
	}
	if err := json.Unmarshal(frame.Data, v); err != nil {
		c.log.Debug("bad payload", zap.String("event", frame.Event), zap.Error(err))
		c.push(protocol.Error(protocol.EvtError, fmt.Errorf("%w: %s payload", errBadFrame, frame.Event)))
		return false
	}
	return true
}

// push queues a reply from the reader without ever blocking it.
func (c *client) push(m protocol.Message) {
	select {
	case c.out <- m:
	default:
		c.log.Warn("outbox full, message dropped", zap.String("event", m.Event))
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
