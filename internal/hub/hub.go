package hub

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/DoyleJ11/werewolf-backend/internal/protocol"
	"github.com/DoyleJ11/werewolf-backend/internal/room"
)

var (
	ErrAlreadyInRoom = errors.New("connection already in a room")
	ErrNoFreeCode    = errors.New("no free room code")
	ErrClosed        = errors.New("hub closed")
)

const maxCodeAttempts = 100

type Config struct {
	CodeLength int
	// GenerateCode defaults to GenerateCode; tests swap it to force collisions.
	GenerateCode func(length int) (string, error)
	// Room is the template for every room. Rand is ignored: each room seeds
	// its own source.
	Room   room.Config
	Logger *zap.Logger
}

type JoinRequest struct {
	ConnID   string
	Username string
	Code     string // empty or unknown creates a room
	Outbox   chan<- protocol.Message
}

type JoinResult struct {
	Code    string
	Players []protocol.PlayerView
}

type HubMsg interface{ isHubMsg() }

type JoinRoom struct {
	Req   JoinRequest
	Reply chan JoinReply
}

type JoinReply struct {
	Result JoinResult
	Err    error
}

type LeaveRoom struct {
	ConnID string
	Reply  chan struct{}
}

type GetRoom struct {
	Code  string
	Reply chan *room.Room // nil when unknown
}

type ShutdownHub struct {
	Reply chan struct{}
}

func (JoinRoom) isHubMsg()    {}
func (LeaveRoom) isHubMsg()   {}
func (GetRoom) isHubMsg()     {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	cfg   Config
	log   *zap.Logger
	inbox chan HubMsg

	rooms   map[string]*room.Room
	members map[string]string // connection id -> room code

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHub(parent context.Context, cfg Config) *Hub {
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = DefaultCodeLength
	}
	if cfg.GenerateCode == nil {
		cfg.GenerateCode = GenerateCode
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Room.Logger == nil {
		cfg.Room.Logger = cfg.Logger
	}
	cfg.Room.Rand = nil

	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		cfg:     cfg,
		log:     cfg.Logger.Named("hub"),
		inbox:   make(chan HubMsg, 64),
		rooms:   make(map[string]*room.Room),
		members: make(map[string]string),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) post(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-h.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join places a connection in the room named by req.Code, creating a room
// under a fresh code when there is none.
func (h *Hub) Join(ctx context.Context, req JoinRequest) (JoinResult, error) {
	reply := make(chan JoinReply, 1)
	if err := h.post(ctx, JoinRoom{Req: req, Reply: reply}); err != nil {
		return JoinResult{}, err
	}
	select {
	case res := <-reply:
		return res.Result, res.Err
	case <-h.done:
		return JoinResult{}, ErrClosed
	case <-ctx.Done():
		return JoinResult{}, ctx.Err()
	}
}

// Leave returns once the connection is out of its room and, if it was the
// last one, the room is gone.
func (h *Hub) Leave(ctx context.Context, connID string) error {
	reply := make(chan struct{}, 1)
	if err := h.post(ctx, LeaveRoom{ConnID: connID, Reply: reply}); err != nil {
		return err
	}
	select {
	case <-reply:
		return nil
	case <-h.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) Lookup(ctx context.Context, code string) (*room.Room, bool) {
	reply := make(chan *room.Room, 1)
	if err := h.post(ctx, GetRoom{Code: code, Reply: reply}); err != nil {
		return nil, false
	}
	select {
	case rm := <-reply:
		return rm, rm != nil
	case <-h.done:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// Shutdown stops every room and then the hub itself. Safe to call twice.
func (h *Hub) Shutdown() {
	reply := make(chan struct{}, 1)
	select {
	case h.inbox <- ShutdownHub{Reply: reply}:
	case <-h.done:
		return
	}
	<-h.done
}

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case JoinRoom:
				res, err := h.join(msg.Req)
				msg.Reply <- JoinReply{Result: res, Err: err}

			case LeaveRoom:
				h.leave(msg.ConnID)
				msg.Reply <- struct{}{}

			case GetRoom:
				msg.Reply <- h.rooms[msg.Code] // May be nil

			case ShutdownHub:
				h.shutdown()
				msg.Reply <- struct{}{}
				return
			}
		}
	}
}

func (h *Hub) join(req JoinRequest) (JoinResult, error) {
	if code, ok := h.members[req.ConnID]; ok {
		return JoinResult{}, fmt.Errorf("%w: %s", ErrAlreadyInRoom, code)
	}

	rm := h.rooms[req.Code]
	created := false
	if rm == nil {
		code, err := h.newCode()
		if err != nil {
			return JoinResult{}, err
		}
		if req.Code != "" {
			h.log.Debug("unknown room requested, creating a new one", zap.String("requested", req.Code), zap.String("code", code))
		}
		rm = room.New(h.ctx, code, h.cfg.Room)
		h.rooms[code] = rm
		created = true
		h.log.Info("room created", zap.String("code", code), zap.Int("rooms", len(h.rooms)))
	}

	players, err := rm.Join(h.ctx, req.ConnID, req.Username, req.Outbox)
	if err != nil {
		if created {
			h.closeRoom(rm)
		}
		return JoinResult{}, err
	}

	h.members[req.ConnID] = rm.Code()
	return JoinResult{Code: rm.Code(), Players: players}, nil
}

func (h *Hub) leave(connID string) {
	code, ok := h.members[connID]
	if !ok {
		return
	}
	delete(h.members, connID)

	rm := h.rooms[code]
	if rm == nil {
		return
	}
	remaining, err := rm.Leave(h.ctx, connID)
	if err != nil {
		h.log.Warn("leave failed, dropping room", zap.String("code", code), zap.Error(err))
	}
	if err != nil || remaining == 0 {
		delete(h.rooms, code)
		h.log.Info("room removed", zap.String("code", code), zap.Int("rooms", len(h.rooms)))
	}
}

func (h *Hub) closeRoom(rm *room.Room) {
	rm.Send(room.Shutdown{})
	<-rm.Done()
	delete(h.rooms, rm.Code())
}

func (h *Hub) shutdown() {
	for _, rm := range h.rooms {
		rm.Send(room.Shutdown{})
	}
	for _, rm := range h.rooms {
		<-rm.Done()
	}
	clear(h.rooms)
	clear(h.members)
	h.cancel()
	h.log.Info("hub stopped")
}

func (h *Hub) newCode() (string, error) {
	for range maxCodeAttempts {
		c, err := h.cfg.GenerateCode(h.cfg.CodeLength)
		if err != nil {
			return "", err
		}
		if _, taken := h.rooms[c]; !taken {
			return c, nil
		}
		h.log.Debug("collision on code, regenerating", zap.String("code", c))
	}
	return "", ErrNoFreeCode
}
