package room

import (
	"github.com/DoyleJ11/werewolf-backend/internal/engine"
	"github.com/DoyleJ11/werewolf-backend/internal/protocol"
)

type Msg interface{ isRoomMsg() }

type Join struct {
	PlayerID string
	Username string
	Outbox   chan<- protocol.Message // where this connection receives room events
	Reply    chan JoinReply
}

type JoinReply struct {
	Players []protocol.PlayerView
	Err     error
}

// Leave replies with the number of connections still in the room.
type Leave struct {
	PlayerID string
	Reply    chan int
}

// StartGame with an empty Composition deals engine.DefaultComposition.
type StartGame struct {
	PlayerID    string
	Composition engine.Composition
}

type LethalVote struct {
	VoterID  string
	TargetID string
}

type RevealAction struct {
	RequesterID string
	TargetID    string
}

type Chat struct {
	Username string
	Message  string
}

type GetState struct {
	Reply chan View
}

type Shutdown struct{}

// phaseTick is posted by the scheduler; gen identifies the timer that fired.
type phaseTick struct{ gen int }

func (Join) isRoomMsg()         {}
func (Leave) isRoomMsg()        {}
func (StartGame) isRoomMsg()    {}
func (LethalVote) isRoomMsg()   {}
func (RevealAction) isRoomMsg() {}
func (Chat) isRoomMsg()         {}
func (GetState) isRoomMsg()     {}
func (Shutdown) isRoomMsg()     {}
func (phaseTick) isRoomMsg()    {}

type PlayerState struct {
	ID       string
	Username string
	Role     engine.Role // zero until the game starts
}

type View struct {
	Code         string
	Owner        string
	Phase        engine.Phase
	Players      []PlayerState
	Members      int
	PendingVotes map[string]string
	TimerRunning bool
	TimerGen     int
}
