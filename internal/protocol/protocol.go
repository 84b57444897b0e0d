package protocol

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/DoyleJ11/werewolf-backend/internal/engine"
)

const (
	EvtJoinRoom      = "join-room"
	EvtStartGame     = "start-game"
	EvtLoupVote      = "loup-vote"
	EvtVoyanteAction = "voyante-action"
	EvtSendMessage   = "send-message"

	EvtJoined           = "joined"
	EvtPlayersUpdate    = "players-update"
	EvtRoleAssigned     = "role-assigned"
	EvtCompositionError = "composition-error"
	EvtGameStarted      = "game-started"
	EvtPhaseChange      = "phase-change"
	EvtPlayerKilled     = "player-killed"
	EvtVoyanteResult    = "voyante-result"
	EvtReceiveMessage   = "receive-message"
	EvtError            = "error"
)

// ClientFrame is an inbound frame; Data is decoded once Event is known.
type ClientFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Message is an outbound frame. Rooms put these on connection outboxes.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type JoinRoomRequest struct {
	Username string `json:"username"`
	RoomCode string `json:"roomCode,omitempty"`
}

type StartGameRequest struct {
	RoomCode        string             `json:"roomCode"`
	RoleComposition engine.Composition `json:"roleComposition,omitempty"`
}

// TargetRequest carries both loup-vote and voyante-action.
type TargetRequest struct {
	RoomCode string `json:"roomCode"`
	TargetID string `json:"targetId"`
}

type SendMessageRequest struct {
	Room     string `json:"room"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

type Joined struct {
	Room string `json:"room"`
}

type PlayerView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type RoleAssigned struct {
	Role engine.Role `json:"role"`
}

type PhaseChange struct {
	Phase engine.Phase `json:"phase"`
}

type PlayerKilled struct {
	VictimID string `json:"victimId"`
}

type VoyanteResult struct {
	Player string `json:"player"`
	Role   string `json:"role"`
}

type ReceiveMessage struct {
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

func Error(event string, err error) Message {
	return Message{Event: event, Data: ErrorMessage{Message: err.Error()}}
}

const (
	MaxUsernameLen = 24
	AnonymousName  = "Anonymous"
)

// NormalizeUsername trims, NFC-normalizes and caps a display name.
func NormalizeUsername(name string) string {
	name = norm.NFC.String(strings.TrimSpace(name))
	if name == "" {
		return AnonymousName
	}
	if utf8.RuneCountInString(name) > MaxUsernameLen {
		name = strings.TrimSpace(string([]rune(name)[:MaxUsernameLen]))
	}
	return name
}
