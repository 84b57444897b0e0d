package room

import "errors"

var (
	ErrInsufficientPlayers = errors.New("not enough players to start")
	ErrGameAlreadyStarted  = errors.New("game already started")
	ErrGameInProgress      = errors.New("game in progress, joining is closed")
	ErrNotOwner            = errors.New("only the room owner can start the game")
	ErrWrongPhase          = errors.New("action not allowed in this phase")
	ErrNotInLethalGroup    = errors.New("only werewolves vote at night")
	ErrNotInRevealGroup    = errors.New("only the seer can inspect")
	ErrAlreadyResolved     = errors.New("tonight's victim is already chosen")
	ErrUnknownTarget       = errors.New("target is not in this room")
	ErrDuplicatePlayer     = errors.New("player already in room")
	ErrRoomClosed          = errors.New("room closed")
)
