// Package protocol describes the frames exchanged over /ws.
//
// Every frame is a JSON object {"event": string, "data": object}.
//
// Client -> Server
//
//	join-room:      {username, roomCode?}
//	start-game:     {roomCode, roleComposition?}  // {"WEREWOLF":1,"SEER":1,"VILLAGER":2}
//	loup-vote:      {roomCode, targetId}
//	voyante-action: {roomCode, targetId}
//	send-message:   {room, username, message}
//
// Server -> Client
//
//	joined:            {room}
//	players-update:    [{id, username}]  // join order, roles are never broadcast
//	role-assigned:     {role}            // private
//	composition-error: {message}         // private
//	game-started:      {}
//	phase-change:      {phase: "night" | "day"}
//	player-killed:     {victimId}
//	voyante-result:    {player, role}    // private
//	receive-message:   {username, message, timestamp}
//	error:             {message}         // private
package protocol
