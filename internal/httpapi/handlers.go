package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/werewolf-backend/internal/engine"
	"github.com/DoyleJ11/werewolf-backend/internal/protocol"
	"github.com/DoyleJ11/werewolf-backend/internal/room"
)

const stateTimeout = 2 * time.Second

type RoomFinder interface {
	Lookup(ctx context.Context, code string) (*room.Room, bool)
}

type roomResponse struct {
	Code    string                `json:"code"`
	Phase   engine.Phase          `json:"phase"`
	Players []protocol.PlayerView `json:"players"`
	Members int                   `json:"members"`
}

// RoomState reports a room's public state. Roles are never included.
func RoomState(rooms RoomFinder, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := strings.ToUpper(chi.URLParam(r, "code"))

		ctx, cancel := context.WithTimeout(r.Context(), stateTimeout)
		defer cancel()

		rm, ok := rooms.Lookup(ctx, code)
		if !ok {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		v, err := rm.State(ctx)
		if err != nil {
			// torn down between lookup and read
			log.Debug("room state unavailable", zap.String("room", code), zap.Error(err))
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		resp := roomResponse{Code: v.Code, Phase: v.Phase, Players: make([]protocol.PlayerView, 0, len(v.Players)), Members: v.Members}
		for _, p := range v.Players {
			resp.Players = append(resp.Players, protocol.PlayerView{ID: p.ID, Username: p.Username})
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
