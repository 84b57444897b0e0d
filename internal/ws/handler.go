package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/DoyleJ11/werewolf-backend/internal/hub"
	"github.com/DoyleJ11/werewolf-backend/internal/protocol"
	"github.com/DoyleJ11/werewolf-backend/internal/room"
	"github.com/DoyleJ11/werewolf-backend/internal/scheduler"
)

const (
	DefaultPingInterval = 30 * time.Second
	DefaultPingTimeout  = 10 * time.Second
	DefaultWriteTimeout = 3 * time.Second
	DefaultOutboxSize   = 32

	leaveTimeout = 5 * time.Second
)

// Registry is the part of the hub a connection talks to.
type Registry interface {
	Join(ctx context.Context, req hub.JoinRequest) (hub.JoinResult, error)
	Leave(ctx context.Context, connID string) error
	Lookup(ctx context.Context, code string) (*room.Room, bool)
}

type Config struct {
	// OriginPatterns are host patterns accepted besides the request host,
	// e.g. "localhost:*".
	OriginPatterns []string
	PingInterval   time.Duration
	PingTimeout    time.Duration
	WriteTimeout   time.Duration
	OutboxSize     int
	Tickers        scheduler.TickerCreator // ping ticks
	Logger         *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = DefaultPingTimeout
	}
	if c.Tickers == nil {
		c.Tickers = scheduler.NewTickerGen()
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.OutboxSize <= 0 {
		c.OutboxSize = DefaultOutboxSize
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

func Handler(reg Registry, cfg Config) http.HandlerFunc {
	cfg = cfg.withDefaults()
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: cfg.OriginPatterns,
		})
		if err != nil {
			cfg.Logger.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		c := &client{
			id:   uuid.NewString(),
			conn: conn,
			reg:  reg,
			out:  make(chan protocol.Message, cfg.OutboxSize),
			cfg:  cfg,
		}
		c.log = cfg.Logger.With(zap.String("conn", c.id))
		c.log.Debug("connected", zap.String("remote", r.RemoteAddr))

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		defer func() {
			// request context may already be gone
			leaveCtx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
			defer cancel()
			if err := reg.Leave(leaveCtx, c.id); err != nil {
				c.log.Warn("leave failed", zap.Error(err))
			}
			c.log.Debug("disconnected")
		}()

		go c.writeLoop(ctx)
		c.readLoop(ctx)
	}
}
