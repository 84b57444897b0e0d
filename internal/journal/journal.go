package journal

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Kind string

const (
	KindGameStarted  Kind = "game_started"
	KindPlayerKilled Kind = "player_killed"
	KindRoomClosed   Kind = "room_closed"
)

type Entry struct {
	RoomCode string
	Kind     Kind
	PlayerID string
	Detail   string
	At       time.Time
}

// Recorder accepts entries without blocking the caller.
type Recorder interface {
	Record(e Entry)
}

type Nop struct{}

func (Nop) Record(Entry) {}

// Store persists a batch of entries.
type Store interface {
	Save(ctx context.Context, entries []Entry) error
	Close() error
}

type Writer struct {
	store      Store
	log        *zap.Logger
	in         chan Entry
	batchSize  int
	flushEvery time.Duration
}

func NewWriter(store Store, log *zap.Logger, buffer int) *Writer {
	if buffer <= 0 {
		buffer = 256
	}
	return &Writer{
		store:      store,
		log:        log,
		in:         make(chan Entry, buffer),
		batchSize:  32,
		flushEvery: time.Second,
	}
}

// Record queues e; when the queue is full the entry is dropped.
func (w *Writer) Record(e Entry) {
	select {
	case w.in <- e:
	default:
		w.log.Warn("journal queue full, dropping entry",
			zap.String("room", e.RoomCode), zap.String("kind", string(e.Kind)))
	}
}

// Run drains the queue into the store until ctx is done, then flushes what is
// left.
func (w *Writer) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.flushEvery)
	defer ticker.Stop()

	batch := make([]Entry, 0, w.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := w.store.Save(ctx, batch); err != nil {
			w.log.Error("journal save failed", zap.Int("entries", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case e := <-w.in:
					batch = append(batch, e)
				default:
					final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					flush(final)
					cancel()
					return nil
				}
			}

		case e := <-w.in:
			batch = append(batch, e)
			if len(batch) >= w.batchSize {
				flush(ctx)
			}

		case <-ticker.C:
			flush(ctx)
		}
	}
}
