package journal

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type event struct {
	ID        uint   `gorm:"primaryKey"`
	RoomCode  string `gorm:"size:16;index"`
	Kind      string `gorm:"size:32"`
	PlayerID  string `gorm:"size:64"`
	Detail    string
	CreatedAt time.Time
}

func (event) TableName() string { return "game_events" }

type GormStore struct {
	db *gorm.DB
}

func OpenPostgres(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	return NewGormStore(db)
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&event{}); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Save(ctx context.Context, entries []Entry) error {
	rows := make([]event, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, event{
			RoomCode:  e.RoomCode,
			Kind:      string(e.Kind),
			PlayerID:  e.PlayerID,
			Detail:    e.Detail,
			CreatedAt: e.At,
		})
	}
	return s.db.WithContext(ctx).Create(&rows).Error
}

// ForRoom returns a room's entries, oldest first.
func (s *GormStore) ForRoom(ctx context.Context, code string) ([]Entry, error) {
	var rows []event
	err := s.db.WithContext(ctx).
		Where("room_code = ?", code).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, Entry{RoomCode: r.RoomCode, Kind: Kind(r.Kind), PlayerID: r.PlayerID, Detail: r.Detail, At: r.CreatedAt})
	}
	return out, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
