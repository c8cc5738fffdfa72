// Package postgres provides a gorm-backed game repository for PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/asfreeas-aatto/aatto/internal/storage"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type GameSession struct {
	ID               string    `gorm:"primaryKey;size:64"`
	Mode             string    `gorm:"size:16;not null"`
	Theme            string    `gorm:"size:64;not null"`
	PlayerOneID      string    `gorm:"size:64;not null;index"`
	PlayerTwoID      string    `gorm:"size:64;not null;index"`
	Status           string    `gorm:"size:16;not null;default:'active'"`
	TimeLimitSeconds int       `gorm:"not null;default:0"`
	WinnerID         string    `gorm:"size:64"`
	CreatedAt        time.Time `gorm:"index"`
	EndedAt          *time.Time
	Poems            []Poem `gorm:"foreignKey:SessionID"`
}

type Poem struct {
	ID            string    `gorm:"primaryKey;size:64"`
	SessionID     string    `gorm:"size:64;not null;uniqueIndex:idx_poem_session_participant"`
	ParticipantID string    `gorm:"size:64;not null;uniqueIndex:idx_poem_session_participant"`
	Theme         string    `gorm:"size:64;not null"`
	Line1         string    `gorm:"size:200;not null"`
	Line2         string    `gorm:"size:200;not null"`
	Line3         string    `gorm:"size:200;not null"`
	Votes         int       `gorm:"not null;default:0"`
	CreatedAt     time.Time
}

type PoemVote struct {
	SessionID string `gorm:"primaryKey;size:64"`
	VoterID   string `gorm:"primaryKey;size:128"`
	PoemID    string `gorm:"size:64;not null;index"`
	CreatedAt time.Time
}

// Store persists games through gorm.
type Store struct {
	db *gorm.DB
}

var (
	_ storage.Repository = (*Store)(nil)
	_ storage.Reader     = (*Store)(nil)
)

// Open connects to dsn and migrates the game tables.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := db.AutoMigrate(&GameSession{}, &Poem{}, &PoemVote{}); err != nil {
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) CreateSession(ctx context.Context, rec storage.SessionRecord) (string, error) {
	status := rec.Status
	if status == "" {
		status = storage.StatusActive
	}
	row := GameSession{
		ID:               rec.ID,
		Mode:             rec.Mode,
		Theme:            rec.Theme,
		PlayerOneID:      rec.PlayerIDs[0],
		PlayerTwoID:      rec.PlayerIDs[1],
		Status:           status,
		TimeLimitSeconds: int(rec.TimeLimit / time.Second),
		CreatedAt:        rec.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", translate("create session", err)
	}
	return row.ID, nil
}

func (s *Store) AppendSubmission(ctx context.Context, rec storage.SubmissionRecord) (string, error) {
	row := Poem{
		ID:            rec.ID,
		SessionID:     rec.SessionID,
		ParticipantID: rec.ParticipantID,
		Theme:         rec.Theme,
		Line1:         rec.Lines[0],
		Line2:         rec.Lines[1],
		Line3:         rec.Lines[2],
		CreatedAt:     rec.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", translate("append poem", err)
	}
	return row.ID, nil
}

func (s *Store) AppendVote(ctx context.Context, rec storage.VoteRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		vote := PoemVote{SessionID: rec.SessionID, VoterID: rec.VoterID, PoemID: rec.SubmissionID, CreatedAt: rec.CreatedAt}
		if err := tx.Create(&vote).Error; err != nil {
			return translate("append vote", err)
		}
		res := tx.Model(&Poem{}).
			Where("id = ? AND session_id = ?", rec.SubmissionID, rec.SessionID).
			Update("votes", gorm.Expr("votes + 1"))
		if res.Error != nil {
			return fmt.Errorf("count vote: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
}

func (s *Store) FinalizeSession(ctx context.Context, sessionID, winnerID string, endedAt time.Time) error {
	res := s.db.WithContext(ctx).Model(&GameSession{}).
		Where("id = ?", sessionID).
		Updates(map[string]any{"status": storage.StatusFinished, "winner_id": winnerID, "ended_at": endedAt})
	if res.Error != nil {
		return fmt.Errorf("finalize session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (storage.SessionRecord, error) {
	var row GameSession
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return storage.SessionRecord{}, translate("get session", err)
	}
	rec := storage.SessionRecord{
		ID:        row.ID,
		Mode:      row.Mode,
		Theme:     row.Theme,
		PlayerIDs: [2]string{row.PlayerOneID, row.PlayerTwoID},
		Status:    row.Status,
		TimeLimit: time.Duration(row.TimeLimitSeconds) * time.Second,
		WinnerID:  row.WinnerID,
		CreatedAt: row.CreatedAt,
	}
	if row.EndedAt != nil {
		rec.EndedAt = *row.EndedAt
	}
	return rec, nil
}

func (s *Store) ListSubmissions(ctx context.Context, sessionID string) ([]storage.SubmissionRecord, error) {
	var rows []Poem
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("votes DESC, created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list poems: %w", err)
	}
	out := make([]storage.SubmissionRecord, 0, len(rows))
	for _, p := range rows {
		out = append(out, storage.SubmissionRecord{
			ID:            p.ID,
			SessionID:     p.SessionID,
			ParticipantID: p.ParticipantID,
			Theme:         p.Theme,
			Lines:         [3]string{p.Line1, p.Line2, p.Line3},
			Votes:         p.Votes,
			CreatedAt:     p.CreatedAt,
		})
	}
	return out, nil
}

func translate(op string, err error) error {
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return storage.ErrAlreadyExists
	case errors.Is(err, gorm.ErrRecordNotFound):
		return storage.ErrNotFound
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
