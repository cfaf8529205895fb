package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pathforge/pathforge-api/internal/domain"
	"github.com/pathforge/pathforge-api/internal/platform/logger"
	"github.com/pathforge/pathforge-api/internal/store"
)

// PostgresProfileStore implements the store.ProfileStore interface.
// Profile snapshots are written by the profile provider; the engine only
// ever reads the latest one per learner.
type PostgresProfileStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresProfileStore creates a new PostgreSQL implementation of the
// ProfileStore interface. If logger is nil, a default logger will be used.
func NewPostgresProfileStore(db store.DBTX, logger *slog.Logger) *PostgresProfileStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresProfileStore{
		db:     db,
		logger: logger.With(slog.String("component", "profile_store")),
	}
}

// Ensure PostgresProfileStore implements store.ProfileStore interface
var _ store.ProfileStore = (*PostgresProfileStore)(nil)

// GetLatest implements store.ProfileStore.GetLatest
func (s *PostgresProfileStore) GetLatest(ctx context.Context, learnerID uuid.UUID) (*domain.Profile, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, learner_id, preferences, strengths, difficulties, created_at
		FROM profiles
		WHERE learner_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	var profile domain.Profile
	var preferences, strengths, difficulties []byte

	err := s.db.QueryRowContext(ctx, query, learnerID).Scan(
		&profile.ID,
		&profile.LearnerID,
		&preferences,
		&strengths,
		&difficulties,
		&profile.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("no profile snapshot for learner", slog.String("learner_id", learnerID.String()))
			return nil, store.ErrProfileNotFound
		}
		log.Error("failed to get latest profile",
			slog.String("error", err.Error()),
			slog.String("learner_id", learnerID.String()))
		return nil, err
	}

	if len(preferences) > 0 {
		if err := json.Unmarshal(preferences, &profile.Preferences); err != nil {
			return nil, fmt.Errorf("failed to decode profile preferences: %w", err)
		}
	}
	if len(strengths) > 0 {
		if err := json.Unmarshal(strengths, &profile.Strengths); err != nil {
			return nil, fmt.Errorf("failed to decode profile strengths: %w", err)
		}
	}
	if len(difficulties) > 0 {
		if err := json.Unmarshal(difficulties, &profile.Difficulties); err != nil {
			return nil, fmt.Errorf("failed to decode profile difficulties: %w", err)
		}
	}
	return &profile, nil
}
