package stores

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"acey/internal/database"

	gocache "github.com/patrickmn/go-cache"
)

const defaultTrustScore = 0.5

// TrustStore persists per-viewer trust scores in MySQL with a short-lived
// read cache in front.
type TrustStore struct {
	db    *database.DB
	cache *gocache.Cache
}

// NewTrustStore creates a trust store over the given database.
func NewTrustStore(db *database.DB) *TrustStore {
	return &TrustStore{
		db:    db,
		cache: gocache.New(30*time.Second, time.Minute),
	}
}

// UpdateUserTrustScore applies a delta to a viewer's trust score, clamped
// to [0,1], and returns the new score. The adjustment itself is recorded
// for later review.
func (s *TrustStore) UpdateUserTrustScore(ctx context.Context, userID string, delta float64, reason string) (float64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin trust update: %w", err)
	}
	defer tx.Rollback()

	current := defaultTrustScore
	err = tx.QueryRowContext(ctx, `SELECT score FROM trust_scores WHERE user_id = ? FOR UPDATE`, userID).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to read trust score for %s: %w", userID, err)
	}

	next := current + delta
	if next > 1 {
		next = 1
	}
	if next < 0 {
		next = 0
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO trust_scores (user_id, score) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE score = VALUES(score)`, userID, next)
	if err != nil {
		return 0, fmt.Errorf("failed to update trust score for %s: %w", userID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO trust_adjustments (user_id, delta, reason) VALUES (?, ?, ?)`,
		userID, delta, reason)
	if err != nil {
		return 0, fmt.Errorf("failed to record trust adjustment for %s: %w", userID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit trust update: %w", err)
	}

	s.cache.Set(userID, next, gocache.DefaultExpiration)
	return next, nil
}

// GetTrustScore returns a viewer's trust score, defaulting to 0.5 for
// unknown viewers.
func (s *TrustStore) GetTrustScore(ctx context.Context, userID string) (float64, error) {
	if cached, ok := s.cache.Get(userID); ok {
		return cached.(float64), nil
	}

	score := defaultTrustScore
	err := s.db.QueryRowContext(ctx, `SELECT score FROM trust_scores WHERE user_id = ?`, userID).Scan(&score)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to read trust score for %s: %w", userID, err)
	}

	s.cache.Set(userID, score, gocache.DefaultExpiration)
	return score, nil
}
