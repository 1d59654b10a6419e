package stores

import (
	"context"
	"fmt"
	"time"

	"acey/internal/database"
)

// Moderation action names as stored.
const (
	ActionShadowBan = "shadow_ban"
	ActionRateLimit = "rate_limit"
	ActionFilter    = "filter"
)

// ModerationStore records moderation actions against viewers.
type ModerationStore struct {
	db *database.DB
}

// NewModerationStore creates a moderation store over the given database.
func NewModerationStore(db *database.DB) *ModerationStore {
	return &ModerationStore{db: db}
}

// ShadowBanUser hides a viewer's messages for the given duration.
func (s *ModerationStore) ShadowBanUser(ctx context.Context, userID string, duration time.Duration) error {
	return s.record(ctx, userID, ActionShadowBan, duration)
}

// RateLimitUser throttles a viewer's messages for the given duration.
func (s *ModerationStore) RateLimitUser(ctx context.Context, userID string, duration time.Duration) error {
	return s.record(ctx, userID, ActionRateLimit, duration)
}

// FilterUserContent filters a viewer's messages for the given duration.
func (s *ModerationStore) FilterUserContent(ctx context.Context, userID string, duration time.Duration) error {
	return s.record(ctx, userID, ActionFilter, duration)
}

func (s *ModerationStore) record(ctx context.Context, userID, action string, duration time.Duration) error {
	expires := time.Now().Add(duration)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO moderation_actions (user_id, action, duration_s, expires_at)
		VALUES (?, ?, ?, ?)`,
		userID, action, int64(duration.Seconds()), expires)
	if err != nil {
		return fmt.Errorf("failed to record %s for %s: %w", action, userID, err)
	}
	return nil
}

// ActiveActions returns the actions currently in force against a viewer.
func (s *ModerationStore) ActiveActions(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT action FROM moderation_actions
		WHERE user_id = ? AND expires_at > NOW()`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list moderation actions for %s: %w", userID, err)
	}
	defer rows.Close()

	var actions []string
	for rows.Next() {
		var action string
		if err := rows.Scan(&action); err != nil {
			return nil, fmt.Errorf("failed to scan moderation action: %w", err)
		}
		actions = append(actions, action)
	}
	return actions, rows.Err()
}
