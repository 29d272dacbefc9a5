package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/dbaas/internal/model"
)

// RootHistoryStore records the first root enablement per instance.
// Append-only: a second enable leaves the original record untouched.
type RootHistoryStore struct {
	db DB
}

func NewRootHistoryStore(db DB) *RootHistoryStore {
	return &RootHistoryStore{db: db}
}

// Record stores the enablement if no record exists yet and returns the
// surviving record either way.
func (s *RootHistoryStore) Record(ctx context.Context, instanceID, userID string) (*model.RootHistory, error) {
	_, err := s.db.Exec(ctx,
		`INSERT INTO root_history (instance_id, user_id, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (instance_id) DO NOTHING`,
		instanceID, userID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("record root history for %s: %w", instanceID, err)
	}
	return s.Get(ctx, instanceID)
}

// Get returns the record, or nil when root was never enabled.
func (s *RootHistoryStore) Get(ctx context.Context, instanceID string) (*model.RootHistory, error) {
	var h model.RootHistory
	err := s.db.QueryRow(ctx,
		`SELECT instance_id, user_id, created_at FROM root_history WHERE instance_id = $1`,
		instanceID,
	).Scan(&h.InstanceID, &h.UserID, &h.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get root history for %s: %w", instanceID, err)
	}
	return &h, nil
}
