package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"collabdeck/pkg/logger"
)

type PostgresRepository struct {
	DB *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{DB: db}
}

func (r *PostgresRepository) Append(ctx context.Context, e *Entry) error {
	var details []byte
	if len(e.Details) > 0 {
		var err error
		if details, err = json.Marshal(e.Details); err != nil {
			return fmt.Errorf("encode activity details: %w", err)
		}
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO activities (id, scope, scope_id, actor_id, action_type, target_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, string(e.Scope), e.ScopeID, e.ActorID, string(e.ActionType), e.TargetID, details, e.CreatedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to append %s activity for %s %s: %v", e.ActionType, e.Scope, e.ScopeID, err)
	}
	return err
}

func (r *PostgresRepository) List(ctx context.Context, scope Scope, scopeID string, limit, offset int) ([]Entry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, scope, scope_id, actor_id, action_type, target_id, details, created_at
		FROM activities WHERE scope = $1 AND scope_id = $2
		ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4`,
		string(scope), scopeID, limit, offset)
	if err != nil {
		logger.Sugar.Errorf("Failed to list activity for %s %s: %v", scope, scopeID, err)
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var target sql.NullString
		var details []byte
		if err := rows.Scan(&e.ID, &e.Scope, &e.ScopeID, &e.ActorID, &e.ActionType, &target, &details, &e.CreatedAt); err != nil {
			return nil, err
		}
		if target.Valid {
			e.TargetID = &target.String
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				logger.Sugar.Warnf("Activity %s has undecodable details: %v", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
