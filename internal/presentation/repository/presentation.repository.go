package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"collabdeck/internal/presentation/model"
	"collabdeck/pkg/logger"
)

// PresentationRepository stores each presentation as one JSONB document with a
// version column used for compare-and-swap writes.
type PresentationRepository struct {
	DB *sql.DB
}

func NewPresentationRepository(db *sql.DB) *PresentationRepository {
	return &PresentationRepository{DB: db}
}

func (r *PresentationRepository) Create(ctx context.Context, p *model.Presentation) error {
	p.Version = 1
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode presentation %s: %w", p.ID, err)
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO presentations (id, title, creator_id, team_id, data, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.Title, p.CreatorID, p.TeamID, data, p.Version, p.CreatedAt, p.LastUpdatedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to create presentation %s: %v", p.ID, err)
	}
	return err
}

func (r *PresentationRepository) Load(ctx context.Context, id string) (*model.Presentation, error) {
	var data []byte
	var version int64
	err := r.DB.QueryRowContext(ctx, "SELECT data, version FROM presentations WHERE id = $1 AND deleted = FALSE", id).Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to load presentation %s: %v", id, err)
		return nil, err
	}

	var p model.Presentation
	if err := json.Unmarshal(data, &p); err != nil {
		logger.Sugar.Errorf("Failed to decode presentation %s: %v", id, err)
		return nil, fmt.Errorf("decode presentation %s: %w", id, err)
	}
	p.Version = version
	return &p, nil
}

func (r *PresentationRepository) Save(ctx context.Context, p *model.Presentation) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode presentation %s: %w", p.ID, err)
	}
	result, err := r.DB.ExecContext(ctx, `UPDATE presentations
		SET title = $1, team_id = $2, data = $3, version = version + 1, updated_at = $4
		WHERE id = $5 AND version = $6 AND deleted = FALSE`,
		p.Title, p.TeamID, data, p.LastUpdatedAt, p.ID, p.Version)
	if err != nil {
		logger.Sugar.Errorf("Failed to save presentation %s: %v", p.ID, err)
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either a concurrent writer advanced the version or the row is gone;
		// the retry's fresh Load tells the two apart.
		return ErrVersionConflict
	}
	p.Version++
	return nil
}

func (r *PresentationRepository) ListForUser(ctx context.Context, userID string) ([]model.Summary, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT data, version FROM presentations
		WHERE deleted = FALSE AND (creator_id = $1 OR data->'access' ? $1)
		ORDER BY updated_at DESC`, userID)
	if err != nil {
		logger.Sugar.Errorf("Failed to list presentations for user %s: %v", userID, err)
		return nil, err
	}
	defer rows.Close()

	out := []model.Summary{}
	for rows.Next() {
		var data []byte
		var p model.Presentation
		if err := rows.Scan(&data, &p.Version); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &p); err != nil {
			logger.Sugar.Warnf("Skipping undecodable presentation row: %v", err)
			continue
		}
		out = append(out, p.Summarize(userID))
	}
	return out, rows.Err()
}

func (r *PresentationRepository) SoftDelete(ctx context.Context, id string) error {
	result, err := r.DB.ExecContext(ctx, "UPDATE presentations SET deleted = TRUE, version = version + 1, updated_at = NOW() WHERE id = $1 AND deleted = FALSE", id)
	if err != nil {
		logger.Sugar.Errorf("Failed to soft delete presentation %s: %v", id, err)
		return err
	}
	return expectOneRow(result, id)
}

func (r *PresentationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.DB.ExecContext(ctx, "DELETE FROM presentations WHERE id = $1", id)
	if err != nil {
		logger.Sugar.Errorf("Failed to delete presentation %s: %v", id, err)
		return err
	}
	return expectOneRow(result, id)
}

func expectOneRow(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
