package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"xcam-worker-go/internal/models"
)

type ActionRepository struct {
	db *sql.DB
}

func NewActionRepository(db *sql.DB) *ActionRepository {
	return &ActionRepository{db: db}
}

// Create inserts a new pending action.
func (r *ActionRepository) Create(ctx context.Context, action *models.Action) error {
	query := `
		INSERT INTO xcam_actions (id, command, additions, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(
		ctx,
		query,
		action.ID,
		action.Command,
		action.Additions,
		action.Status,
		action.CreatedAt,
		action.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create action: %w", err)
	}
	return nil
}

// ClaimableAction returns the next pending action, or nil when the queue is
// empty. order is "asc" for oldest first, anything else means newest first.
func (r *ActionRepository) ClaimableAction(ctx context.Context, order string) (*models.Action, error) {
	direction := "DESC"
	if order == "asc" {
		direction = "ASC"
	}
	query := fmt.Sprintf(`
		SELECT id, command, additions, status, created_at, updated_at
		FROM xcam_actions
		WHERE status = $1
		ORDER BY created_at %s
		LIMIT 1
	`, direction)

	var action models.Action
	err := r.db.QueryRowContext(ctx, query, models.ActionPending).Scan(
		&action.ID,
		&action.Command,
		&action.Additions,
		&action.Status,
		&action.CreatedAt,
		&action.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim action: %w", err)
	}
	return &action, nil
}

// UpdateStatus sets the action status and refreshes updated_at.
func (r *ActionRepository) UpdateStatus(ctx context.Context, id string, status models.ActionStatus) error {
	query := `
		UPDATE xcam_actions
		SET status = $1, updated_at = $2
		WHERE id = $3
	`
	_, err := r.db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update action status: %w", err)
	}
	return nil
}

// GetByID retrieves a single action.
func (r *ActionRepository) GetByID(ctx context.Context, id string) (*models.Action, error) {
	query := `
		SELECT id, command, additions, status, created_at, updated_at
		FROM xcam_actions
		WHERE id = $1
	`
	var action models.Action
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&action.ID,
		&action.Command,
		&action.Additions,
		&action.Status,
		&action.CreatedAt,
		&action.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("action not found")
		}
		return nil, fmt.Errorf("failed to get action: %w", err)
	}
	return &action, nil
}
