// Package repository provides data access for projects and predicate devices.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/regassist/backend/internal/model"
)

// ProjectRepository provides data access for projects.
type ProjectRepository struct {
	db *sql.DB
}

// NewProjectRepository creates a new ProjectRepository.
func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create inserts a new project into the database.
func (r *ProjectRepository) Create(ctx context.Context, project *model.Project) error {
	query := `
		INSERT INTO projects (id, user_id, name, device_name, device_class, intended_use, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		project.ID,
		project.UserID,
		project.Name,
		project.DeviceName,
		project.DeviceClass,
		project.IntendedUse,
		project.Status,
		project.CreatedAt,
		project.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	return nil
}

// GetByID retrieves a project by its ID.
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*model.Project, error) {
	query := `
		SELECT id, user_id, name, device_name, device_class, intended_use, status, created_at, updated_at
		FROM projects
		WHERE id = ?
	`

	project := &model.Project{}
	var intendedUse sql.NullString

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&project.ID,
		&project.UserID,
		&project.Name,
		&project.DeviceName,
		&project.DeviceClass,
		&intendedUse,
		&project.Status,
		&project.CreatedAt,
		&project.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, model.ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	if intendedUse.Valid {
		project.IntendedUse = intendedUse.String
	}

	return project, nil
}

// List retrieves all projects for a user, most recently created first.
func (r *ProjectRepository) List(ctx context.Context, userID string) ([]*model.Project, error) {
	query := `
		SELECT id, user_id, name, device_name, device_class, intended_use, status, created_at, updated_at
		FROM projects
		WHERE user_id = ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*model.Project
	for rows.Next() {
		project := &model.Project{}
		var intendedUse sql.NullString

		err := rows.Scan(
			&project.ID,
			&project.UserID,
			&project.Name,
			&project.DeviceName,
			&project.DeviceClass,
			&intendedUse,
			&project.Status,
			&project.CreatedAt,
			&project.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}

		if intendedUse.Valid {
			project.IntendedUse = intendedUse.String
		}

		projects = append(projects, project)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}

	return projects, nil
}

// Update persists the mutable fields of a project.
func (r *ProjectRepository) Update(ctx context.Context, project *model.Project) error {
	query := `
		UPDATE projects
		SET name = ?, device_name = ?, device_class = ?, intended_use = ?, status = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		project.Name,
		project.DeviceName,
		project.DeviceClass,
		project.IntendedUse,
		project.Status,
		time.Now(),
		project.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return model.ErrProjectNotFound
	}

	return nil
}

// Delete removes a project from the database.
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM projects WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return model.ErrProjectNotFound
	}

	return nil
}

// CountByStatus returns the number of a user's projects in the given status.
func (r *ProjectRepository) CountByStatus(ctx context.Context, userID string, status model.ProjectStatus) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM projects
		WHERE user_id = ? AND status = ?
	`

	var count int
	err := r.db.QueryRowContext(ctx, query, userID, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count projects: %w", err)
	}

	return count, nil
}

// Exists checks if a project exists.
func (r *ProjectRepository) Exists(ctx context.Context, id string) (bool, error) {
	query := `SELECT 1 FROM projects WHERE id = ? LIMIT 1`

	var exists int
	err := r.db.QueryRowContext(ctx, query, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check project existence: %w", err)
	}

	return true, nil
}
