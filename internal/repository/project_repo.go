package repository

import (
	"context"

	"github.com/arsalanrobotronics/famaserve-app-backend/internal/models"
)

type ProjectRepository struct {
	db DBTX
}

func NewProjectRepository(db DBTX) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) GetByID(ctx context.Context, id int64) (*models.Project, error) {
	query := `
		SELECT id, title, description, status, created_at, updated_at
		FROM projects
		WHERE id = $1
	`
	var project models.Project
	err := r.db.QueryRow(ctx, query, id).Scan(
		&project.ID, &project.Title, &project.Description, &project.Status,
		&project.CreatedAt, &project.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &project, nil
}
