package repository

import (
	"context"

	"github.com/arsalanrobotronics/famaserve-app-backend/internal/models"
)

// UserRepository is a read-only participant directory. Account creation and
// credential checks belong to the identity service that owns the users table.
type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `
		SELECT id, email, password_hash, role, full_name, avatar_url, company_name, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	var user models.User
	err := r.db.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Role,
		&user.FullName, &user.AvatarURL, &user.CompanyName,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
