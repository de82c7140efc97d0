package repository

import (
	"context"
	"errors"

	"github.com/abenezerw/gebeya/internal/models"
	"github.com/abenezerw/gebeya/internal/repository/postgres"
	"github.com/jackc/pgx/v5"
)

const (
	selectUserByIDQuery = `
						SELECT id, email FROM users
						WHERE id = $1
`
)

// UserRepository implements UserRepository interface
type UserRepository struct {
	db *postgres.DB
}

// NewUserRepository creates new UserRepository instance
func NewUserRepository(db *postgres.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetUserByID returns user by id
func (ur *UserRepository) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	user := models.User{}
	err := ur.db.QueryRow(ctx, selectUserByIDQuery, userID).Scan(&user.ID, &user.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, err
	}

	return &user, nil
}
