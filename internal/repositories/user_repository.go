package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"syncup-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository abstracts user persistence.
type UserRepository interface {
	GetUser(ctx context.Context, userID int64) (models.User, error)
	GetUsers(ctx context.Context, ids []int64) ([]models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	AllExist(ctx context.Context, ids []int64) (bool, error)
	SetOnline(ctx context.Context, userID int64, online bool) error
	SetAvatar(ctx context.Context, userID int64, avatarURL string) error
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetUser fetches a user by id.
func (r *UserRepo) GetUser(ctx context.Context, userID int64) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT id, username, full_name, avatar_url, is_online, created_at FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetUsers fetches multiple users in one round-trip.
func (r *UserRepo) GetUsers(ctx context.Context, ids []int64) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	var users []models.User
	err := r.db.SelectContext(ctx, &users, `SELECT id, username, full_name, avatar_url, is_online, created_at FROM users WHERE id = ANY($1)`, pq.Array(ids))
	return users, err
}

// ListUsers returns every registered user for the contact list.
func (r *UserRepo) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.db.SelectContext(ctx, &users, `SELECT id, username, full_name, avatar_url, is_online, created_at FROM users ORDER BY username ASC`)
	return users, err
}

// AllExist reports whether every id resolves to a user.
func (r *UserRepo) AllExist(ctx context.Context, ids []int64) (bool, error) {
	if len(ids) == 0 {
		return true, nil
	}
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM users WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return false, err
	}
	return count == len(ids), nil
}

// SetOnline flips the derived presence flag.
func (r *UserRepo) SetOnline(ctx context.Context, userID int64, online bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET is_online=$2 WHERE id=$1`, userID, online)
	return err
}

// SetAvatar updates the profile avatar reference.
func (r *UserRepo) SetAvatar(ctx context.Context, userID int64, avatarURL string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET avatar_url=$2 WHERE id=$1`, userID, avatarURL)
	return err
}
