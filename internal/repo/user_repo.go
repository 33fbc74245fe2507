package repo

import (
	"context"
	"database/sql"

	"github.com/ragline/ragline/internal/model"
	"github.com/ragline/ragline/internal/pkg/dbutil"
	appErr "github.com/ragline/ragline/internal/pkg/errors"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	const query = `SELECT id, username, created_at FROM users WHERE username = $1`
	row := r.db.QueryRowContext(ctx, query, username)
	var user model.User
	if err := row.Scan(&user.ID, &user.Username, &user.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepo) Create(ctx context.Context, username string, now int64) (*model.User, error) {
	const query = `INSERT INTO users (username, created_at) VALUES ($1, $2) RETURNING id`
	var id int64
	if err := r.db.QueryRowContext(ctx, query, username, now).Scan(&id); err != nil {
		if dbutil.IsConflict(err) {
			return nil, appErr.ErrConflict
		}
		return nil, err
	}
	return &model.User{ID: id, Username: username, CreatedAt: now}, nil
}
