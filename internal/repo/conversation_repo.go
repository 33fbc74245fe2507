package repo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/didi/gendry/builder"

	"github.com/ragline/ragline/internal/model"
	"github.com/ragline/ragline/internal/pkg/dbutil"
	appErr "github.com/ragline/ragline/internal/pkg/errors"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

func (r *ConversationRepo) GetByID(ctx context.Context, id int64) (*model.Conversation, error) {
	return r.getByID(ctx, r.db, id)
}

func (r *ConversationRepo) GetByIDTx(ctx context.Context, q DBTX, id int64) (*model.Conversation, error) {
	return r.getByID(ctx, q, id)
}

func (r *ConversationRepo) getByID(ctx context.Context, q DBTX, id int64) (*model.Conversation, error) {
	const query = `SELECT id, user_id, title, started_at FROM conversations WHERE id = $1`
	return scanConversation(q.QueryRowContext(ctx, query, id))
}

// LatestByUserTx returns the conversation the user most recently started.
func (r *ConversationRepo) LatestByUserTx(ctx context.Context, q DBTX, userID int64) (*model.Conversation, error) {
	const query = `
		SELECT id, user_id, title, started_at
		FROM conversations
		WHERE user_id = $1
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`
	return scanConversation(q.QueryRowContext(ctx, query, userID))
}

func (r *ConversationRepo) CreateTx(ctx context.Context, q DBTX, userID int64, title string, startedAt int64) (*model.Conversation, error) {
	const query = `INSERT INTO conversations (user_id, title, started_at) VALUES ($1, $2, $3) RETURNING id`
	var id int64
	if err := q.QueryRowContext(ctx, query, userID, title, startedAt).Scan(&id); err != nil {
		return nil, err
	}
	return &model.Conversation{ID: id, UserID: userID, Title: title, StartedAt: startedAt}, nil
}

func (r *ConversationRepo) ListByUser(ctx context.Context, userID int64) ([]model.Conversation, error) {
	where := map[string]interface{}{
		"user_id":  userID,
		"_orderby": "started_at desc, id desc",
	}
	query, args, err := builder.BuildSelect("conversations", where, []string{"id", "user_id", "title", "started_at"})
	if err != nil {
		return nil, err
	}
	query, args = dbutil.Finalize(query, args)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []model.Conversation
	for rows.Next() {
		var conv model.Conversation
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.StartedAt); err != nil {
			return nil, err
		}
		items = append(items, conv)
	}
	return items, rows.Err()
}

// UpdateTitleIfPlaceholder swaps the title only while it is still the
// placeholder (case- and whitespace-insensitive) or empty. Reports whether
// the row changed, so racing title generations emit at most one update.
func (r *ConversationRepo) UpdateTitleIfPlaceholder(ctx context.Context, id int64, title string) (bool, error) {
	const query = `
		UPDATE conversations
		SET title = $1
		WHERE id = $2
		  AND (LOWER(BTRIM(title)) = $3 OR BTRIM(title) = '')
	`
	res, err := r.db.ExecContext(ctx, query, title, id, strings.ToLower(model.PlaceholderTitle))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *ConversationRepo) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM conversations WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func scanConversation(row *sql.Row) (*model.Conversation, error) {
	var conv model.Conversation
	if err := row.Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.StartedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return &conv, nil
}
