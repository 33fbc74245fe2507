package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/ragline/ragline/internal/model"
	"github.com/ragline/ragline/internal/pkg/dbutil"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

func (r *MessageRepo) Insert(ctx context.Context, m *model.Message) error {
	return r.insert(ctx, r.db, m)
}

func (r *MessageRepo) InsertTx(ctx context.Context, q DBTX, m *model.Message) error {
	return r.insert(ctx, q, m)
}

func (r *MessageRepo) insert(ctx context.Context, q DBTX, m *model.Message) error {
	const query = `
		INSERT INTO messages (conversation_id, sender_id, content, kind, status, attachment_url, attachment_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	var senderID sql.NullInt64
	if m.SenderID != nil {
		senderID = sql.NullInt64{Int64: *m.SenderID, Valid: true}
	}
	return q.QueryRowContext(ctx, query,
		m.ConversationID,
		senderID,
		m.Content,
		string(m.Kind),
		string(m.Status),
		m.AttachmentURL,
		m.AttachmentType,
		m.CreatedAt,
	).Scan(&m.ID)
}

func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID int64) ([]model.Message, error) {
	where := map[string]interface{}{
		"conversation_id": conversationID,
		"_orderby":        "created_at asc, id asc",
	}
	query, args, err := builder.BuildSelect("messages", where, []string{
		"id", "conversation_id", "sender_id", "content", "kind", "status",
		"attachment_url", "attachment_type", "created_at",
	})
	if err != nil {
		return nil, err
	}
	query, args = dbutil.Finalize(query, args)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []model.Message
	for rows.Next() {
		var m model.Message
		var senderID sql.NullInt64
		var kind, status string
		if err := rows.Scan(&m.ID, &m.ConversationID, &senderID, &m.Content, &kind, &status,
			&m.AttachmentURL, &m.AttachmentType, &m.CreatedAt); err != nil {
			return nil, err
		}
		if senderID.Valid {
			m.SenderID = &senderID.Int64
		}
		m.Kind = model.MessageKind(kind)
		m.Status = model.MessageStatus(status)
		items = append(items, m)
	}
	return items, rows.Err()
}
