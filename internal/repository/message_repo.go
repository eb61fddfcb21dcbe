package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/arsalanrobotronics/famaserve-app-backend/internal/models"
)

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

const messageColumns = `
	id, conversation_id, sender_id, message_type,
	content, document_url, document_name, document_size,
	is_read, read_at, is_edited, edited_at, is_deleted, deleted_at,
	created_at, updated_at
`

func scanMessage(row pgx.Row, m *models.Message) error {
	return row.Scan(
		&m.ID, &m.ConversationID, &m.SenderID, &m.Type,
		&m.Content, &m.DocumentURL, &m.DocumentName, &m.DocumentSize,
		&m.IsRead, &m.ReadAt, &m.IsEdited, &m.EditedAt, &m.IsDeleted, &m.DeletedAt,
		&m.CreatedAt, &m.UpdatedAt,
	)
}

type CreateMessageInput struct {
	ConversationID int64
	SenderID       int64
	Type           string
	Content        *string
	DocumentURL    *string
	DocumentName   *string
	DocumentSize   *int64
}

func (r *MessageRepository) Create(ctx context.Context, input CreateMessageInput) (*models.Message, error) {
	query := `
		INSERT INTO messages (conversation_id, sender_id, message_type, content, document_url, document_name, document_size)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + messageColumns

	var message models.Message
	err := scanMessage(r.db.QueryRow(ctx, query,
		input.ConversationID, input.SenderID, input.Type,
		input.Content, input.DocumentURL, input.DocumentName, input.DocumentSize,
	), &message)
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *MessageRepository) GetByID(ctx context.Context, messageID int64) (*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE id = $1
	`

	var message models.Message
	if err := scanMessage(r.db.QueryRow(ctx, query, messageID), &message); err != nil {
		return nil, err
	}
	return &message, nil
}

// ListByConversation returns non-deleted messages newest first plus the total
// non-deleted count. Callers reverse the page for display order.
func (r *MessageRepository) ListByConversation(
	ctx context.Context,
	conversationID int64,
	limit int,
	offset int,
) ([]models.Message, int, error) {
	totalQuery := `
		SELECT COUNT(*)
		FROM messages
		WHERE conversation_id = $1 AND is_deleted = FALSE
	`

	var total int
	if err := r.db.QueryRow(ctx, totalQuery, conversationID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1 AND is_deleted = FALSE
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, conversationID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var message models.Message
		if err := scanMessage(rows, &message); err != nil {
			return nil, 0, err
		}
		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return messages, total, nil
}

// ListUnreadIDs returns ids of unread non-deleted messages in the
// conversation not authored by readerID, oldest first.
func (r *MessageRepository) ListUnreadIDs(
	ctx context.Context,
	conversationID int64,
	readerID int64,
) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id
		FROM messages
		WHERE conversation_id = $1
		  AND sender_id <> $2
		  AND is_read = FALSE
		  AND is_deleted = FALSE
		ORDER BY created_at ASC, id ASC
	`, conversationID, readerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkConversationRead bulk-sets read state on every unread message in the
// conversation authored by someone other than readerID.
func (r *MessageRepository) MarkConversationRead(
	ctx context.Context,
	conversationID int64,
	readerID int64,
) error {
	_, err := r.db.Exec(ctx, `
		UPDATE messages
		SET is_read = TRUE, read_at = NOW(), updated_at = NOW()
		WHERE conversation_id = $1
		  AND sender_id <> $2
		  AND is_read = FALSE
		  AND is_deleted = FALSE
	`, conversationID, readerID)
	return err
}

// MarkOneRead conditionally marks a single message read and reports whether
// a row actually changed, so callers can skip broadcasting on a no-op.
func (r *MessageRepository) MarkOneRead(
	ctx context.Context,
	conversationID int64,
	messageID int64,
	readerID int64,
) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE messages
		SET is_read = TRUE, read_at = NOW(), updated_at = NOW()
		WHERE id = $1
		  AND conversation_id = $2
		  AND sender_id <> $3
		  AND is_read = FALSE
		  AND is_deleted = FALSE
	`, messageID, conversationID, readerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SoftDelete flags the message deleted if requesterID is its sender and it is
// not already deleted. Reports whether a row changed.
func (r *MessageRepository) SoftDelete(
	ctx context.Context,
	messageID int64,
	requesterID int64,
) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE messages
		SET is_deleted = TRUE, deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1
		  AND sender_id = $2
		  AND is_deleted = FALSE
	`, messageID, requesterID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Edit replaces the content of a text message owned by requesterID and marks
// it edited. Returns pgx.ErrNoRows when no eligible row matches.
func (r *MessageRepository) Edit(
	ctx context.Context,
	messageID int64,
	requesterID int64,
	content string,
) (*models.Message, error) {
	query := `
		UPDATE messages
		SET content = $3, is_edited = TRUE, edited_at = NOW(), updated_at = NOW()
		WHERE id = $1
		  AND sender_id = $2
		  AND message_type = 'text'
		  AND is_deleted = FALSE
		RETURNING ` + messageColumns

	var message models.Message
	if err := scanMessage(r.db.QueryRow(ctx, query, messageID, requesterID, content), &message); err != nil {
		return nil, err
	}
	return &message, nil
}
