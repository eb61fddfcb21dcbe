package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/arsalanrobotronics/famaserve-app-backend/internal/models"
)

type ConversationRepository struct {
	db DBTX
}

func NewConversationRepository(db DBTX) *ConversationRepository {
	return &ConversationRepository{db: db}
}

const conversationColumns = `
	id, project_id, tradie_id, builder_id, status,
	last_message, last_message_at, tradie_unread, builder_unread,
	created_at, updated_at
`

func scanConversation(row pgx.Row, c *models.Conversation) error {
	return row.Scan(
		&c.ID, &c.ProjectID, &c.TradieID, &c.BuilderID, &c.Status,
		&c.LastMessage, &c.LastMessageAt, &c.TradieUnread, &c.BuilderUnread,
		&c.CreatedAt, &c.UpdatedAt,
	)
}

// CreateOrGet inserts a conversation for the (project, tradie, builder)
// triple, returning the existing row untouched when one is already there.
func (r *ConversationRepository) CreateOrGet(
	ctx context.Context,
	projectID int64,
	tradieID int64,
	builderID int64,
) (*models.Conversation, error) {
	query := `
		INSERT INTO conversations (project_id, tradie_id, builder_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, tradie_id, builder_id)
		DO UPDATE SET updated_at = conversations.updated_at
		RETURNING ` + conversationColumns

	var conversation models.Conversation
	if err := scanConversation(r.db.QueryRow(ctx, query, projectID, tradieID, builderID), &conversation); err != nil {
		return nil, err
	}
	return &conversation, nil
}

func (r *ConversationRepository) GetByTriple(
	ctx context.Context,
	projectID int64,
	tradieID int64,
	builderID int64,
) (*models.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE project_id = $1 AND tradie_id = $2 AND builder_id = $3
	`

	var conversation models.Conversation
	if err := scanConversation(r.db.QueryRow(ctx, query, projectID, tradieID, builderID), &conversation); err != nil {
		return nil, err
	}
	return &conversation, nil
}

// GetByIDForParticipant returns pgx.ErrNoRows both when the conversation does
// not exist and when the caller is not a participant, so absence and denial
// are indistinguishable to the caller.
func (r *ConversationRepository) GetByIDForParticipant(
	ctx context.Context,
	conversationID int64,
	participantID int64,
) (*models.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE id = $1 AND (tradie_id = $2 OR builder_id = $2)
	`

	var conversation models.Conversation
	if err := scanConversation(r.db.QueryRow(ctx, query, conversationID, participantID), &conversation); err != nil {
		return nil, err
	}
	return &conversation, nil
}

// ListForParticipant returns the user's conversations with project and
// participant identity resolved, newest activity first. projectID = 0 means
// no project filter.
func (r *ConversationRepository) ListForParticipant(
	ctx context.Context,
	participantID int64,
	status string,
	projectID int64,
	limit int,
	offset int,
) ([]models.ConversationSummary, int, error) {
	countQuery := `
		SELECT COUNT(*)
		FROM conversations c
		WHERE (c.tradie_id = $1 OR c.builder_id = $1)
		  AND c.status = $2
		  AND ($3 = 0 OR c.project_id = $3)
	`

	var total int
	if err := r.db.QueryRow(ctx, countQuery, participantID, status, projectID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT
			c.id, c.project_id, c.tradie_id, c.builder_id, c.status,
			c.last_message, c.last_message_at, c.tradie_unread, c.builder_unread,
			c.created_at, c.updated_at,
			p.title, p.status,
			t.full_name, t.avatar_url, t.company_name,
			b.full_name, b.avatar_url, b.company_name
		FROM conversations c
		JOIN projects p ON p.id = c.project_id
		JOIN users t ON t.id = c.tradie_id
		JOIN users b ON b.id = c.builder_id
		WHERE (c.tradie_id = $1 OR c.builder_id = $1)
		  AND c.status = $2
		  AND ($3 = 0 OR c.project_id = $3)
		ORDER BY c.last_message_at DESC, c.id DESC
		LIMIT $4 OFFSET $5
	`

	rows, err := r.db.Query(ctx, query, participantID, status, projectID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	summaries := make([]models.ConversationSummary, 0)
	for rows.Next() {
		var summary models.ConversationSummary
		project := &models.ProjectRef{}
		tradie := &models.Participant{Role: models.RoleTradie}
		builder := &models.Participant{Role: models.RoleBuilder}

		if err := rows.Scan(
			&summary.ID, &summary.ProjectID, &summary.TradieID, &summary.BuilderID, &summary.Status,
			&summary.LastMessage, &summary.LastMessageAt, &summary.TradieUnread, &summary.BuilderUnread,
			&summary.CreatedAt, &summary.UpdatedAt,
			&project.Title, &project.Status,
			&tradie.FullName, &tradie.AvatarURL, &tradie.CompanyName,
			&builder.FullName, &builder.AvatarURL, &builder.CompanyName,
		); err != nil {
			return nil, 0, err
		}

		project.ID = summary.ProjectID
		tradie.ID = summary.TradieID
		builder.ID = summary.BuilderID
		summary.Project = project
		summary.Tradie = tradie
		summary.Builder = builder
		summary.UnreadCount = summary.UnreadFor(participantID)

		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return summaries, total, nil
}

// RecordOutgoingMessage updates the last-message summary and bumps the
// recipient's unread counter in a single atomic statement.
func (r *ConversationRepository) RecordOutgoingMessage(
	ctx context.Context,
	conversationID int64,
	senderID int64,
	summary string,
) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET last_message = $3,
		    last_message_at = NOW(),
		    updated_at = NOW(),
		    tradie_unread = tradie_unread + CASE WHEN builder_id = $2 THEN 1 ELSE 0 END,
		    builder_unread = builder_unread + CASE WHEN tradie_id = $2 THEN 1 ELSE 0 END
		WHERE id = $1
	`, conversationID, senderID, summary)
	return err
}

// ResetUnread zeroes the counter belonging to userID. Idempotent.
func (r *ConversationRepository) ResetUnread(
	ctx context.Context,
	conversationID int64,
	userID int64,
) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET tradie_unread = CASE WHEN tradie_id = $2 THEN 0 ELSE tradie_unread END,
		    builder_unread = CASE WHEN builder_id = $2 THEN 0 ELSE builder_unread END,
		    updated_at = NOW()
		WHERE id = $1
	`, conversationID, userID)
	return err
}

// Stats returns the user's active conversation count and the sum of their
// unread counters across those conversations.
func (r *ConversationRepository) Stats(ctx context.Context, userID int64) (*models.ChatStats, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN tradie_id = $1 THEN tradie_unread ELSE builder_unread END), 0)
		FROM conversations
		WHERE (tradie_id = $1 OR builder_id = $1) AND status = 'active'
	`

	var stats models.ChatStats
	if err := r.db.QueryRow(ctx, query, userID).Scan(&stats.TotalChats, &stats.TotalUnreadMessages); err != nil {
		return nil, err
	}
	stats.ActiveChats = stats.TotalChats
	return &stats, nil
}

// ListActiveIDsForParticipant returns ids of the user's active conversations,
// used for presence fan-out.
func (r *ConversationRepository) ListActiveIDsForParticipant(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id
		FROM conversations
		WHERE (tradie_id = $1 OR builder_id = $1) AND status = 'active'
	`, userID)
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
