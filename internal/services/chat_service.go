package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arsalanrobotronics/famaserve-app-backend/internal/models"
	"github.com/arsalanrobotronics/famaserve-app-backend/internal/repository"
)

var (
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidInput    = errors.New("invalid input")
	ErrRoleMismatch    = errors.New("role mismatch")
	ErrProjectNotFound = errors.New("project not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrMessageNotFound = errors.New("message not found")
)

const (
	maxTextLength     = 2000
	maxSummaryLength  = 100
	notifyTimeout     = 5 * time.Second
	NotifyChatCreated = "chat_created"
	NotifyMessageSent = "message_sent"
)

type userReader interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

type projectReader interface {
	GetByID(ctx context.Context, id int64) (*models.Project, error)
}

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type conversationStore interface {
	CreateOrGet(ctx context.Context, projectID int64, tradieID int64, builderID int64) (*models.Conversation, error)
	GetByTriple(ctx context.Context, projectID int64, tradieID int64, builderID int64) (*models.Conversation, error)
	GetByIDForParticipant(ctx context.Context, conversationID int64, participantID int64) (*models.Conversation, error)
	ListForParticipant(ctx context.Context, participantID int64, status string, projectID int64, limit int, offset int) ([]models.ConversationSummary, int, error)
	Stats(ctx context.Context, userID int64) (*models.ChatStats, error)
	ListActiveIDsForParticipant(ctx context.Context, userID int64) ([]int64, error)
}

type messageStore interface {
	GetByID(ctx context.Context, messageID int64) (*models.Message, error)
	ListByConversation(ctx context.Context, conversationID int64, limit int, offset int) ([]models.Message, int, error)
	MarkOneRead(ctx context.Context, conversationID int64, messageID int64, readerID int64) (bool, error)
	SoftDelete(ctx context.Context, messageID int64, requesterID int64) (bool, error)
	Edit(ctx context.Context, messageID int64, requesterID int64, content string) (*models.Message, error)
}

type ChatService struct {
	db               txBeginner
	conversationRepo conversationStore
	messageRepo      messageStore
	userRepo         userReader
	projectRepo      projectReader
	notifier         Notifier
}

// ChatDelivery carries everything the caller needs after an accepted message:
// the stored message with identities resolved, the conversation it landed in,
// and who should be told about it.
type ChatDelivery struct {
	Conversation *models.Conversation
	Message      *models.MessageDetail
	RecipientID  int64
}

func NewChatService(
	db *pgxpool.Pool,
	conversationRepo *repository.ConversationRepository,
	messageRepo *repository.MessageRepository,
	userRepo userReader,
	projectRepo projectReader,
	notifier Notifier,
) *ChatService {
	return &ChatService{
		db:               db,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		userRepo:         userRepo,
		projectRepo:      projectRepo,
		notifier:         notifier,
	}
}

type CreateConversationInput struct {
	ProjectID int64
	TradieID  int64
	BuilderID int64
}

// CreateConversation creates the conversation for the (project, tradie,
// builder) triple, or returns the existing one. The second result reports
// whether a new conversation was created.
func (s *ChatService) CreateConversation(
	ctx context.Context,
	input CreateConversationInput,
) (*models.ConversationSummary, bool, error) {
	if input.ProjectID <= 0 || input.TradieID <= 0 || input.BuilderID <= 0 {
		return nil, false, ErrInvalidInput
	}
	if input.TradieID == input.BuilderID {
		return nil, false, ErrInvalidInput
	}

	project, err := s.projectRepo.GetByID(ctx, input.ProjectID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrProjectNotFound
		}
		return nil, false, err
	}

	tradie, err := s.userRepo.GetByID(ctx, input.TradieID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrUserNotFound
		}
		return nil, false, err
	}
	builder, err := s.userRepo.GetByID(ctx, input.BuilderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrUserNotFound
		}
		return nil, false, err
	}

	if tradie.Role != models.RoleTradie || builder.Role != models.RoleBuilder {
		return nil, false, ErrRoleMismatch
	}

	existing, err := s.conversationRepo.GetByTriple(ctx, input.ProjectID, input.TradieID, input.BuilderID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	created := existing == nil
	conversation := existing
	if created {
		conversation, err = s.conversationRepo.CreateOrGet(ctx, input.ProjectID, input.TradieID, input.BuilderID)
		if err != nil {
			return nil, false, err
		}

		for _, recipientID := range []int64{conversation.TradieID, conversation.BuilderID} {
			s.dispatchNotification(Notification{
				Type:        NotifyChatCreated,
				RecipientID: recipientID,
				SenderID:    conversation.OtherParticipant(recipientID),
				ProjectID:   conversation.ProjectID,
				ChatID:      conversation.ID,
				Meta:        map[string]string{"projectTitle": project.Title},
			})
		}
	}

	summary := &models.ConversationSummary{
		Conversation: *conversation,
		Project:      project.Ref(),
		Tradie:       tradie.Public(),
		Builder:      builder.Public(),
	}
	return summary, created, nil
}

// ListConversations returns the user's conversations filtered by status and
// optionally by project (projectID = 0 disables the filter).
func (s *ChatService) ListConversations(
	ctx context.Context,
	actorID int64,
	status string,
	projectID int64,
	page int,
	limit int,
) ([]models.ConversationSummary, int, error) {
	if status == "" {
		status = models.ConversationActive
	}
	switch status {
	case models.ConversationActive, models.ConversationClosed, models.ConversationArchived:
	default:
		return nil, 0, ErrInvalidInput
	}
	if projectID < 0 || page <= 0 || limit <= 0 {
		return nil, 0, ErrInvalidInput
	}

	return s.conversationRepo.ListForParticipant(ctx, actorID, status, projectID, limit, (page-1)*limit)
}

// GetConversation returns the conversation with project and participants
// resolved. Missing and inaccessible conversations are indistinguishable.
func (s *ChatService) GetConversation(
	ctx context.Context,
	actorID int64,
	conversationID int64,
) (*models.ConversationSummary, error) {
	if conversationID <= 0 {
		return nil, ErrInvalidInput
	}

	conversation, err := s.conversationRepo.GetByIDForParticipant(ctx, conversationID, actorID)
	if err != nil {
		return nil, err
	}

	return s.resolveSummary(ctx, conversation, actorID)
}

// GetConversationForParticipant is the gateway-facing participant check: it
// returns the bare conversation when actorID is a participant of record.
func (s *ChatService) GetConversationForParticipant(
	ctx context.Context,
	conversationID int64,
	actorID int64,
) (*models.Conversation, error) {
	if conversationID <= 0 {
		return nil, ErrInvalidInput
	}
	return s.conversationRepo.GetByIDForParticipant(ctx, conversationID, actorID)
}

type SendMessageInput struct {
	Type         string
	Content      string
	DocumentURL  string
	DocumentName string
	DocumentSize int64
}

// SendMessage validates and persists a message, updates the conversation's
// last-message summary and the recipient's unread counter in the same
// transaction, and dispatches a best-effort push notification.
func (s *ChatService) SendMessage(
	ctx context.Context,
	actorID int64,
	conversationID int64,
	input SendMessageInput,
) (*ChatDelivery, error) {
	if conversationID <= 0 {
		return nil, ErrInvalidInput
	}

	create, summary, err := buildMessageInput(conversationID, actorID, input)
	if err != nil {
		return nil, err
	}

	conversation, err := s.conversationRepo.GetByIDForParticipant(ctx, conversationID, actorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrForbidden
		}
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txMessageRepo := repository.NewMessageRepository(tx)
	txConversationRepo := repository.NewConversationRepository(tx)

	message, err := txMessageRepo.Create(ctx, create)
	if err != nil {
		return nil, err
	}

	if err := txConversationRepo.RecordOutgoingMessage(ctx, conversationID, actorID, summary); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	recipientID := conversation.OtherParticipant(actorID)

	sender, err := s.userRepo.GetByID(ctx, actorID)
	if err != nil {
		return nil, err
	}
	receiver, err := s.userRepo.GetByID(ctx, recipientID)
	if err != nil {
		return nil, err
	}

	s.notifyMessageSent(conversation, sender, recipientID)

	return &ChatDelivery{
		Conversation: conversation,
		Message: &models.MessageDetail{
			Message:  *message,
			Sender:   sender.Public(),
			Receiver: receiver.Public(),
		},
		RecipientID: recipientID,
	}, nil
}

// ListMessages returns one page of non-deleted messages with sender and
// receiver identity resolved. Pages anchor to the newest messages, but each
// page is returned oldest-first for display.
func (s *ChatService) ListMessages(
	ctx context.Context,
	actorID int64,
	conversationID int64,
	page int,
	limit int,
) ([]models.MessageDetail, *models.ConversationSummary, int, error) {
	if conversationID <= 0 || page <= 0 || limit <= 0 {
		return nil, nil, 0, ErrInvalidInput
	}

	conversation, err := s.conversationRepo.GetByIDForParticipant(ctx, conversationID, actorID)
	if err != nil {
		return nil, nil, 0, err
	}

	summary, err := s.resolveSummary(ctx, conversation, actorID)
	if err != nil {
		return nil, nil, 0, err
	}

	messages, total, err := s.messageRepo.ListByConversation(ctx, conversationID, limit, (page-1)*limit)
	if err != nil {
		return nil, nil, 0, err
	}

	// Newest-first from the store; reverse so each page reads oldest-first.
	details := make([]models.MessageDetail, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		message := messages[i]
		detail := models.MessageDetail{Message: message}
		if message.SenderID == conversation.TradieID {
			detail.Sender = summary.Tradie
			detail.Receiver = summary.Builder
		} else {
			detail.Sender = summary.Builder
			detail.Receiver = summary.Tradie
		}
		details = append(details, detail)
	}

	return details, summary, total, nil
}

// MarkConversationRead marks every unread message from the other participant
// as read and resets the caller's unread counter. Returns the ids that were
// actually affected so callers can broadcast them.
func (s *ChatService) MarkConversationRead(
	ctx context.Context,
	actorID int64,
	conversationID int64,
) ([]int64, error) {
	if conversationID <= 0 {
		return nil, ErrInvalidInput
	}

	if _, err := s.conversationRepo.GetByIDForParticipant(ctx, conversationID, actorID); err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txMessageRepo := repository.NewMessageRepository(tx)
	txConversationRepo := repository.NewConversationRepository(tx)

	ids, err := txMessageRepo.ListUnreadIDs(ctx, conversationID, actorID)
	if err != nil {
		return nil, err
	}

	if err := txMessageRepo.MarkConversationRead(ctx, conversationID, actorID); err != nil {
		return nil, err
	}

	if err := txConversationRepo.ResetUnread(ctx, conversationID, actorID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return ids, nil
}

// MarkMessageRead marks a single message read if the caller is a participant
// and not the message's sender. Reports false on a no-op (already read).
func (s *ChatService) MarkMessageRead(
	ctx context.Context,
	actorID int64,
	conversationID int64,
	messageID int64,
) (bool, error) {
	if conversationID <= 0 || messageID <= 0 {
		return false, ErrInvalidInput
	}

	if _, err := s.conversationRepo.GetByIDForParticipant(ctx, conversationID, actorID); err != nil {
		return false, err
	}

	return s.messageRepo.MarkOneRead(ctx, conversationID, messageID, actorID)
}

// EditMessage replaces the content of a text message. Only the original
// sender may edit, and deleted messages stay untouchable.
func (s *ChatService) EditMessage(
	ctx context.Context,
	actorID int64,
	messageID int64,
	content string,
) (*models.MessageDetail, error) {
	if messageID <= 0 {
		return nil, ErrInvalidInput
	}
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > maxTextLength {
		return nil, ErrInvalidInput
	}

	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	if message.SenderID != actorID || message.Type != models.MessageTypeText || message.IsDeleted {
		return nil, ErrForbidden
	}

	updated, err := s.messageRepo.Edit(ctx, messageID, actorID, trimmed)
	if err != nil {
		return nil, err
	}

	sender, err := s.userRepo.GetByID(ctx, actorID)
	if err != nil {
		return nil, err
	}

	return &models.MessageDetail{Message: *updated, Sender: sender.Public()}, nil
}

// DeleteMessage soft-deletes the caller's own message. Terminal and
// idempotent in effect: a second delete reports not-found.
func (s *ChatService) DeleteMessage(ctx context.Context, actorID int64, messageID int64) error {
	if messageID <= 0 {
		return ErrInvalidInput
	}

	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrMessageNotFound
		}
		return err
	}
	if message.SenderID != actorID {
		return ErrForbidden
	}
	if message.IsDeleted {
		return ErrMessageNotFound
	}

	_, err = s.messageRepo.SoftDelete(ctx, messageID, actorID)
	return err
}

// Stats summarises the caller's active conversations and unread totals.
func (s *ChatService) Stats(ctx context.Context, actorID int64) (*models.ChatStats, error) {
	return s.conversationRepo.Stats(ctx, actorID)
}

// ListActiveConversationIDs returns the ids of the user's active
// conversations, used by the gateway for status fan-out.
func (s *ChatService) ListActiveConversationIDs(ctx context.Context, userID int64) ([]int64, error) {
	return s.conversationRepo.ListActiveIDsForParticipant(ctx, userID)
}

func (s *ChatService) resolveSummary(
	ctx context.Context,
	conversation *models.Conversation,
	viewerID int64,
) (*models.ConversationSummary, error) {
	project, err := s.projectRepo.GetByID(ctx, conversation.ProjectID)
	if err != nil {
		return nil, err
	}
	tradie, err := s.userRepo.GetByID(ctx, conversation.TradieID)
	if err != nil {
		return nil, err
	}
	builder, err := s.userRepo.GetByID(ctx, conversation.BuilderID)
	if err != nil {
		return nil, err
	}

	return &models.ConversationSummary{
		Conversation: *conversation,
		Project:      project.Ref(),
		Tradie:       tradie.Public(),
		Builder:      builder.Public(),
		UnreadCount:  conversation.UnreadFor(viewerID),
	}, nil
}

func (s *ChatService) notifyMessageSent(conversation *models.Conversation, sender *models.User, recipientID int64) {
	meta := map[string]string{"senderName": sender.DisplayName()}
	if project, err := s.projectRepo.GetByID(context.Background(), conversation.ProjectID); err == nil {
		meta["projectTitle"] = project.Title
	}

	s.dispatchNotification(Notification{
		Type:        NotifyMessageSent,
		RecipientID: recipientID,
		SenderID:    sender.ID,
		ProjectID:   conversation.ProjectID,
		ChatID:      conversation.ID,
		Meta:        meta,
	})
}

// dispatchNotification hands the notification to the push collaborator off
// the critical path. Failures are logged and swallowed.
func (s *ChatService) dispatchNotification(n Notification) {
	if s.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, n); err != nil {
			log.Printf("chat service: %s notification to user %d failed: %v", n.Type, n.RecipientID, err)
		}
	}()
}

// buildMessageInput validates the payload shape against the message type and
// produces both the row to insert and the conversation's last-message
// summary.
func buildMessageInput(
	conversationID int64,
	senderID int64,
	input SendMessageInput,
) (repository.CreateMessageInput, string, error) {
	create := repository.CreateMessageInput{
		ConversationID: conversationID,
		SenderID:       senderID,
		Type:           input.Type,
	}
	if create.Type == "" {
		create.Type = models.MessageTypeText
	}

	switch create.Type {
	case models.MessageTypeText:
		trimmed := strings.TrimSpace(input.Content)
		if trimmed == "" || utf8.RuneCountInString(trimmed) > maxTextLength {
			return repository.CreateMessageInput{}, "", ErrInvalidInput
		}
		create.Content = &trimmed

		summary := trimmed
		if runes := []rune(summary); len(runes) > maxSummaryLength {
			summary = string(runes[:maxSummaryLength])
		}
		return create, summary, nil

	case models.MessageTypeDocument, models.MessageTypeImage:
		if input.DocumentURL == "" || input.DocumentName == "" || input.DocumentSize <= 0 {
			return repository.CreateMessageInput{}, "", ErrInvalidInput
		}
		url, name, size := input.DocumentURL, input.DocumentName, input.DocumentSize
		create.DocumentURL = &url
		create.DocumentName = &name
		create.DocumentSize = &size
		return create, "Sent a " + create.Type, nil

	default:
		return repository.CreateMessageInput{}, "", ErrInvalidInput
	}
}

func FormatChatTimestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339)
}

// NowTimestamp formats the current instant the way chat events expect.
func NowTimestamp() string {
	return FormatChatTimestamp(time.Now())
}
