package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/arsalanrobotronics/famaserve-app-backend/internal/models"
)

func TestBuildMessageInputText(t *testing.T) {
	create, summary, err := buildMessageInput(17, 42, SendMessageInput{
		Type:    models.MessageTypeText,
		Content: "  Can you start Monday?  ",
	})
	if err != nil {
		t.Fatalf("buildMessageInput: %v", err)
	}
	if create.ConversationID != 17 || create.SenderID != 42 {
		t.Fatalf("unexpected row targeting: %+v", create)
	}
	if create.Content == nil || *create.Content != "Can you start Monday?" {
		t.Fatalf("expected trimmed content, got %v", create.Content)
	}
	if summary != "Can you start Monday?" {
		t.Fatalf("unexpected summary: %q", summary)
	}
}

func TestBuildMessageInputDefaultsToText(t *testing.T) {
	create, _, err := buildMessageInput(17, 42, SendMessageInput{Content: "hi"})
	if err != nil {
		t.Fatalf("buildMessageInput: %v", err)
	}
	if create.Type != models.MessageTypeText {
		t.Fatalf("expected text type, got %q", create.Type)
	}
}

func TestBuildMessageInputTruncatesSummary(t *testing.T) {
	content := strings.Repeat("ä", 150)
	_, summary, err := buildMessageInput(17, 42, SendMessageInput{
		Type:    models.MessageTypeText,
		Content: content,
	})
	if err != nil {
		t.Fatalf("buildMessageInput: %v", err)
	}
	if got := len([]rune(summary)); got != 100 {
		t.Fatalf("expected 100-rune summary, got %d", got)
	}
	if !strings.HasPrefix(content, summary) {
		t.Fatalf("summary is not a prefix of the content")
	}
}

func TestBuildMessageInputDocumentSummary(t *testing.T) {
	cases := []struct {
		msgType string
		want    string
	}{
		{models.MessageTypeDocument, "Sent a document"},
		{models.MessageTypeImage, "Sent a image"},
	}
	for _, tc := range cases {
		create, summary, err := buildMessageInput(17, 42, SendMessageInput{
			Type:         tc.msgType,
			DocumentURL:  "https://files.example.com/quote.pdf",
			DocumentName: "quote.pdf",
			DocumentSize: 2048,
		})
		if err != nil {
			t.Fatalf("buildMessageInput(%s): %v", tc.msgType, err)
		}
		if summary != tc.want {
			t.Fatalf("expected summary %q, got %q", tc.want, summary)
		}
		if create.DocumentURL == nil || create.DocumentSize == nil || *create.DocumentSize != 2048 {
			t.Fatalf("missing document fields: %+v", create)
		}
	}
}

func TestBuildMessageInputRejectsBadPayloads(t *testing.T) {
	cases := []struct {
		name  string
		input SendMessageInput
	}{
		{name: "empty text", input: SendMessageInput{Type: models.MessageTypeText, Content: "   "}},
		{name: "oversized text", input: SendMessageInput{Type: models.MessageTypeText, Content: strings.Repeat("x", 2001)}},
		{name: "unknown type", input: SendMessageInput{Type: "voice", Content: "hi"}},
		{name: "document without url", input: SendMessageInput{Type: models.MessageTypeDocument, DocumentName: "quote.pdf", DocumentSize: 10}},
		{name: "document without size", input: SendMessageInput{Type: models.MessageTypeDocument, DocumentURL: "https://x/y", DocumentName: "y"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := buildMessageInput(17, 42, tc.input)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestBuildMessageInputAcceptsMaxLengthText(t *testing.T) {
	_, _, err := buildMessageInput(17, 42, SendMessageInput{
		Type:    models.MessageTypeText,
		Content: strings.Repeat("x", 2000),
	})
	if err != nil {
		t.Fatalf("expected max-length text to pass, got %v", err)
	}
}

type stubConversationStore struct {
	conversation *models.Conversation
	getErr       error
	listResult   []models.ConversationSummary
	listTotal    int
	statsResult  *models.ChatStats
	activeIDs    []int64
}

func (s *stubConversationStore) CreateOrGet(_ context.Context, _ int64, _ int64, _ int64) (*models.Conversation, error) {
	return s.conversation, s.getErr
}

func (s *stubConversationStore) GetByTriple(_ context.Context, _ int64, _ int64, _ int64) (*models.Conversation, error) {
	if s.conversation == nil {
		return nil, pgx.ErrNoRows
	}
	return s.conversation, nil
}

func (s *stubConversationStore) GetByIDForParticipant(_ context.Context, _ int64, _ int64) (*models.Conversation, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.conversation == nil {
		return nil, pgx.ErrNoRows
	}
	return s.conversation, nil
}

func (s *stubConversationStore) ListForParticipant(_ context.Context, _ int64, _ string, _ int64, _ int, _ int) ([]models.ConversationSummary, int, error) {
	return s.listResult, s.listTotal, nil
}

func (s *stubConversationStore) Stats(_ context.Context, _ int64) (*models.ChatStats, error) {
	return s.statsResult, nil
}

func (s *stubConversationStore) ListActiveIDsForParticipant(_ context.Context, _ int64) ([]int64, error) {
	return s.activeIDs, nil
}

type stubMessageStore struct {
	pageResult []models.Message
	pageTotal  int
	pageErr    error
	message    *models.Message
	lastLimit  int
	lastOffset int
}

func (s *stubMessageStore) GetByID(_ context.Context, _ int64) (*models.Message, error) {
	if s.message == nil {
		return nil, pgx.ErrNoRows
	}
	return s.message, nil
}

func (s *stubMessageStore) ListByConversation(_ context.Context, _ int64, limit int, offset int) ([]models.Message, int, error) {
	s.lastLimit = limit
	s.lastOffset = offset
	return s.pageResult, s.pageTotal, s.pageErr
}

func (s *stubMessageStore) MarkOneRead(_ context.Context, _ int64, _ int64, _ int64) (bool, error) {
	return true, nil
}

func (s *stubMessageStore) SoftDelete(_ context.Context, _ int64, _ int64) (bool, error) {
	return true, nil
}

func (s *stubMessageStore) Edit(_ context.Context, _ int64, _ int64, _ string) (*models.Message, error) {
	return s.message, nil
}

type stubDirectory struct {
	users map[int64]*models.User
}

func (d stubDirectory) GetByID(_ context.Context, id int64) (*models.User, error) {
	user, ok := d.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return user, nil
}

type stubProjects struct {
	project *models.Project
}

func (p stubProjects) GetByID(_ context.Context, _ int64) (*models.Project, error) {
	if p.project == nil {
		return nil, pgx.ErrNoRows
	}
	return p.project, nil
}

type stubRow struct {
	values []any
	err    error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i := range dest {
		switch target := dest[i].(type) {
		case *int64:
			*target = r.values[i].(int64)
		case *int:
			*target = r.values[i].(int)
		case *string:
			*target = r.values[i].(string)
		case **string:
			*target = r.values[i].(*string)
		case **int64:
			*target = r.values[i].(*int64)
		case *bool:
			*target = r.values[i].(bool)
		case *time.Time:
			*target = r.values[i].(time.Time)
		case **time.Time:
			*target = r.values[i].(*time.Time)
		default:
			return errors.New("unsupported scan target")
		}
	}
	return nil
}

type stubIDRows struct {
	ids []int64
	idx int
}

func (r *stubIDRows) Close()                                       {}
func (r *stubIDRows) Err() error                                   { return nil }
func (r *stubIDRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *stubIDRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubIDRows) Values() ([]any, error)                       { return nil, nil }
func (r *stubIDRows) RawValues() [][]byte                          { return nil }
func (r *stubIDRows) Conn() *pgx.Conn                              { return nil }

func (r *stubIDRows) Next() bool {
	if r.idx < len(r.ids) {
		r.idx++
		return true
	}
	return false
}

func (r *stubIDRows) Scan(dest ...any) error {
	*dest[0].(*int64) = r.ids[r.idx-1]
	return nil
}

// stubTx satisfies pgx.Tx so the transactional paths can run against the real
// repositories with scripted results.
type stubTx struct {
	execFn     func(sql string, args []any) (pgconn.CommandTag, error)
	queryFn    func(sql string, args []any) (pgx.Rows, error)
	queryRowFn func(sql string, args []any) pgx.Row
	committed  bool
	rolledBack bool
}

func (t *stubTx) Begin(_ context.Context) (pgx.Tx, error) { return t, nil }
func (t *stubTx) Commit(_ context.Context) error          { t.committed = true; return nil }
func (t *stubTx) Rollback(_ context.Context) error        { t.rolledBack = true; return nil }
func (t *stubTx) Conn() *pgx.Conn                         { return nil }
func (t *stubTx) LargeObjects() pgx.LargeObjects          { return pgx.LargeObjects{} }

func (t *stubTx) CopyFrom(_ context.Context, _ pgx.Identifier, _ []string, _ pgx.CopyFromSource) (int64, error) {
	return 0, nil
}

func (t *stubTx) SendBatch(_ context.Context, _ *pgx.Batch) pgx.BatchResults {
	return nil
}

func (t *stubTx) Prepare(_ context.Context, _ string, _ string) (*pgconn.StatementDescription, error) {
	return nil, nil
}

func (t *stubTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.execFn(sql, args)
}

func (t *stubTx) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	return t.queryFn(sql, args)
}

func (t *stubTx) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	return t.queryRowFn(sql, args)
}

type stubBeginner struct {
	tx *stubTx
}

func (b stubBeginner) Begin(_ context.Context) (pgx.Tx, error) {
	return b.tx, nil
}

var chatTestTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func chatTestFixtures() (*stubConversationStore, stubDirectory, stubProjects) {
	tradieName := "Tess Tradie"
	builderName := "Bill Builder"
	conversations := &stubConversationStore{
		conversation: &models.Conversation{
			ID:        17,
			ProjectID: 3,
			TradieID:  42,
			BuilderID: 8,
			Status:    models.ConversationActive,
		},
	}
	users := stubDirectory{users: map[int64]*models.User{
		42: {ID: 42, Role: models.RoleTradie, FullName: &tradieName},
		8:  {ID: 8, Role: models.RoleBuilder, FullName: &builderName},
	}}
	projects := stubProjects{project: &models.Project{ID: 3, Title: "Deck build", Status: "active"}}
	return conversations, users, projects
}

func TestListMessagesReversesPageForDisplay(t *testing.T) {
	conversations, users, projects := chatTestFixtures()
	messages := &stubMessageStore{
		// Store order is newest first; callers must see oldest first.
		pageResult: []models.Message{
			{ID: 33, ConversationID: 17, SenderID: 8, Type: models.MessageTypeText, CreatedAt: chatTestTime.Add(2 * time.Minute)},
			{ID: 32, ConversationID: 17, SenderID: 42, Type: models.MessageTypeText, CreatedAt: chatTestTime.Add(time.Minute)},
			{ID: 31, ConversationID: 17, SenderID: 8, Type: models.MessageTypeText, CreatedAt: chatTestTime},
		},
		pageTotal: 9,
	}
	service := &ChatService{
		conversationRepo: conversations,
		messageRepo:      messages,
		userRepo:         users,
		projectRepo:      projects,
	}

	details, summary, total, err := service.ListMessages(context.Background(), 42, 17, 2, 3)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}

	if total != 9 || summary.ID != 17 {
		t.Fatalf("unexpected total/summary: %d %+v", total, summary)
	}
	if messages.lastLimit != 3 || messages.lastOffset != 3 {
		t.Fatalf("unexpected window: limit=%d offset=%d", messages.lastLimit, messages.lastOffset)
	}

	if len(details) != 3 || details[0].ID != 31 || details[1].ID != 32 || details[2].ID != 33 {
		t.Fatalf("expected page oldest first, got %+v", details)
	}
	if details[0].Sender == nil || details[0].Sender.ID != 8 || details[0].Receiver.ID != 42 {
		t.Fatalf("unexpected identity resolution on builder message: %+v", details[0])
	}
	if details[1].Sender == nil || details[1].Sender.ID != 42 || details[1].Receiver.ID != 8 {
		t.Fatalf("unexpected identity resolution on tradie message: %+v", details[1])
	}
}

func TestMarkConversationReadCapturesIDsBeforeBulkUpdate(t *testing.T) {
	conversations, users, projects := chatTestFixtures()

	var order []string
	tx := &stubTx{
		queryFn: func(_ string, _ []any) (pgx.Rows, error) {
			order = append(order, "list-unread")
			return &stubIDRows{ids: []int64{30, 31}}, nil
		},
		execFn: func(sql string, _ []any) (pgconn.CommandTag, error) {
			if strings.Contains(sql, "UPDATE messages") {
				order = append(order, "mark-read")
			} else {
				order = append(order, "reset-unread")
			}
			return pgconn.CommandTag{}, nil
		},
	}
	service := &ChatService{
		db:               stubBeginner{tx: tx},
		conversationRepo: conversations,
		messageRepo:      &stubMessageStore{},
		userRepo:         users,
		projectRepo:      projects,
	}

	ids, err := service.MarkConversationRead(context.Background(), 8, 17)
	if err != nil {
		t.Fatalf("MarkConversationRead: %v", err)
	}

	if len(ids) != 2 || ids[0] != 30 || ids[1] != 31 {
		t.Fatalf("expected the pre-update unread ids, got %v", ids)
	}
	if len(order) != 3 || order[0] != "list-unread" || order[1] != "mark-read" || order[2] != "reset-unread" {
		t.Fatalf("unexpected statement order: %v", order)
	}
	if !tx.committed {
		t.Fatal("expected the transaction to commit")
	}
}

func TestSendMessageRoutesUnreadToRecipient(t *testing.T) {
	conversations, users, projects := chatTestFixtures()

	content := "On my way"
	var recordArgs []any
	tx := &stubTx{
		queryRowFn: func(_ string, _ []any) pgx.Row {
			return stubRow{values: []any{
				int64(31), int64(17), int64(42), models.MessageTypeText,
				&content, (*string)(nil), (*string)(nil), (*int64)(nil),
				false, (*time.Time)(nil), false, (*time.Time)(nil), false, (*time.Time)(nil),
				chatTestTime, chatTestTime,
			}}
		},
		execFn: func(_ string, args []any) (pgconn.CommandTag, error) {
			recordArgs = args
			return pgconn.CommandTag{}, nil
		},
	}
	service := &ChatService{
		db:               stubBeginner{tx: tx},
		conversationRepo: conversations,
		messageRepo:      &stubMessageStore{},
		userRepo:         users,
		projectRepo:      projects,
	}

	delivery, err := service.SendMessage(context.Background(), 42, 17, SendMessageInput{
		Type:    models.MessageTypeText,
		Content: content,
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if delivery.RecipientID != 8 {
		t.Fatalf("expected recipient 8, got %d", delivery.RecipientID)
	}
	if delivery.Message.Sender.ID != 42 || delivery.Message.Receiver.ID != 8 {
		t.Fatalf("unexpected identity resolution: %+v", delivery.Message)
	}

	// Summary update carries the sender id so the counter lands on the
	// recipient's side of the conversation row.
	if len(recordArgs) != 3 || recordArgs[1].(int64) != 42 || recordArgs[2].(string) != content {
		t.Fatalf("unexpected summary update args: %v", recordArgs)
	}
	if !tx.committed {
		t.Fatal("expected the transaction to commit")
	}
}

func TestFormatChatTimestampIsUTCRFC3339(t *testing.T) {
	loc := time.FixedZone("AEST", 10*60*60)
	ts := time.Date(2026, 3, 1, 19, 30, 0, 0, loc)

	got := FormatChatTimestamp(ts)
	if got != "2026-03-01T09:30:00Z" {
		t.Fatalf("unexpected timestamp: %q", got)
	}
}
