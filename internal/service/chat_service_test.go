package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"gemini-chat/internal/domain"
	"gemini-chat/internal/llm"
)

type mockConversationStore struct {
	mu sync.Mutex

	convs      []domain.Conversation
	selectedID string

	saveCalls         int
	selectedSaveCalls []string
	loadErr           error
}

func (m *mockConversationStore) Load(_ context.Context) ([]domain.Conversation, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make([]domain.Conversation, len(m.convs))
	copy(out, m.convs)
	return out, nil
}

func (m *mockConversationStore) Save(_ context.Context, convs []domain.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]domain.Conversation, len(convs))
	copy(stored, convs)
	m.convs = stored
	m.saveCalls++
	return nil
}

func (m *mockConversationStore) LoadSelectedID(_ context.Context) (string, error) {
	return m.selectedID, nil
}

func (m *mockConversationStore) SaveSelectedID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selectedID = id
	m.selectedSaveCalls = append(m.selectedSaveCalls, id)
	return nil
}

func okReply(text string) llm.Result {
	return llm.Result{
		Message: domain.Message{
			Role:      domain.RoleAssistant,
			Content:   text,
			Timestamp: time.Now().UTC(),
		},
		Model: "gemini-2.5-flash",
	}
}

func newTestService(t *testing.T, store *mockConversationStore, gen llm.Generator) *ChatService {
	t.Helper()
	svc, err := NewChatService(context.Background(), store, gen, zap.NewNop())
	if err != nil {
		t.Fatalf("new chat service failed: %v", err)
	}
	return svc
}

func TestSend_CreatesConversationAndAppendsBothTurns(t *testing.T) {
	store := &mockConversationStore{}
	gen := &llm.MockGenerator{Result: okReply("hola!")}
	svc := newTestService(t, store, gen)

	res, err := svc.Send(context.Background(), "hola gemini", "gemini-2.5-flash")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	conv := res.Conversation
	if len(conv.Messages) != 2 {
		t.Fatalf("expected user + assistant messages, got %d", len(conv.Messages))
	}
	if conv.Messages[0].Role != domain.RoleUser || conv.Messages[0].Content != "hola gemini" {
		t.Fatalf("unexpected user turn: %+v", conv.Messages[0])
	}
	if conv.Messages[1].Role != domain.RoleAssistant || conv.Messages[1].Content != "hola!" {
		t.Fatalf("unexpected assistant turn: %+v", conv.Messages[1])
	}
	if conv.Messages[1].IsError {
		t.Fatalf("successful reply must not be flagged as error")
	}
	if conv.Title != "hola gemini" {
		t.Fatalf("expected derived title, got %q", conv.Title)
	}
	if conv.UpdatedAt.Before(conv.CreatedAt) {
		t.Fatalf("updatedAt %v before createdAt %v", conv.UpdatedAt, conv.CreatedAt)
	}

	// Persistencia intermedia (turno del usuario) y final (respuesta).
	if store.saveCalls != 2 {
		t.Fatalf("expected 2 collection saves, got %d", store.saveCalls)
	}
	if store.selectedID != conv.ID {
		t.Fatalf("expected new conversation selected, got %q", store.selectedID)
	}
	if gen.Calls != 1 || len(gen.LastHistory) != 1 || gen.LastModel != "gemini-2.5-flash" {
		t.Fatalf("unexpected gateway call: calls=%d history=%d model=%q", gen.Calls, len(gen.LastHistory), gen.LastModel)
	}
}

func TestSend_FailureAppendsSynthesizedErrorMessage(t *testing.T) {
	store := &mockConversationStore{}
	gen := &llm.MockGenerator{Err: errors.New("gemini api error: quota exceeded")}
	svc := newTestService(t, store, gen)

	res, err := svc.Send(context.Background(), "hola", "")
	if err != nil {
		t.Fatalf("send must settle, not fail: %v", err)
	}

	if len(res.Conversation.Messages) != 2 {
		t.Fatalf("expected N+2 messages even on failure, got %d", len(res.Conversation.Messages))
	}
	reply := res.Reply
	if reply.Role != domain.RoleAssistant || !reply.IsError {
		t.Fatalf("expected synthesized assistant error, got %+v", reply)
	}
	if !strings.Contains(reply.Content, "Sorry, I encountered an error") ||
		!strings.Contains(reply.Content, "quota exceeded") ||
		!strings.Contains(reply.Content, "Please try again.") {
		t.Fatalf("unexpected error bubble content: %q", reply.Content)
	}
	if store.saveCalls != 2 {
		t.Fatalf("failure must still persist both states, got %d saves", store.saveCalls)
	}
}

func TestSend_TitleDerivedOnlyOnce(t *testing.T) {
	store := &mockConversationStore{}
	gen := &llm.MockGenerator{Result: okReply("ok")}
	svc := newTestService(t, store, gen)

	first, err := svc.Send(context.Background(), "primer mensaje del hilo", "")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	second, err := svc.Send(context.Background(), "otro texto completamente distinto", "")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if second.Conversation.Title != first.Conversation.Title {
		t.Fatalf("title must not be re-derived: %q vs %q", first.Conversation.Title, second.Conversation.Title)
	}
	if len(second.Conversation.Messages) != 4 {
		t.Fatalf("expected 4 messages after two sends, got %d", len(second.Conversation.Messages))
	}
}

func TestSend_EmptyMessageRejectedBeforeMutation(t *testing.T) {
	store := &mockConversationStore{}
	svc := newTestService(t, store, &llm.MockGenerator{Result: okReply("ok")})

	if _, err := svc.Send(context.Background(), "   \n\t ", ""); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if store.saveCalls != 0 {
		t.Fatalf("validation failure must not persist anything")
	}
	if groups, _ := svc.List(); countConversations(groups) != 0 {
		t.Fatalf("validation failure must not create conversations")
	}
}

func TestSend_SubstitutedModelSurfaced(t *testing.T) {
	store := &mockConversationStore{}
	gen := &llm.MockGenerator{Result: llm.Result{
		Message:     okReply("ok").Message,
		Model:       "gemini-1.5-flash",
		Substituted: true,
	}}
	svc := newTestService(t, store, gen)

	res, err := svc.Send(context.Background(), "hola", "gemini-9000")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if !res.Substituted || res.Model != "gemini-1.5-flash" {
		t.Fatalf("expected substitution surfaced, got %+v", res)
	}
}

// blockingGenerator deja el envío en vuelo hasta que el test lo libere.
type blockingGenerator struct {
	started chan struct{}
	release chan struct{}
}

func (g *blockingGenerator) Generate(_ context.Context, _ []domain.Message, _ string) (llm.Result, error) {
	g.started <- struct{}{}
	<-g.release
	return okReply("tardó pero llegó"), nil
}

func TestSend_SecondSendRejectedWhileAwaitingReply(t *testing.T) {
	store := &mockConversationStore{}
	gen := &blockingGenerator{started: make(chan struct{}, 1), release: make(chan struct{})}
	svc := newTestService(t, store, gen)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Send(context.Background(), "primero", "")
		done <- err
	}()
	<-gen.started

	if _, err := svc.Send(context.Background(), "segundo", ""); !errors.Is(err, ErrSendInFlight) {
		t.Fatalf("expected ErrSendInFlight, got %v", err)
	}
	if ids := svc.InFlightIDs(); len(ids) != 1 {
		t.Fatalf("expected 1 in-flight conversation, got %v", ids)
	}

	close(gen.release)
	if err := <-done; err != nil {
		t.Fatalf("first send failed: %v", err)
	}
	if ids := svc.InFlightIDs(); len(ids) != 0 {
		t.Fatalf("expected no in-flight conversations after settle, got %v", ids)
	}

	// Asentado el primero, la conversación acepta envíos de nuevo.
	res, err := svc.Send(context.Background(), "segundo de nuevo", "")
	if err != nil {
		t.Fatalf("send after settle failed: %v", err)
	}
	if len(res.Conversation.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(res.Conversation.Messages))
	}
}

func TestSend_ConversationDeletedMidFlight(t *testing.T) {
	store := &mockConversationStore{}
	gen := &blockingGenerator{started: make(chan struct{}, 1), release: make(chan struct{})}
	svc := newTestService(t, store, gen)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Send(context.Background(), "hola", "")
		done <- err
	}()
	<-gen.started

	groups, selected := svc.List()
	if countConversations(groups) != 1 || selected == "" {
		t.Fatalf("expected one selected conversation in flight")
	}
	if err := svc.Delete(context.Background(), selected); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	close(gen.release)
	if err := <-done; !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound for orphaned reply, got %v", err)
	}
}

func TestCreateSelectDelete(t *testing.T) {
	store := &mockConversationStore{}
	svc := newTestService(t, store, &llm.MockGenerator{Result: okReply("ok")})

	first := svc.Create(context.Background())
	second := svc.Create(context.Background())

	if _, selected := svc.List(); selected != second.ID {
		t.Fatalf("expected last created selected, got %q", selected)
	}

	if err := svc.Select(context.Background(), first.ID); err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if err := svc.Select(context.Background(), "nope"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}

	// Borrar la activa limpia la selección.
	if err := svc.Delete(context.Background(), first.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, selected := svc.List(); selected != "" {
		t.Fatalf("expected selection cleared after deleting active, got %q", selected)
	}
	if store.selectedID != "" {
		t.Fatalf("expected cleared selection persisted, got %q", store.selectedID)
	}

	// Borrar una no activa mantiene la selección.
	if err := svc.Select(context.Background(), second.ID); err != nil {
		t.Fatalf("select failed: %v", err)
	}
	third := svc.Create(context.Background())
	if err := svc.Delete(context.Background(), second.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, selected := svc.List(); selected != third.ID {
		t.Fatalf("expected selection kept, got %q", selected)
	}
}

func TestDeleteAll(t *testing.T) {
	store := &mockConversationStore{}
	svc := newTestService(t, store, &llm.MockGenerator{Result: okReply("ok")})

	svc.Create(context.Background())
	svc.Create(context.Background())
	svc.DeleteAll(context.Background())

	groups, selected := svc.List()
	if countConversations(groups) != 0 || selected != "" {
		t.Fatalf("expected empty collection and no selection")
	}
	if len(store.convs) != 0 || store.selectedID != "" {
		t.Fatalf("expected cleared state persisted")
	}
}

func TestNewChatService_RestoresStateAndDropsDanglingSelection(t *testing.T) {
	conv := domain.NewConversation()
	store := &mockConversationStore{
		convs:      []domain.Conversation{conv},
		selectedID: conv.ID,
	}
	svc := newTestService(t, store, &llm.MockGenerator{Result: okReply("ok")})

	groups, selected := svc.List()
	if countConversations(groups) != 1 || selected != conv.ID {
		t.Fatalf("expected restored state, got %d convs selected=%q", countConversations(groups), selected)
	}

	// Selección que apunta a una conversación inexistente arranca vacía.
	store2 := &mockConversationStore{selectedID: "ghost"}
	svc2 := newTestService(t, store2, &llm.MockGenerator{Result: okReply("ok")})
	if _, selected := svc2.List(); selected != "" {
		t.Fatalf("expected dangling selection dropped, got %q", selected)
	}
}

func countConversations(groups []ConversationGroup) int {
	total := 0
	for _, g := range groups {
		total += len(g.Conversations)
	}
	return total
}
