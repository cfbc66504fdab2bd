package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"gemini-chat/internal/domain"
	"gemini-chat/internal/llm"
	"gemini-chat/internal/repository"
)

var (
	ErrChatServiceNotConfigured = errors.New("chat service not configured")
	ErrEmptyMessage             = errors.New("empty message")
	ErrConversationNotFound     = errors.New("conversation not found")
	ErrSendInFlight             = errors.New("conversation already has a send in flight")
)

// ChatService es el orquestador del ciclo enviar-mensaje y la superficie de
// comandos sobre la colección de conversaciones. Mantiene el estado
// autoritativo en memoria y persiste vía el store en cada mutación.
//
// A diferencia del cliente original, un segundo envío sobre una conversación
// que espera respuesta se rechaza con ErrSendInFlight en vez de correr en
// paralelo y apilar respuestas en orden de llegada.
type ChatService struct {
	store  repository.ConversationStore
	gen    llm.Generator
	logger *zap.Logger

	mu         sync.Mutex
	convs      []domain.Conversation
	selectedID string
	inflight   map[string]bool
}

// SendResult es el resultado de un envío ya asentado. Reply puede ser una
// respuesta real o el mensaje de error sintetizado (IsError en true).
type SendResult struct {
	Conversation domain.Conversation `json:"conversation"`
	Reply        domain.Message      `json:"reply"`
	Model        string              `json:"model,omitempty"`
	Substituted  bool                `json:"modelSubstituted,omitempty"`
}

// NewChatService construye el servicio y carga el estado persistido.
func NewChatService(ctx context.Context, store repository.ConversationStore, gen llm.Generator, logger *zap.Logger) (*ChatService, error) {
	if store == nil || gen == nil {
		return nil, ErrChatServiceNotConfigured
	}

	convs, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}
	selectedID, err := store.LoadSelectedID(ctx)
	if err != nil {
		return nil, fmt.Errorf("load selected conversation: %w", err)
	}

	s := &ChatService{
		store:    store,
		gen:      gen,
		logger:   logger,
		convs:    convs,
		inflight: make(map[string]bool),
	}
	if selectedID != "" && s.indexOf(selectedID) >= 0 {
		s.selectedID = selectedID
	}
	return s, nil
}

// List devuelve la colección ordenada por updatedAt descendente, agrupada
// por recencia, junto con el id seleccionado.
func (s *ChatService) List() ([]ConversationGroup, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := make([]domain.Conversation, len(s.convs))
	copy(sorted, s.convs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UpdatedAt.After(sorted[j].UpdatedAt)
	})

	return GroupByRecency(sorted, time.Now()), s.selectedID
}

// Get devuelve una conversación por id.
func (s *ChatService) Get(id string) (domain.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.convs[i], true
	}
	return domain.Conversation{}, false
}

// Models expone el catálogo de modelos seleccionables.
func (s *ChatService) Models() []domain.ModelOption {
	return domain.ModelOptions
}

// InFlightIDs lista las conversaciones que esperan respuesta del proveedor,
// para que la UI muestre el indicador de carga por conversación.
func (s *ChatService) InFlightIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.inflight))
	for id := range s.inflight {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Create crea una conversación vacía, la selecciona y persiste ambos registros.
func (s *ChatService) Create(ctx context.Context) domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := domain.NewConversation()
	s.convs = append([]domain.Conversation{conv}, s.convs...)
	s.selectedID = conv.ID
	s.persist(ctx)
	s.persistSelected(ctx)
	return conv
}

// Select marca una conversación como activa. Un id vacío limpia la selección.
func (s *ChatService) Select(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" && s.indexOf(id) < 0 {
		return ErrConversationNotFound
	}
	s.selectedID = id
	s.persistSelected(ctx)
	return nil
}

// Delete elimina una conversación de forma inmediata e irreversible. Si era
// la activa, la selección queda vacía.
func (s *ChatService) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return ErrConversationNotFound
	}
	s.convs = append(s.convs[:i], s.convs[i+1:]...)
	if s.selectedID == id {
		s.selectedID = ""
		s.persistSelected(ctx)
	}
	s.persist(ctx)
	return nil
}

// DeleteAll vacía la colección completa y la selección.
func (s *ChatService) DeleteAll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.convs = []domain.Conversation{}
	s.selectedID = ""
	s.persist(ctx)
	s.persistSelected(ctx)
}

// Send ejecuta el ciclo completo de un envío: agrega el mensaje del usuario,
// persiste ese estado intermedio, consulta al gateway y asienta la respuesta
// (real o sintetizada). Un envío siempre deja N+2 mensajes: nunca queda el
// mensaje del usuario sin contraparte.
func (s *ChatService) Send(ctx context.Context, text, model string) (SendResult, error) {
	if s == nil || s.store == nil || s.gen == nil {
		return SendResult{}, ErrChatServiceNotConfigured
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return SendResult{}, ErrEmptyMessage
	}

	convID, history, err := s.appendUserMessage(ctx, text)
	if err != nil {
		return SendResult{}, err
	}

	// Única suspensión del ciclo: la llamada remota corre fuera del lock.
	result, genErr := s.gen.Generate(ctx, history, model)

	return s.settle(ctx, convID, result, genErr)
}

// appendUserMessage resuelve la conversación activa (creándola si no hay),
// agrega el turno del usuario, deriva el título si es el primero y persiste
// el estado intermedio para que un reinicio no pierda lo tipeado.
func (s *ChatService) appendUserMessage(ctx context.Context, text string) (string, []domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := -1
	if s.selectedID != "" {
		i = s.indexOf(s.selectedID)
	}
	if i < 0 {
		conv := domain.NewConversation()
		s.convs = append([]domain.Conversation{conv}, s.convs...)
		s.selectedID = conv.ID
		s.persistSelected(ctx)
		i = 0
	}

	conv := &s.convs[i]
	if s.inflight[conv.ID] {
		return "", nil, ErrSendInFlight
	}

	now := time.Now().UTC()
	conv.Messages = append(conv.Messages, domain.Message{
		Role:      domain.RoleUser,
		Content:   text,
		Timestamp: now,
	})
	conv.UpdatedAt = now
	// El título se deriva una sola vez, al pasar de vacía a no vacía.
	if len(conv.Messages) == 1 {
		conv.Title = domain.DeriveTitle(text)
	}

	s.inflight[conv.ID] = true
	s.persist(ctx)

	history := make([]domain.Message, len(conv.Messages))
	copy(history, conv.Messages)
	return conv.ID, history, nil
}

// settle asienta el resultado del gateway: respuesta real en éxito, mensaje
// de error sintetizado en falla. En ambos casos persiste y libera el envío.
func (s *ChatService) settle(ctx context.Context, convID string, result llm.Result, genErr error) (SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inflight, convID)

	i := s.indexOf(convID)
	if i < 0 {
		// La conversación fue borrada mientras esperaba respuesta.
		return SendResult{}, ErrConversationNotFound
	}
	conv := &s.convs[i]

	now := time.Now().UTC()
	reply := result.Message
	if genErr != nil {
		if s.logger != nil {
			s.logger.Warn("generation failed", zap.Error(genErr), zap.String("conversation_id", convID))
		}
		reply = domain.Message{
			Role:      domain.RoleAssistant,
			Content:   fmt.Sprintf("Sorry, I encountered an error: %s. Please try again.", genErr.Error()),
			Timestamp: now,
			IsError:   true,
		}
	} else if result.Substituted && s.logger != nil {
		s.logger.Warn("model substituted by provider fallback",
			zap.String("model_used", result.Model),
			zap.String("conversation_id", convID))
	}

	conv.Messages = append(conv.Messages, reply)
	conv.UpdatedAt = now
	s.persist(ctx)

	return SendResult{
		Conversation: *conv,
		Reply:        reply,
		Model:        result.Model,
		Substituted:  result.Substituted,
	}, nil
}

// indexOf busca una conversación por id. Requiere el lock tomado.
func (s *ChatService) indexOf(id string) int {
	for i := range s.convs {
		if s.convs[i].ID == id {
			return i
		}
	}
	return -1
}

// persist guarda la colección completa. Las fallas las absorbe el store.
func (s *ChatService) persist(ctx context.Context) {
	convs := make([]domain.Conversation, len(s.convs))
	copy(convs, s.convs)
	if err := s.store.Save(ctx, convs); err != nil && s.logger != nil {
		s.logger.Warn("persist conversations failed", zap.Error(err))
	}
}

func (s *ChatService) persistSelected(ctx context.Context) {
	if err := s.store.SaveSelectedID(ctx, s.selectedID); err != nil && s.logger != nil {
		s.logger.Warn("persist selected conversation failed", zap.Error(err))
	}
}
