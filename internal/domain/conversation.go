package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTitle es el título placeholder hasta recibir el primer mensaje.
const DefaultTitle = "New Chat"

const (
	titleMaxLen   = 50
	titleCutLen   = 47
	titleMaxWords = 5
)

// Conversation es un hilo de mensajes con título y timestamps de ciclo de vida.
// Los mensajes son append-only: el orden de inserción es el orden canónico.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewConversation crea una conversación vacía con id único y título placeholder.
func NewConversation() Conversation {
	now := time.Now().UTC()
	return Conversation{
		ID:        NewConversationID(),
		Title:     DefaultTitle,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewConversationID genera un id único por sesión: timestamp en base 36 más
// un sufijo aleatorio. No es un token de acceso, solo necesita ser único.
func NewConversationID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strconv.FormatInt(time.Now().UnixMilli(), 36) + suffix[:10]
}

// DeriveTitle arma un título con las primeras cinco palabras del mensaje,
// truncado a 50 caracteres con elipsis si se pasa.
func DeriveTitle(text string) string {
	words := strings.Fields(text)
	if len(words) > titleMaxWords {
		words = words[:titleMaxWords]
	}
	title := strings.Join(words, " ")
	runes := []rune(title)
	if len(runes) > titleMaxLen {
		return string(runes[:titleCutLen]) + "..."
	}
	return title
}
