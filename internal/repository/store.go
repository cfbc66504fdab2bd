package repository

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"gemini-chat/internal/domain"
)

// ErrCapacityExceeded indica que el backend rechazó la escritura por falta
// de espacio. Dispara la política de evicción en saveWithEviction.
var ErrCapacityExceeded = errors.New("conversation storage capacity exceeded")

const (
	// Solo evictamos si hay más de evictionThreshold conversaciones guardadas.
	evictionThreshold = 10
	// Cantidad de conversaciones menos recientes que se descartan por intento.
	evictionBatch = 2
)

// ConversationStore persiste la colección completa de conversaciones y el id
// de la conversación activa como dos registros independientes.
//
// Load trata datos corruptos o ausentes como colección vacía. Save absorbe
// las fallas de escritura: ante un límite de capacidad evicta las menos
// recientes y reintenta una vez; si aún falla, loggea y abandona en silencio
// (el estado en memoria del caller sigue siendo la fuente de verdad).
type ConversationStore interface {
	Load(ctx context.Context) ([]domain.Conversation, error)
	Save(ctx context.Context, convs []domain.Conversation) error
	LoadSelectedID(ctx context.Context) (string, error)
	SaveSelectedID(ctx context.Context, id string) error
}

type writeFunc func(ctx context.Context, convs []domain.Conversation) error

// saveWithEviction aplica la política común de escritura: intento directo,
// evicción de las dos más viejas por updatedAt y un único reintento.
func saveWithEviction(ctx context.Context, logger *zap.Logger, convs []domain.Conversation, write writeFunc) error {
	err := write(ctx, convs)
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrCapacityExceeded) && len(convs) > evictionThreshold {
		trimmed := dropOldest(convs, evictionBatch)
		retryErr := write(ctx, trimmed)
		if retryErr == nil {
			if logger != nil {
				logger.Warn("conversation storage full, evicted oldest",
					zap.Int("dropped", len(convs)-len(trimmed)))
			}
			return nil
		}
		err = retryErr
	}

	if logger != nil {
		logger.Warn("conversation save failed", zap.Error(err))
	}
	return nil
}

// dropOldest devuelve una copia de la colección sin las n conversaciones con
// updatedAt más antiguo. La conversación recién tocada nunca cae acá porque
// siempre es la más reciente.
func dropOldest(convs []domain.Conversation, n int) []domain.Conversation {
	sorted := make([]domain.Conversation, len(convs))
	copy(sorted, convs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UpdatedAt.Before(sorted[j].UpdatedAt)
	})
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[n:]
}
