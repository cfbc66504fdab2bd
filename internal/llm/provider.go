package llm

import (
	"context"

	"gemini-chat/internal/domain"
)

// Generator define la interfaz del gateway de generación remota.
type Generator interface {
	Generate(ctx context.Context, history []domain.Message, model string) (Result, error)
}

// Result es la respuesta del proveedor ya normalizada al modelo local.
// Model es el modelo efectivamente usado; Substituted queda en true cuando
// el id pedido no existía y se usó el fallback, para que el caller pueda
// avisarlo en vez de ocultar el reemplazo.
type Result struct {
	Message     domain.Message
	Model       string
	Substituted bool
}
