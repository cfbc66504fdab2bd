package service

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gemini-chat/internal/domain"
)

const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

const exportTimeLayout = "2006-01-02 15:04:05"

var filenameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9]`)

// ExportResult es un documento exportado listo para descargar: el caller se
// encarga de escribirlo donde corresponda.
type ExportResult struct {
	Content     string `json:"content"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

// ToMarkdown serializa la conversación como documento Markdown: título,
// timestamps de ciclo de vida y cada mensaje como sección rotulada por rol,
// separados por reglas horizontales, en orden de conversación.
func ToMarkdown(conv domain.Conversation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", conv.Title)
	fmt.Fprintf(&sb, "*Created: %s*\n\n", conv.CreatedAt.Format(exportTimeLayout))
	fmt.Fprintf(&sb, "*Last updated: %s*\n\n", conv.UpdatedAt.Format(exportTimeLayout))
	sb.WriteString("---\n\n")

	for _, msg := range conv.Messages {
		label := "AI Assistant"
		if msg.Role == domain.RoleUser {
			label = "You"
		}
		fmt.Fprintf(&sb, "## %s (%s)\n%s\n\n", label, msg.Timestamp.Format(exportTimeLayout), msg.Content)
		sb.WriteString("---\n\n")
	}

	return sb.String()
}

// ToJSON serializa la conversación como JSON indentado. Es un formato de
// intercambio sin pérdida: parsearlo reproduce una conversación equivalente.
func ToJSON(conv domain.Conversation) (string, error) {
	out, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal conversation: %w", err)
	}
	return string(out), nil
}

// ExportFilename arma el nombre de archivo: título con los caracteres no
// alfanuméricos reemplazados por guión bajo, más la fecha de exportación.
func ExportFilename(title, format string, now time.Time) string {
	base := filenameSanitizer.ReplaceAllString(title, "_")
	ext := ".json"
	if format == FormatMarkdown {
		ext = ".md"
	}
	return fmt.Sprintf("%s_%s%s", base, now.Format("2006-01-02"), ext)
}

// Export produce el documento exportado de una conversación en el formato pedido.
func (s *ChatService) Export(id, format string) (ExportResult, error) {
	conv, ok := s.Get(id)
	if !ok {
		return ExportResult{}, ErrConversationNotFound
	}

	now := time.Now()
	switch format {
	case FormatMarkdown:
		return ExportResult{
			Content:     ToMarkdown(conv),
			Filename:    ExportFilename(conv.Title, FormatMarkdown, now),
			ContentType: "text/markdown",
		}, nil
	case FormatJSON:
		content, err := ToJSON(conv)
		if err != nil {
			return ExportResult{}, err
		}
		return ExportResult{
			Content:     content,
			Filename:    ExportFilename(conv.Title, FormatJSON, now),
			ContentType: "application/json",
		}, nil
	default:
		return ExportResult{}, fmt.Errorf("unknown export format %q", format)
	}
}
