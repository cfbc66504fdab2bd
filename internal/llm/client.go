package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"gemini-chat/internal/domain"
)

// Parámetros de muestreo fijos, no ajustables por el usuario.
const (
	genTemperature     = 0.7
	genTopK            = 40
	genTopP            = 0.95
	genMaxOutputTokens = 8192
)

// GeminiClient implementa Generator contra la API generateContent de Gemini.
type GeminiClient struct {
	baseURL       string
	apiKey        string
	defaultModel  string
	fallbackModel string
	client        *http.Client
	logger        *zap.Logger
}

// NewGeminiClient construye el cliente HTTP del proveedor. Un id de modelo
// fuera del catálogo se reemplaza por fallbackModel en vez de fallar.
func NewGeminiClient(baseURL, apiKey, defaultModel, fallbackModel string, logger *zap.Logger) *GeminiClient {
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	return &GeminiClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        apiKey,
		defaultModel:  defaultModel,
		fallbackModel: fallbackModel,
		client:        &http.Client{Timeout: 60 * time.Second},
		logger:        logger,
	}
}

func (c *GeminiClient) Generate(ctx context.Context, history []domain.Message, model string) (Result, error) {
	model, substituted := c.resolveModel(model)

	reqBody := generateRequest{
		Contents:         toContents(history),
		Tools:            []tool{{GoogleSearch: map[string]any{}}},
		GenerationConfig: generationConfig{
			Temperature:     genTemperature,
			TopK:            genTopK,
			TopP:            genTopP,
			MaxOutputTokens: genMaxOutputTokens,
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}

	var gr generateResponse
	if resp.StatusCode >= 400 {
		if c.logger != nil {
			c.logger.Warn("gemini error response",
				zap.Int("status", resp.StatusCode),
				zap.String("model", model))
		}
		if json.Unmarshal(respBody, &gr) == nil && gr.Error != nil {
			return Result{}, fmt.Errorf("gemini api error: %s", gr.Error.Message)
		}
		return Result{}, fmt.Errorf("gemini http error: status=%d", resp.StatusCode)
	}

	if err := json.Unmarshal(respBody, &gr); err != nil {
		return Result{}, fmt.Errorf("unmarshal response: %w", err)
	}

	if gr.Error != nil {
		return Result{}, fmt.Errorf("gemini api error: %s", gr.Error.Message)
	}

	text := gr.text()
	if text == "" {
		return Result{}, fmt.Errorf("gemini empty response")
	}

	return Result{
		Message: domain.Message{
			Role:      domain.RoleAssistant,
			Content:   text,
			Timestamp: time.Now().UTC(),
		},
		Model:       model,
		Substituted: substituted,
	}, nil
}

// resolveModel mapea el id pedido al modelo a usar. Vacío usa el default;
// un id fuera del catálogo cae al fallback y se marca la sustitución.
func (c *GeminiClient) resolveModel(model string) (string, bool) {
	if model == "" {
		return c.defaultModel, false
	}
	if domain.KnownModel(model) {
		return model, false
	}
	return c.fallbackModel, true
}

// toContents mapea el historial local al formato de turnos de Gemini:
// role "user" para el usuario y "model" para el asistente.
func toContents(history []domain.Message) []content {
	contents := make([]content, 0, len(history))
	for _, msg := range history {
		role := "model"
		if msg.Role == domain.RoleUser {
			role = "user"
		}
		contents = append(contents, content{
			Role:  role,
			Parts: []part{{Text: msg.Content}},
		})
	}
	return contents
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	Tools            []tool           `json:"tools"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type tool struct {
	GoogleSearch map[string]any `json:"google_search"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (r *generateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}
