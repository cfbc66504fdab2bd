package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gemini-chat/internal/config"
	"gemini-chat/internal/db"
	"gemini-chat/internal/domain"
	"gemini-chat/internal/llm"
	"gemini-chat/internal/repository"
	"gemini-chat/internal/service"
)

func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := zap.NewExample()
	defer logger.Sync()

	store := newConversationStore(ctx, cfg, logger)
	geminiClient := llm.NewGeminiClient(
		cfg.GeminiBaseURL,
		cfg.GeminiAPIKey,
		cfg.GeminiModel,
		cfg.GeminiFallbackModel,
		logger,
	)

	chatSvc, err := service.NewChatService(ctx, store, geminiClient, logger)
	if err != nil {
		log.Fatal(err)
	}

	model := cfg.GeminiModel

	for {
		fmt.Println("===== Gemini Chat =====")
		convs := flatConversations(chatSvc)
		for i, conv := range convs {
			fmt.Printf("[%d] %s (%d mensajes)\n", i+1, conv.Title, len(conv.Messages))
		}
		fmt.Println("[N] Nueva conversación")
		if len(convs) > 0 {
			fmt.Println("[D] Borrar una conversación")
			fmt.Println("[A] Borrar todas")
		}
		fmt.Printf("[M] Modelo (actual: %s)\n", model)
		fmt.Println("[Q] Salir")
		fmt.Print("Elige una opción: ")

		choice := readLine(reader)
		switch {
		case strings.EqualFold(choice, "Q"):
			return
		case strings.EqualFold(choice, "N"):
			conv := chatSvc.Create(ctx)
			chatLoop(ctx, reader, chatSvc, conv.ID, model)
		case strings.EqualFold(choice, "M"):
			model = chooseModel(reader, chatSvc, model)
		case strings.EqualFold(choice, "D") && len(convs) > 0:
			fmt.Print("Número a borrar: ")
			if idx, err := strconv.Atoi(readLine(reader)); err == nil && idx >= 1 && idx <= len(convs) {
				if err := chatSvc.Delete(ctx, convs[idx-1].ID); err != nil {
					fmt.Printf("no se pudo borrar: %v\n", err)
				}
			}
		case strings.EqualFold(choice, "A") && len(convs) > 0:
			chatSvc.DeleteAll(ctx)
		default:
			idx, err := strconv.Atoi(choice)
			if err != nil || idx < 1 || idx > len(convs) {
				fmt.Println("Opción inválida.")
				continue
			}
			conv := convs[idx-1]
			if err := chatSvc.Select(ctx, conv.ID); err != nil {
				fmt.Printf("no se pudo seleccionar: %v\n", err)
				continue
			}
			chatLoop(ctx, reader, chatSvc, conv.ID, model)
		}
	}
}

// chatLoop corre el intercambio de mensajes sobre la conversación activa.
// Comandos: /export md|json, /back para volver al menú.
func chatLoop(ctx context.Context, reader *bufio.Reader, chatSvc *service.ChatService, convID, model string) {
	if conv, ok := chatSvc.Get(convID); ok {
		for _, msg := range conv.Messages {
			printMessage(msg)
		}
	}

	for {
		fmt.Print("> ")
		text := readLine(reader)
		switch {
		case text == "":
			continue
		case text == "/back":
			return
		case strings.HasPrefix(text, "/export"):
			format := service.FormatMarkdown
			if strings.HasSuffix(text, "json") {
				format = service.FormatJSON
			}
			exportConversation(chatSvc, convID, format)
			continue
		}

		fmt.Println("...")
		res, err := chatSvc.Send(ctx, text, model)
		if errors.Is(err, service.ErrSendInFlight) {
			fmt.Println("Todavía esperando la respuesta anterior.")
			continue
		}
		if err != nil {
			fmt.Printf("envío falló: %v\n", err)
			continue
		}
		printMessage(res.Reply)
		if res.Substituted {
			fmt.Printf("(aviso: el proveedor usó %s en lugar del modelo pedido)\n", res.Model)
		}
	}
}

func chooseModel(reader *bufio.Reader, chatSvc *service.ChatService, current string) string {
	fmt.Println("Modelos disponibles:")
	options := chatSvc.Models()
	for i, opt := range options {
		fmt.Printf("[%d] %s - %s\n", i+1, opt.Name, opt.Description)
	}
	fmt.Print("Selecciona un modelo: ")
	idx, err := strconv.Atoi(readLine(reader))
	if err != nil || idx < 1 || idx > len(options) {
		return current
	}
	return options[idx-1].ID
}

func exportConversation(chatSvc *service.ChatService, convID, format string) {
	res, err := chatSvc.Export(convID, format)
	if err != nil {
		fmt.Printf("export falló: %v\n", err)
		return
	}
	path := filepath.Join(".", res.Filename)
	if err := os.WriteFile(path, []byte(res.Content), 0o644); err != nil {
		fmt.Printf("no se pudo escribir %s: %v\n", path, err)
		return
	}
	fmt.Printf("Exportado a %s\n", path)
}

func printMessage(msg domain.Message) {
	label := "Gemini"
	if msg.Role == domain.RoleUser {
		label = "Tú"
	}
	if msg.IsError {
		label = "Gemini (error)"
	}
	fmt.Printf("%s: %s\n", label, msg.Content)
}

func flatConversations(chatSvc *service.ChatService) []domain.Conversation {
	groups, _ := chatSvc.List()
	var out []domain.Conversation
	for _, g := range groups {
		out = append(out, g.Conversations...)
	}
	return out
}

func readLine(reader *bufio.Reader) string {
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

// newConversationStore replica la selección de backend del binario api:
// postgres, redis o memoria, en ese orden de preferencia.
func newConversationStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) repository.ConversationStore {
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			log.Fatal(err)
		}
		store := repository.NewPgConversationStore(pool, cfg.MaxConversations, logger)
		if err := store.EnsureSchema(ctx); err != nil {
			log.Fatal(err)
		}
		return store
	}

	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err == nil {
			return repository.NewRedisConversationStore(redisClient, logger)
		}
		logger.Warn("redis ping failed, falling back to memory store")
	}

	return repository.NewMemoryConversationStore(cfg.MaxConversations, logger)
}
