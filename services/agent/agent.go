package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"threatexplorer/models"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const defaultChunkSize = 30

var errNoChoices = errors.New("model returned no choices")

// TabularStore is the read-only view of the attacks dataset that agents and
// tools consume. Injected explicitly so tests can substitute a fixture table.
type TabularStore interface {
	Execute(query string) ([]map[string]string, error)
	DescribeSchema() (*models.SchemaInfo, error)
}

type ChatOptions struct {
	Temperature float64
	MaxTokens   int
}

// StreamFunc receives answer text incrementally. Returning an error stops
// the stream.
type StreamFunc func(chunk string) error

// Agent is one response strategy. Chat returns a complete response envelope;
// ChatStream delivers the answer text through onChunk and returns the same
// envelope. Model backend failures are reported inside the envelope's
// metadata, not raised, so callers only see an error for programming
// mistakes.
type Agent interface {
	Chat(ctx context.Context, messages []models.Message, opts ChatOptions) (*models.ChatResponse, error)
	ChatStream(ctx context.Context, messages []models.Message, opts ChatOptions, onChunk StreamFunc) (*models.ChatResponse, error)
	AgentType() string
}

type FactoryConfig struct {
	AgentType     string
	APIKey        string
	Model         string
	MaxIterations int
	RowLimit      int
	ChunkSize     int
}

// NewAgent builds the configured strategy backed by an OpenAI chat model.
func NewAgent(cfg FactoryConfig, store TabularStore) (Agent, error) {
	llm, err := openai.New(
		openai.WithModel(cfg.Model),
		openai.WithToken(cfg.APIKey),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}

	switch cfg.AgentType {
	case "llm":
		return NewLLMAgent(llm), nil
	case "react":
		return NewReACTAgent(llm, store, cfg.MaxIterations, cfg.RowLimit, cfg.ChunkSize), nil
	case "multi":
		return NewMultiAgent(llm, store, cfg.RowLimit, cfg.ChunkSize), nil
	default:
		return nil, fmt.Errorf("unknown agent type: %s", cfg.AgentType)
	}
}

// buildHistory converts conversation messages to the model's format with a
// leading system turn. A system message in the conversation replaces the
// default prompt.
func buildHistory(defaultSystemPrompt string, messages []models.Message) []llms.MessageContent {
	systemPrompt := defaultSystemPrompt
	var conversation []llms.MessageContent

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			systemPrompt = msg.Content
		case "user":
			conversation = append(conversation, llms.TextParts(llms.ChatMessageTypeHuman, msg.Content))
		case "assistant":
			conversation = append(conversation, llms.TextParts(llms.ChatMessageTypeAI, msg.Content))
		}
	}

	history := make([]llms.MessageContent, 0, len(conversation)+1)
	history = append(history, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	return append(history, conversation...)
}

func assistantMessage(agentType, content string) models.Message {
	return models.Message{
		Role:      "assistant",
		Content:   content,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		AgentType: agentType,
	}
}

func errorResponse(agentType string, err error) *models.ChatResponse {
	return &models.ChatResponse{
		Message: assistantMessage(agentType,
			fmt.Sprintf("I encountered an error while processing your request: %v", err)),
		Metadata: map[string]any{
			"agent_type": agentType,
			"error":      err.Error(),
		},
	}
}

// accumulateUsage folds a model call's token counts into the running total.
// Backends that report no usage contribute zero.
func accumulateUsage(usage *models.Usage, info map[string]any) {
	usage.PromptTokens += intFromInfo(info, "PromptTokens")
	usage.CompletionTokens += intFromInfo(info, "CompletionTokens")
	usage.TotalTokens += intFromInfo(info, "TotalTokens")
}

func intFromInfo(info map[string]any, key string) int {
	if info == nil {
		return 0
	}
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func chunkText(text string, size int) []string {
	if size <= 0 {
		size = 30
	}

	var chunks []string
	for start := 0; start < len(text); start += size {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
	}
	return chunks
}
