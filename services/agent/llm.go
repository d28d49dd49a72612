package agent

import (
	"context"
	"log"
	"strings"

	"threatexplorer/models"

	"github.com/tmc/langchaingo/llms"
)

// LLMAgent answers with a single direct model call, no tools. Best for
// straightforward question-answering.
type LLMAgent struct {
	llm llms.Model
}

func NewLLMAgent(llm llms.Model) *LLMAgent {
	return &LLMAgent{llm: llm}
}

func (a *LLMAgent) AgentType() string {
	return "llm"
}

func (a *LLMAgent) Chat(ctx context.Context, messages []models.Message, opts ChatOptions) (*models.ChatResponse, error) {
	log.Printf("[INFO] LLM agent processing %d messages", len(messages))

	history := buildHistory(llmSystemPrompt, messages)

	resp, err := a.llm.GenerateContent(ctx, history, a.callOptions(opts)...)
	if err != nil {
		log.Printf("[ERROR] LLM agent model call failed: %v", err)
		return errorResponse(a.AgentType(), err), nil
	}
	if len(resp.Choices) == 0 {
		log.Printf("[ERROR] LLM agent received no choices from model")
		return errorResponse(a.AgentType(), errNoChoices), nil
	}

	choice := resp.Choices[0]

	var usage models.Usage
	accumulateUsage(&usage, choice.GenerationInfo)

	return &models.ChatResponse{
		Message: assistantMessage(a.AgentType(), choice.Content),
		Usage:   usage,
		Metadata: map[string]any{
			"agent_type": a.AgentType(),
		},
	}, nil
}

func (a *LLMAgent) ChatStream(ctx context.Context, messages []models.Message, opts ChatOptions, onChunk StreamFunc) (*models.ChatResponse, error) {
	log.Printf("[INFO] LLM agent streaming for %d messages", len(messages))

	history := buildHistory(llmSystemPrompt, messages)

	var answer strings.Builder
	callOpts := append(a.callOptions(opts), llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
		answer.Write(chunk)
		return onChunk(string(chunk))
	}))

	resp, err := a.llm.GenerateContent(ctx, history, callOpts...)
	if err != nil {
		log.Printf("[ERROR] LLM agent streaming call failed: %v", err)
		result := errorResponse(a.AgentType(), err)
		for _, chunk := range chunkText(result.Message.Content, defaultChunkSize) {
			if chunkErr := onChunk(chunk); chunkErr != nil {
				return result, chunkErr
			}
		}
		return result, nil
	}

	var usage models.Usage
	content := answer.String()
	if len(resp.Choices) > 0 {
		accumulateUsage(&usage, resp.Choices[0].GenerationInfo)
		if content == "" {
			content = resp.Choices[0].Content
		}
	}

	return &models.ChatResponse{
		Message: assistantMessage(a.AgentType(), content),
		Usage:   usage,
		Metadata: map[string]any{
			"agent_type": a.AgentType(),
		},
	}, nil
}

func (a *LLMAgent) callOptions(opts ChatOptions) []llms.CallOption {
	callOpts := []llms.CallOption{llms.WithTemperature(opts.Temperature)}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}
	return callOpts
}
