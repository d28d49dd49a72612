package agent

import (
	"context"
	"log"
	"strings"

	"threatexplorer/models"

	"github.com/samber/lo"
	"github.com/tmc/langchaingo/llms"
)

// ReACTAgent drives the tool-calling conversation loop: it calls the model,
// executes any requested tools, appends the results to the conversation and
// repeats until the model answers without tools or the iteration cap is hit.
type ReACTAgent struct {
	llm           llms.Model
	registry      *Registry
	maxIterations int
	chunkSize     int
}

func NewReACTAgent(llm llms.Model, store TabularStore, maxIterations, rowLimit, chunkSize int) *ReACTAgent {
	if maxIterations <= 0 {
		maxIterations = 5
	}
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	registry := NewRegistry(
		NewQueryDatabaseTool(store, rowLimit),
		NewGetDatabaseInfoTool(store),
	)

	return &ReACTAgent{
		llm:           llm,
		registry:      registry,
		maxIterations: maxIterations,
		chunkSize:     chunkSize,
	}
}

func (a *ReACTAgent) AgentType() string {
	return "react"
}

type loopResult struct {
	content    string
	usage      models.Usage
	iterations int
	toolsUsed  []string
	history    []llms.MessageContent
}

// runToolLoop performs at most maxIterations model invocations. Tool calls
// are executed strictly in the order the model returned them, each result
// appended before the next model call. Reaching the cap while the model is
// still requesting tools is a normal exit: the last model output is returned
// as-is.
func (a *ReACTAgent) runToolLoop(ctx context.Context, history []llms.MessageContent, opts ChatOptions) (*loopResult, error) {
	result := &loopResult{toolsUsed: []string{}}

	for result.iterations < a.maxIterations {
		result.iterations++

		resp, err := a.llm.GenerateContent(ctx, history,
			llms.WithTools(a.registry.Specs()),
			llms.WithTemperature(opts.Temperature),
		)
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, errNoChoices
		}

		choice := resp.Choices[0]
		accumulateUsage(&result.usage, choice.GenerationInfo)
		result.content = choice.Content

		if len(choice.ToolCalls) == 0 {
			break
		}

		log.Printf("[INFO] Iteration %d: model requested %d tool call(s)", result.iterations, len(choice.ToolCalls))
		history = append(history, assistantToolCallTurn(choice))

		for _, toolCall := range choice.ToolCalls {
			if toolCall.FunctionCall == nil {
				continue
			}

			name := toolCall.FunctionCall.Name
			log.Printf("[INFO] Calling tool: %s with arguments: %s", name, toolCall.FunctionCall.Arguments)

			toolResult := a.registry.Dispatch(ctx, name, toolCall.FunctionCall.Arguments)
			if !lo.Contains(result.toolsUsed, name) {
				result.toolsUsed = append(result.toolsUsed, name)
			}

			history = append(history, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{
						ToolCallID: toolCall.ID,
						Name:       name,
						Content:    toolResult,
					},
				},
			})
		}
	}

	result.history = history
	return result, nil
}

func assistantToolCallTurn(choice *llms.ContentChoice) llms.MessageContent {
	var parts []llms.ContentPart
	if choice.Content != "" {
		parts = append(parts, llms.TextContent{Text: choice.Content})
	}
	for _, toolCall := range choice.ToolCalls {
		parts = append(parts, toolCall)
	}
	return llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: parts}
}

func (a *ReACTAgent) Chat(ctx context.Context, messages []models.Message, opts ChatOptions) (*models.ChatResponse, error) {
	log.Printf("[INFO] ReACT agent starting with %d messages, tools: %v", len(messages), a.registry.Names())

	history := buildHistory(reactSystemPrompt, messages)
	if len(history) == 1 {
		return a.emptyConversationResponse(), nil
	}

	result, err := a.runToolLoop(ctx, history, opts)
	if err != nil {
		log.Printf("[ERROR] ReACT agent failed: %v", err)
		return errorResponse(a.AgentType(), err), nil
	}

	log.Printf("[INFO] ReACT agent complete after %d iteration(s), tools used: %v", result.iterations, result.toolsUsed)

	return &models.ChatResponse{
		Message: assistantMessage(a.AgentType(), result.content),
		Usage:   result.usage,
		Metadata: map[string]any{
			"agent_type": a.AgentType(),
			"tools_used": result.toolsUsed,
			"iterations": result.iterations,
		},
	}, nil
}

// ChatStream resolves tool calls without streaming, then emits the final
// tool-free answer incrementally in fixed-size slices. Concatenating the
// chunks reproduces the non-streaming answer.
func (a *ReACTAgent) ChatStream(ctx context.Context, messages []models.Message, opts ChatOptions, onChunk StreamFunc) (*models.ChatResponse, error) {
	log.Printf("[INFO] ReACT agent streaming with %d messages", len(messages))

	history := buildHistory(reactSystemPrompt, messages)
	if len(history) == 1 {
		resp := a.emptyConversationResponse()
		if err := onChunk(resp.Message.Content); err != nil {
			return resp, err
		}
		return resp, nil
	}

	result, err := a.runToolLoop(ctx, history, opts)
	if err != nil {
		log.Printf("[ERROR] ReACT agent streaming failed: %v", err)
		resp := errorResponse(a.AgentType(), err)
		for _, chunk := range chunkText(resp.Message.Content, a.chunkSize) {
			if chunkErr := onChunk(chunk); chunkErr != nil {
				return resp, chunkErr
			}
		}
		return resp, nil
	}

	content := result.content
	if content == "" {
		// The loop ended without a buffered answer; make one streaming
		// call over the resolved conversation to produce it.
		var answer strings.Builder
		_, streamErr := a.llm.GenerateContent(ctx, result.history,
			llms.WithTools(a.registry.Specs()),
			llms.WithTemperature(opts.Temperature),
			llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				answer.Write(chunk)
				return onChunk(string(chunk))
			}),
		)
		if streamErr != nil {
			log.Printf("[ERROR] ReACT agent final streaming call failed: %v", streamErr)
			resp := errorResponse(a.AgentType(), streamErr)
			for _, chunk := range chunkText(resp.Message.Content, a.chunkSize) {
				if chunkErr := onChunk(chunk); chunkErr != nil {
					return resp, chunkErr
				}
			}
			return resp, nil
		}
		content = answer.String()
	} else {
		for _, chunk := range chunkText(content, a.chunkSize) {
			if chunkErr := onChunk(chunk); chunkErr != nil {
				return nil, chunkErr
			}
		}
	}

	log.Printf("[INFO] ReACT agent streaming complete after %d iteration(s)", result.iterations)

	return &models.ChatResponse{
		Message: assistantMessage(a.AgentType(), content),
		Usage:   result.usage,
		Metadata: map[string]any{
			"agent_type": a.AgentType(),
			"tools_used": result.toolsUsed,
			"iterations": result.iterations,
		},
	}, nil
}

func (a *ReACTAgent) emptyConversationResponse() *models.ChatResponse {
	return &models.ChatResponse{
		Message: assistantMessage(a.AgentType(), "No messages provided."),
		Metadata: map[string]any{
			"agent_type": a.AgentType(),
			"error":      "no messages",
		},
	}
}
