package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"threatexplorer/models"
	"threatexplorer/services"
	"threatexplorer/services/agent"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 2000
)

type ChatHandler struct {
	agent   agent.Agent
	convLog *services.ConversationLogService
}

func NewChatHandler(agentService agent.Agent, convLog *services.ConversationLogService) *ChatHandler {
	return &ChatHandler{agent: agentService, convLog: convLog}
}

func (h *ChatHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/chat", h.ProcessChat).Methods("POST")
	router.HandleFunc("/chat/stream", h.StreamChat).Methods("POST")
}

func (h *ChatHandler) ProcessChat(w http.ResponseWriter, r *http.Request) {
	log.Printf("[INFO] Received chat request")

	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	response, err := h.agent.Chat(r.Context(), req.Messages, chatOptions(req))
	if err != nil {
		// Model backend failures degrade to a structural error result,
		// never a transport-level failure.
		log.Printf("[ERROR] Agent processing failed: %v", err)
		response = backendErrorResponse(h.agent.AgentType(), err)
	}

	conversationID := h.logExchange(req, response)
	response.Metadata["conversation_id"] = conversationID

	log.Printf("[INFO] Chat request completed (agent=%s)", h.agent.AgentType())
	h.writeJSONResponse(w, http.StatusOK, response)
}

// StreamChat resolves the answer with tool calls settled up front, then
// writes the answer text incrementally as a flushed event stream.
func (h *ChatHandler) StreamChat(w http.ResponseWriter, r *http.Request) {
	log.Printf("[INFO] Received streaming chat request")

	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	flusher, flushable := w.(http.Flusher)
	if !flushable {
		h.writeErrorResponse(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	response, err := h.agent.ChatStream(r.Context(), req.Messages, chatOptions(req), func(chunk string) error {
		if _, writeErr := fmt.Fprint(w, chunk); writeErr != nil {
			return writeErr
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] Streaming chat aborted: %v", err)
		return
	}

	h.logExchange(req, response)
	log.Printf("[INFO] Streaming chat request completed (agent=%s)", h.agent.AgentType())
}

func (h *ChatHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (*models.ChatRequest, bool) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[ERROR] Failed to decode chat request JSON: %v", err)
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON payload")
		return nil, false
	}

	if len(req.Messages) == 0 {
		log.Printf("[ERROR] No messages provided in chat request")
		h.writeErrorResponse(w, http.StatusBadRequest, "At least one message is required")
		return nil, false
	}

	return &req, true
}

func (h *ChatHandler) logExchange(req *models.ChatRequest, response *models.ChatResponse) string {
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	if response.Metadata == nil {
		response.Metadata = map[string]any{"agent_type": h.agent.AgentType()}
	}

	transcript := append(append([]models.Message{}, req.Messages...), response.Message)
	if err := h.convLog.LogConversation(conversationID, transcript, h.agent.AgentType()); err != nil {
		log.Printf("[ERROR] Failed to log conversation %s: %v", conversationID, err)
	}

	return conversationID
}

func chatOptions(req *models.ChatRequest) agent.ChatOptions {
	opts := agent.ChatOptions{
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	}
	if req.Temperature != nil {
		opts.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		opts.MaxTokens = *req.MaxTokens
	}
	return opts
}

func backendErrorResponse(agentType string, err error) *models.ChatResponse {
	return &models.ChatResponse{
		Message: models.Message{
			Role:      "assistant",
			Content:   fmt.Sprintf("I encountered an error while processing your request: %v", err),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			AgentType: agentType,
		},
		Metadata: map[string]any{
			"agent_type": agentType,
			"error":      err.Error(),
		},
	}
}

func (h *ChatHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (h *ChatHandler) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
