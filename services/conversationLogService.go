package services

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"threatexplorer/models"
)

type conversationLog struct {
	ConversationID string           `json:"conversation_id"`
	AgentType      string           `json:"agent_type"`
	StartedAt      string           `json:"started_at"`
	EndedAt        string           `json:"ended_at,omitempty"`
	Messages       []models.Message `json:"messages"`

	filepath string
}

// ConversationLogService persists conversation transcripts as one JSON file
// per conversation. Logging failures are reported but never fail a chat
// request.
type ConversationLogService struct {
	logsDir string

	mu     sync.Mutex
	active map[string]*conversationLog
}

func NewConversationLogService(logsDir string) *ConversationLogService {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		log.Printf("[ERROR] Failed to create logs directory %s: %v", logsDir, err)
	}

	return &ConversationLogService{
		logsDir: logsDir,
		active:  make(map[string]*conversationLog),
	}
}

// StartConversation begins tracking a conversation. The log filename is
// fixed when the conversation starts so later writes update the same file.
func (s *ConversationLogService) StartConversation(conversationID, agentType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startLocked(conversationID, agentType)
}

func (s *ConversationLogService) startLocked(conversationID, agentType string) *conversationLog {
	if existing, ok := s.active[conversationID]; ok {
		return existing
	}

	now := time.Now()
	filename := fmt.Sprintf("conversation_%s_%s.json", conversationID, now.Format("20060102_150405"))

	entry := &conversationLog{
		ConversationID: conversationID,
		AgentType:      agentType,
		StartedAt:      now.Format(time.RFC3339),
		Messages:       []models.Message{},
		filepath:       filepath.Join(s.logsDir, filename),
	}
	s.active[conversationID] = entry
	return entry
}

// LogConversation records the messages of an exchange and writes the log
// file. Messages already recorded for the conversation are skipped.
func (s *ConversationLogService) LogConversation(conversationID string, messages []models.Message, agentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.startLocked(conversationID, agentType)

	for _, msg := range messages {
		if msg.Timestamp == "" {
			msg.Timestamp = time.Now().Format(time.RFC3339)
		}
		if !containsMessage(entry.Messages, msg) {
			entry.Messages = append(entry.Messages, msg)
		}
	}

	return s.writeLocked(entry)
}

// EndConversation marks the conversation finished, writes the final log and
// stops tracking it.
func (s *ConversationLogService) EndConversation(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.active[conversationID]
	if !ok {
		return nil
	}

	entry.EndedAt = time.Now().Format(time.RFC3339)
	err := s.writeLocked(entry)
	delete(s.active, conversationID)
	return err
}

func (s *ConversationLogService) writeLocked(entry *conversationLog) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal conversation log: %w", err)
	}

	if err := os.WriteFile(entry.filepath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write conversation log: %w", err)
	}

	return nil
}

func containsMessage(messages []models.Message, candidate models.Message) bool {
	for _, msg := range messages {
		if msg.Role == candidate.Role && msg.Content == candidate.Content {
			return true
		}
	}
	return false
}
