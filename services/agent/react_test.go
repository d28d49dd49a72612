package agent

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"threatexplorer/db"
	"threatexplorer/models"

	"github.com/tmc/langchaingo/llms"
)

// scriptedModel replays a fixed sequence of responses, repeating the last
// one when exhausted, and records every conversation it was called with.
type scriptedModel struct {
	responses []*llms.ContentResponse
	errs      []error
	calls     int
	received  [][]llms.MessageContent
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	index := m.calls
	m.calls++

	snapshot := make([]llms.MessageContent, len(messages))
	copy(snapshot, messages)
	m.received = append(m.received, snapshot)

	if index < len(m.errs) && m.errs[index] != nil {
		return nil, m.errs[index]
	}
	if index >= len(m.responses) {
		index = len(m.responses) - 1
	}
	return m.responses[index], nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", errors.New("not implemented")
}

func textResponse(content string, info map[string]any) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{Content: content, GenerationInfo: info},
		},
	}
}

func toolCallResponse(id, name, arguments string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				ToolCalls: []llms.ToolCall{
					{
						ID:   id,
						Type: "function",
						FunctionCall: &llms.FunctionCall{
							Name:      name,
							Arguments: arguments,
						},
					},
				},
			},
		},
	}
}

// stubStore is a scripted TabularStore that records executed queries.
type stubStore struct {
	rows     []map[string]string
	err      error
	schema   *models.SchemaInfo
	executed []string
}

func (s *stubStore) Execute(query string) ([]map[string]string, error) {
	s.executed = append(s.executed, query)
	if s.err != nil {
		return nil, s.err
	}
	return s.rows, nil
}

func (s *stubStore) DescribeSchema() (*models.SchemaInfo, error) {
	if s.schema == nil {
		return nil, errors.New("no schema")
	}
	return s.schema, nil
}

func newAttackFixtureStore(t *testing.T) *db.AttackStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "attacks.csv")
	content := "Type,Severity\nMalware,High\nDDoS,Low\nMalware,Critical\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write fixture CSV: %v", err)
	}

	store, err := db.NewAttackStore(path)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func userMessages(content string) []models.Message {
	return []models.Message{{Role: "user", Content: content}}
}

func TestReACTAgentStopsAtIterationCap(t *testing.T) {
	model := &scriptedModel{
		responses: []*llms.ContentResponse{
			toolCallResponse("call_1", "get_database_info", "{}"),
		},
	}
	store := &stubStore{schema: &models.SchemaInfo{TableName: "attacks", RowCount: 3}}

	reactAgent := NewReACTAgent(model, store, 5, 50, 30)
	resp, err := reactAgent.Chat(context.Background(), userMessages("How many attacks are there?"), ChatOptions{})
	if err != nil {
		t.Fatalf("Chat() returned error: %v", err)
	}

	if model.calls != 5 {
		t.Errorf("expected exactly 5 model invocations, got %d", model.calls)
	}
	if resp.Metadata["iterations"] != 5 {
		t.Errorf("expected iterations=5 in metadata, got %v", resp.Metadata["iterations"])
	}
	if errMeta, ok := resp.Metadata["error"]; ok {
		t.Errorf("capped exit should not report an error, got %v", errMeta)
	}
}

func TestReACTAgentNoToolCalls(t *testing.T) {
	model := &scriptedModel{
		responses: []*llms.ContentResponse{
			textResponse("A SQL injection attack exploits unsanitized input.", map[string]any{
				"PromptTokens":     100,
				"CompletionTokens": 25,
				"TotalTokens":      125,
			}),
		},
	}

	reactAgent := NewReACTAgent(model, &stubStore{}, 5, 50, 30)
	resp, err := reactAgent.Chat(context.Background(), userMessages("What is SQL injection?"), ChatOptions{})
	if err != nil {
		t.Fatalf("Chat() returned error: %v", err)
	}

	if model.calls != 1 {
		t.Errorf("expected exactly 1 model invocation, got %d", model.calls)
	}
	if resp.Message.Content != "A SQL injection attack exploits unsanitized input." {
		t.Errorf("answer text changed: %q", resp.Message.Content)
	}
	if resp.Metadata["iterations"] != 1 {
		t.Errorf("expected iterations=1, got %v", resp.Metadata["iterations"])
	}
	toolsUsed, ok := resp.Metadata["tools_used"].([]string)
	if !ok || len(toolsUsed) != 0 {
		t.Errorf("expected empty tools_used, got %v", resp.Metadata["tools_used"])
	}
	if resp.Usage.PromptTokens != 100 || resp.Usage.CompletionTokens != 25 || resp.Usage.TotalTokens != 125 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}
}

func TestReACTAgentToolQueryFlow(t *testing.T) {
	store := newAttackFixtureStore(t)

	model := &scriptedModel{
		responses: []*llms.ContentResponse{
			toolCallResponse("call_1", "query_database",
				`{"query": "SELECT Type, COUNT(*) AS count FROM attacks GROUP BY Type ORDER BY Type"}`),
			textResponse("Malware accounts for two of the three recorded attacks.", map[string]any{
				"PromptTokens":     200,
				"CompletionTokens": 40,
				"TotalTokens":      240,
			}),
		},
	}

	reactAgent := NewReACTAgent(model, store, 5, 50, 30)
	resp, err := reactAgent.Chat(context.Background(), userMessages("Which attack type is most common?"), ChatOptions{})
	if err != nil {
		t.Fatalf("Chat() returned error: %v", err)
	}

	if resp.Metadata["iterations"] != 2 {
		t.Errorf("expected iterations=2, got %v", resp.Metadata["iterations"])
	}
	toolsUsed, _ := resp.Metadata["tools_used"].([]string)
	if len(toolsUsed) != 1 || toolsUsed[0] != "query_database" {
		t.Errorf("expected tools_used=[query_database], got %v", resp.Metadata["tools_used"])
	}
	if resp.Message.Content != "Malware accounts for two of the three recorded attacks." {
		t.Errorf("unexpected answer text: %q", resp.Message.Content)
	}
	if resp.Usage.TotalTokens != 240 {
		t.Errorf("expected total token count 240, got %d", resp.Usage.TotalTokens)
	}

	// The second model call must have seen the tool result turn.
	if len(model.received) != 2 {
		t.Fatalf("expected 2 recorded conversations, got %d", len(model.received))
	}
	secondCall := model.received[1]
	last := secondCall[len(secondCall)-1]
	if last.Role != llms.ChatMessageTypeTool {
		t.Fatalf("expected final turn to be a tool result, got role %q", last.Role)
	}

	toolResponse, ok := last.Parts[0].(llms.ToolCallResponse)
	if !ok {
		t.Fatalf("expected a ToolCallResponse part, got %T", last.Parts[0])
	}
	if toolResponse.ToolCallID != "call_1" {
		t.Errorf("tool result bound to wrong call id: %q", toolResponse.ToolCallID)
	}

	var envelope struct {
		Success  bool                `json:"success"`
		RowCount int                 `json:"row_count"`
		Data     []map[string]string `json:"data"`
	}
	if err := json.Unmarshal([]byte(toolResponse.Content), &envelope); err != nil {
		t.Fatalf("tool result is not valid JSON: %v", err)
	}
	if !envelope.Success || envelope.RowCount != 2 {
		t.Errorf("expected success with 2 groups, got %+v", envelope)
	}

	counts := map[string]string{}
	for _, row := range envelope.Data {
		counts[row["Type"]] = row["count"]
	}
	if counts["Malware"] != "2" || counts["DDoS"] != "1" {
		t.Errorf("unexpected group counts: %v", counts)
	}
}

func TestReACTAgentBackendError(t *testing.T) {
	model := &scriptedModel{
		errs: []error{errors.New("rate limit exceeded")},
	}

	reactAgent := NewReACTAgent(model, &stubStore{}, 5, 50, 30)
	resp, err := reactAgent.Chat(context.Background(), userMessages("Hello"), ChatOptions{})
	if err != nil {
		t.Fatalf("backend failures must not be raised, got: %v", err)
	}

	errMeta, ok := resp.Metadata["error"].(string)
	if !ok || errMeta == "" {
		t.Errorf("expected non-empty metadata error, got %v", resp.Metadata["error"])
	}
	if resp.Message.Content == "" {
		t.Error("expected a non-empty answer text explaining the failure")
	}
}

func TestReACTAgentStreamMatchesChat(t *testing.T) {
	answer := "Critical severity attacks cluster on segment C, mostly intrusions with anomaly scores above ninety."
	script := func() *scriptedModel {
		return &scriptedModel{
			responses: []*llms.ContentResponse{
				toolCallResponse("call_1", "get_database_info", "{}"),
				textResponse(answer, nil),
			},
		}
	}
	store := &stubStore{schema: &models.SchemaInfo{TableName: "attacks", RowCount: 20}}

	chatAgent := NewReACTAgent(script(), store, 5, 50, 30)
	chatResp, err := chatAgent.Chat(context.Background(), userMessages("Summarize critical attacks"), ChatOptions{})
	if err != nil {
		t.Fatalf("Chat() returned error: %v", err)
	}

	streamAgent := NewReACTAgent(script(), store, 5, 50, 30)
	var chunks []string
	streamResp, err := streamAgent.ChatStream(context.Background(), userMessages("Summarize critical attacks"), ChatOptions{}, func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("ChatStream() returned error: %v", err)
	}

	joined := strings.Join(chunks, "")
	if joined != chatResp.Message.Content {
		t.Errorf("concatenated chunks differ from non-streaming answer:\nstream: %q\nchat:   %q", joined, chatResp.Message.Content)
	}
	if streamResp.Message.Content != chatResp.Message.Content {
		t.Errorf("stream envelope answer differs: %q vs %q", streamResp.Message.Content, chatResp.Message.Content)
	}
	for _, chunk := range chunks {
		if len(chunk) > 30 {
			t.Errorf("chunk exceeds configured size: %d bytes", len(chunk))
		}
	}
}

func TestReACTAgentEmptyConversation(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{textResponse("unused", nil)}}

	reactAgent := NewReACTAgent(model, &stubStore{}, 5, 50, 30)
	resp, err := reactAgent.Chat(context.Background(), nil, ChatOptions{})
	if err != nil {
		t.Fatalf("Chat() returned error: %v", err)
	}

	if model.calls != 0 {
		t.Errorf("expected no model calls for an empty conversation, got %d", model.calls)
	}
	if resp.Message.Content != "No messages provided." {
		t.Errorf("unexpected answer: %q", resp.Message.Content)
	}
}
