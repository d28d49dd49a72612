package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"
)

func pipelineScript(builderOutput, report string) *scriptedModel {
	return &scriptedModel{
		responses: []*llms.ContentResponse{
			textResponse("The user wants attack counts grouped by type.", map[string]any{"TotalTokens": 10}),
			textResponse(builderOutput, map[string]any{"TotalTokens": 10}),
			textResponse("Retrieved grouped attack counts.", map[string]any{"TotalTokens": 10}),
			textResponse("Malware dominates the dataset.", map[string]any{"TotalTokens": 10}),
			textResponse(report, map[string]any{"TotalTokens": 10}),
		},
	}
}

func TestMultiAgentQueryPath(t *testing.T) {
	report := "Malware is the most frequent attack type in the dataset."
	model := pipelineScript("```sql\nSELECT Type, COUNT(*) AS count FROM attacks GROUP BY Type\n```", report)
	store := &stubStore{rows: []map[string]string{
		{"Type": "Malware", "count": "2"},
		{"Type": "DDoS", "count": "1"},
	}}

	multiAgent := NewMultiAgent(model, store, 50, 30)
	resp, err := multiAgent.Chat(context.Background(), userMessages("Which attack type is most common?"), ChatOptions{})
	if err != nil {
		t.Fatalf("Chat() returned error: %v", err)
	}

	if model.calls != 5 {
		t.Errorf("expected 5 pipeline stages, got %d model calls", model.calls)
	}
	if resp.Message.Content != report {
		t.Errorf("expected the reporter output as answer, got %q", resp.Message.Content)
	}
	if resp.Metadata["database_query_executed"] != true {
		t.Errorf("expected database_query_executed=true, got %v", resp.Metadata["database_query_executed"])
	}
	if resp.Metadata["iterations"] != 5 {
		t.Errorf("expected iterations=5, got %v", resp.Metadata["iterations"])
	}
	if resp.Usage.TotalTokens != 50 {
		t.Errorf("expected accumulated total tokens 50, got %d", resp.Usage.TotalTokens)
	}

	if len(store.executed) != 1 {
		t.Fatalf("expected 1 executed query, got %d", len(store.executed))
	}
	executed := store.executed[0]
	if strings.Contains(executed, "```") {
		t.Errorf("SQL fences not stripped: %q", executed)
	}
	if !strings.Contains(strings.ToUpper(executed), "LIMIT") {
		t.Errorf("expected a row limit on the pipeline query: %q", executed)
	}
}

func TestMultiAgentNoQueryPath(t *testing.T) {
	report := "Use parameterized queries to prevent SQL injection."
	model := pipelineScript("NO DATABASE QUERY NEEDED", report)
	store := &stubStore{}

	multiAgent := NewMultiAgent(model, store, 50, 30)
	resp, err := multiAgent.Chat(context.Background(), userMessages("How do I prevent SQL injection?"), ChatOptions{})
	if err != nil {
		t.Fatalf("Chat() returned error: %v", err)
	}

	if len(store.executed) != 0 {
		t.Errorf("expected no query execution, got %v", store.executed)
	}
	if resp.Metadata["database_query_executed"] != false {
		t.Errorf("expected database_query_executed=false, got %v", resp.Metadata["database_query_executed"])
	}
	if resp.Message.Content != report {
		t.Errorf("unexpected answer: %q", resp.Message.Content)
	}
}

func TestMultiAgentQueryErrorIsRecoverable(t *testing.T) {
	report := "The query failed, but here is general guidance."
	model := pipelineScript("SELECT bogus FROM nowhere", report)
	store := &stubStore{err: errors.New("no such table: nowhere")}

	multiAgent := NewMultiAgent(model, store, 50, 30)
	resp, err := multiAgent.Chat(context.Background(), userMessages("Show me attack data"), ChatOptions{})
	if err != nil {
		t.Fatalf("Chat() returned error: %v", err)
	}

	// A failed query flows through the pipeline as text, not as a failure.
	if resp.Metadata["database_query_executed"] != false {
		t.Errorf("expected database_query_executed=false after query error, got %v", resp.Metadata["database_query_executed"])
	}
	if resp.Message.Content != report {
		t.Errorf("unexpected answer: %q", resp.Message.Content)
	}
}

func TestMultiAgentBackendError(t *testing.T) {
	model := &scriptedModel{errs: []error{errors.New("connection refused")}}

	multiAgent := NewMultiAgent(model, &stubStore{}, 50, 30)
	resp, err := multiAgent.Chat(context.Background(), userMessages("Hello"), ChatOptions{})
	if err != nil {
		t.Fatalf("backend failures must not be raised, got: %v", err)
	}

	if errMeta, _ := resp.Metadata["error"].(string); errMeta == "" {
		t.Errorf("expected non-empty metadata error, got %v", resp.Metadata["error"])
	}
}

func TestMultiAgentNoUserMessage(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{textResponse("unused", nil)}}

	multiAgent := NewMultiAgent(model, &stubStore{}, 50, 30)
	resp, err := multiAgent.Chat(context.Background(), nil, ChatOptions{})
	if err != nil {
		t.Fatalf("Chat() returned error: %v", err)
	}

	if model.calls != 0 {
		t.Errorf("expected no model calls without user input, got %d", model.calls)
	}
	if resp.Message.Content != "No user message found." {
		t.Errorf("unexpected answer: %q", resp.Message.Content)
	}
}

func TestMultiAgentStreamMatchesChat(t *testing.T) {
	report := "Critical attacks concentrate on segment C and warrant immediate firewall rule review."
	store := &stubStore{}

	chatAgent := NewMultiAgent(pipelineScript("NO DATABASE QUERY NEEDED", report), store, 50, 30)
	chatResp, err := chatAgent.Chat(context.Background(), userMessages("Summarize critical attacks"), ChatOptions{})
	if err != nil {
		t.Fatalf("Chat() returned error: %v", err)
	}

	streamAgent := NewMultiAgent(pipelineScript("NO DATABASE QUERY NEEDED", report), store, 50, 30)
	var chunks []string
	_, err = streamAgent.ChatStream(context.Background(), userMessages("Summarize critical attacks"), ChatOptions{}, func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("ChatStream() returned error: %v", err)
	}

	if joined := strings.Join(chunks, ""); joined != chatResp.Message.Content {
		t.Errorf("concatenated chunks differ from non-streaming answer:\nstream: %q\nchat:   %q", joined, chatResp.Message.Content)
	}
}
