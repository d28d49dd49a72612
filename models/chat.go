package models

// Message is one turn in a conversation. The role is "user", "assistant"
// or "system"; assistant messages carry the agent type that produced them.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
	AgentType string `json:"agent_type,omitempty"`
}

type ChatRequest struct {
	Messages       []Message `json:"messages"`
	Model          string    `json:"model,omitempty"`
	Temperature    *float64  `json:"temperature,omitempty"`
	MaxTokens      *int      `json:"max_tokens,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the uniform result envelope returned by every agent
// strategy. Metadata carries agent type, tools used, iteration count and,
// when the model backend failed, an error string.
type ChatResponse struct {
	Message  Message        `json:"message"`
	Usage    Usage          `json:"usage"`
	Metadata map[string]any `json:"metadata"`
}

type SchemaColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type SchemaInfo struct {
	TableName string         `json:"table_name"`
	Columns   []SchemaColumn `json:"columns"`
	RowCount  int            `json:"row_count"`
}
