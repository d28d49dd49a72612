package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"threatexplorer/db"
	"threatexplorer/models"

	"github.com/tmc/langchaingo/llms"
)

const noQueryMarker = "NO DATABASE QUERY NEEDED"

const pipelineDescription = "interpreter→query_builder→data_retrieval→analyst→reporter"

// MultiAgent runs a sequential pipeline of role-flavored model calls:
// interpreter, query builder, data retrieval, analyst, reporter. The query
// builder decides whether the attacks database is consulted; its query is
// executed between stages and the results flow through the remaining ones.
type MultiAgent struct {
	llm       llms.Model
	store     TabularStore
	rowLimit  int
	chunkSize int
}

func NewMultiAgent(llm llms.Model, store TabularStore, rowLimit, chunkSize int) *MultiAgent {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &MultiAgent{
		llm:       llm,
		store:     store,
		rowLimit:  rowLimit,
		chunkSize: chunkSize,
	}
}

func (a *MultiAgent) AgentType() string {
	return "multi"
}

func (a *MultiAgent) Chat(ctx context.Context, messages []models.Message, opts ChatOptions) (*models.ChatResponse, error) {
	userMessage := lastUserMessage(messages)
	if userMessage == "" {
		return &models.ChatResponse{
			Message: assistantMessage(a.AgentType(), "No user message found."),
			Metadata: map[string]any{
				"agent_type": a.AgentType(),
				"error":      "no user input",
			},
		}, nil
	}

	log.Printf("[INFO] Multi-agent pipeline starting: %s", pipelineDescription)

	var usage models.Usage
	iterations := 0

	callStage := func(role, systemPrompt, task string) (string, error) {
		iterations++
		log.Printf("[INFO] Pipeline stage %d: %s", iterations, role)

		resp, err := a.llm.GenerateContent(ctx,
			[]llms.MessageContent{
				llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
				llms.TextParts(llms.ChatMessageTypeHuman, task),
			},
			llms.WithTemperature(opts.Temperature),
		)
		if err != nil {
			return "", fmt.Errorf("%s stage failed: %w", role, err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("%s stage: %w", role, errNoChoices)
		}

		accumulateUsage(&usage, resp.Choices[0].GenerationInfo)
		return resp.Choices[0].Content, nil
	}

	interpretation, err := callStage("interpreter", interpreterSystemPrompt,
		fmt.Sprintf("Interpret this security question: %s", userMessage))
	if err != nil {
		log.Printf("[ERROR] Multi-agent pipeline failed: %v", err)
		return errorResponse(a.AgentType(), err), nil
	}

	builderOutput, err := callStage("query_builder", queryBuilderSystemPrompt,
		fmt.Sprintf("Question: %s\n\nInterpretation: %s\n\nDetermine if a SQL query is needed. If yes, provide ONLY the SQL query. If no, respond with exactly: %q.",
			userMessage, interpretation, noQueryMarker))
	if err != nil {
		log.Printf("[ERROR] Multi-agent pipeline failed: %v", err)
		return errorResponse(a.AgentType(), err), nil
	}

	dbResults := ""
	queryExecuted := false
	if !strings.Contains(strings.ToUpper(builderOutput), noQueryMarker) {
		query := db.EnsureRowLimit(stripSQLFences(builderOutput), a.rowLimit)
		log.Printf("[INFO] Pipeline executing query: %s", query)

		rows, queryErr := a.store.Execute(query)
		if queryErr != nil {
			dbResults = fmt.Sprintf("Error executing query: %v", queryErr)
		} else {
			queryExecuted = true
			rowsJSON, _ := json.Marshal(rows)
			dbResults = fmt.Sprintf("Query: %s\nRows returned: %d\nData: %s", query, len(rows), rowsJSON)
		}
	}

	retrievalTask := "Present the data retrieval results. No database query was needed; state that general security knowledge will be used."
	if dbResults != "" {
		retrievalTask = fmt.Sprintf("Present the data retrieval results.\n\nDatabase query results:\n%s", dbResults)
	}
	retrieval, err := callStage("data_retrieval", dataRetrievalSystemPrompt, retrievalTask)
	if err != nil {
		log.Printf("[ERROR] Multi-agent pipeline failed: %v", err)
		return errorResponse(a.AgentType(), err), nil
	}

	analysis, err := callStage("analyst", analystSystemPrompt,
		fmt.Sprintf("Question: %s\n\nRetrieved information:\n%s\n\nAnalyze the information and provide security insights with actionable findings.",
			userMessage, retrieval))
	if err != nil {
		log.Printf("[ERROR] Multi-agent pipeline failed: %v", err)
		return errorResponse(a.AgentType(), err), nil
	}

	reportContext := fmt.Sprintf("The original question was: %s\n\nInterpretation: %s\n\nData summary:\n%s\n\nAnalysis:\n%s",
		userMessage, interpretation, retrieval, analysis)
	if dbResults != "" {
		reportContext += fmt.Sprintf("\n\nRaw database results:\n%s", dbResults)
	}
	report, err := callStage("reporter", reporterSystemPrompt,
		fmt.Sprintf("%s\n\nCreate a comprehensive security report answering the user's question, with properly formatted data views when database results are available, and actionable recommendations.", reportContext))
	if err != nil {
		log.Printf("[ERROR] Multi-agent pipeline failed: %v", err)
		return errorResponse(a.AgentType(), err), nil
	}

	log.Printf("[INFO] Multi-agent pipeline complete after %d stage(s)", iterations)

	return &models.ChatResponse{
		Message: assistantMessage(a.AgentType(), report),
		Usage:   usage,
		Metadata: map[string]any{
			"agent_type":              a.AgentType(),
			"pipeline":                pipelineDescription,
			"iterations":              iterations,
			"tools_used":              []string{},
			"database_query_executed": queryExecuted,
		},
	}, nil
}

// ChatStream runs the full pipeline, then emits the completed report in
// fixed-size slices; the pipeline itself cannot stream.
func (a *MultiAgent) ChatStream(ctx context.Context, messages []models.Message, opts ChatOptions, onChunk StreamFunc) (*models.ChatResponse, error) {
	resp, err := a.Chat(ctx, messages, opts)
	if err != nil {
		return resp, err
	}

	for _, chunk := range chunkText(resp.Message.Content, a.chunkSize) {
		if chunkErr := onChunk(chunk); chunkErr != nil {
			return resp, chunkErr
		}
	}
	return resp, nil
}

func lastUserMessage(messages []models.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

func stripSQLFences(output string) string {
	cleaned := strings.ReplaceAll(output, "```sql", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	return strings.TrimSpace(cleaned)
}
