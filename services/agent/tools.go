package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"threatexplorer/db"
	"threatexplorer/models"

	"github.com/invopop/jsonschema"
	"github.com/samber/lo"
	"github.com/tmc/langchaingo/llms"
)

// AgentTool is a named callable exposed to the model. Call receives the
// tool arguments as a JSON string and returns the serialized tool result.
type AgentTool interface {
	Name() string
	Description() string
	Call(ctx context.Context, input string) (string, error)
	ToolSpec() llms.Tool
}

func generateToolSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)

	parameters := map[string]any{
		"type":       "object",
		"properties": schema.Properties,
	}
	if len(schema.Required) > 0 {
		parameters["required"] = schema.Required
	}
	return parameters
}

func marshalToolResult(result map[string]any) string {
	data, err := json.Marshal(result)
	if err != nil {
		// Result maps only hold strings, numbers and row slices, so this
		// should not happen; keep the envelope shape anyway.
		return fmt.Sprintf(`{"success": false, "error": %q}`, err.Error())
	}
	return string(data)
}

func toolFailure(errMsg, message string) string {
	return marshalToolResult(map[string]any{
		"success": false,
		"error":   errMsg,
		"message": message,
	})
}

type QueryDatabaseInput struct {
	Query string `json:"query" jsonschema:"required,description=SQL query to execute on the attacks table"`
}

// QueryDatabaseTool lets the model run SQL against the attacks table. A
// LIMIT clause is appended when the query has none.
type QueryDatabaseTool struct {
	store    TabularStore
	rowLimit int
}

func NewQueryDatabaseTool(store TabularStore, rowLimit int) QueryDatabaseTool {
	return QueryDatabaseTool{store: store, rowLimit: rowLimit}
}

func (t QueryDatabaseTool) Name() string {
	return "query_database"
}

func (t QueryDatabaseTool) Description() string {
	return fmt.Sprintf(`Query the cybersecurity attacks database using SQL.

The database contains a table called 'attacks' with cybersecurity attack data
including timestamps, source and destination IP addresses and ports, protocol,
attack type (Malware, DDoS, Intrusion, ...), severity level (Low, Medium,
High, Critical), malware indicators, anomaly scores and more.

Input must be a valid SQL query string. Queries without a LIMIT clause are
automatically limited to %d rows. Column names containing spaces must be
quoted with double quotes, for example:
SELECT "Attack Type", COUNT(*) AS count FROM attacks GROUP BY "Attack Type"`, t.rowLimit)
}

func (t QueryDatabaseTool) Call(ctx context.Context, input string) (string, error) {
	var params QueryDatabaseInput
	if err := json.Unmarshal([]byte(input), &params); err != nil {
		return "", fmt.Errorf("failed to parse query tool input: %w", err)
	}

	query := db.EnsureRowLimit(params.Query, t.rowLimit)
	log.Printf("[INFO] Executing SQL: %s", query)

	rows, err := t.store.Execute(query)
	if err != nil {
		log.Printf("[ERROR] Query failed: %v", err)
		return toolFailure(err.Error(), "Failed to execute query. Check your SQL syntax."), nil
	}

	log.Printf("[INFO] Query returned %d rows", len(rows))

	if len(rows) == 0 {
		return marshalToolResult(map[string]any{
			"success":   true,
			"row_count": 0,
			"query":     query,
			"message":   "Query executed successfully but returned no results.",
			"data":      []map[string]string{},
		}), nil
	}

	return marshalToolResult(map[string]any{
		"success":   true,
		"row_count": len(rows),
		"query":     query,
		"data":      rows,
	}), nil
}

func (t QueryDatabaseTool) ToolSpec() llms.Tool {
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  generateToolSchema[QueryDatabaseInput](),
		},
	}
}

type GetDatabaseInfoInput struct{}

// GetDatabaseInfoTool reports the attacks table schema so the model can
// discover available fields before querying.
type GetDatabaseInfoTool struct {
	store TabularStore
}

func NewGetDatabaseInfoTool(store TabularStore) GetDatabaseInfoTool {
	return GetDatabaseInfoTool{store: store}
}

func (t GetDatabaseInfoTool) Name() string {
	return "get_database_info"
}

func (t GetDatabaseInfoTool) Description() string {
	return `Get information about the cybersecurity attacks database schema.

Returns the table name, total number of rows, and all available columns with
their types. Use this to understand what data is available before querying.
This tool does not require any input.`
}

func (t GetDatabaseInfoTool) Call(ctx context.Context, input string) (string, error) {
	info, err := t.store.DescribeSchema()
	if err != nil {
		log.Printf("[ERROR] Failed to get database info: %v", err)
		return marshalToolResult(map[string]any{
			"success": false,
			"error":   err.Error(),
		}), nil
	}

	columnLines := lo.Map(info.Columns, func(column models.SchemaColumn, _ int) string {
		return fmt.Sprintf("  - %s (%s)", column.Name, column.Type)
	})

	return marshalToolResult(map[string]any{
		"success":     true,
		"table_name":  info.TableName,
		"total_rows":  info.RowCount,
		"columns":     info.Columns,
		"description": fmt.Sprintf("Database contains %d cybersecurity attack records with the following columns:\n%s", info.RowCount, strings.Join(columnLines, "\n")),
	}), nil
}

func (t GetDatabaseInfoTool) ToolSpec() llms.Tool {
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  generateToolSchema[GetDatabaseInfoInput](),
		},
	}
}

// Registry maps tool names to implementations and dispatches model tool
// calls. Unknown names and tool failures come back as normal failure
// envelopes so the conversation loop can continue.
type Registry struct {
	tools []AgentTool
}

func NewRegistry(tools ...AgentTool) *Registry {
	return &Registry{tools: tools}
}

func (r *Registry) Specs() []llms.Tool {
	return lo.Map(r.tools, func(tool AgentTool, _ int) llms.Tool {
		return tool.ToolSpec()
	})
}

func (r *Registry) Names() []string {
	return lo.Map(r.tools, func(tool AgentTool, _ int) string {
		return tool.Name()
	})
}

func (r *Registry) Dispatch(ctx context.Context, name, arguments string) string {
	for _, tool := range r.tools {
		if tool.Name() != name {
			continue
		}

		result, err := tool.Call(ctx, arguments)
		if err != nil {
			log.Printf("[ERROR] Tool %s failed: %v", name, err)
			return toolFailure(err.Error(), fmt.Sprintf("Tool %s failed to execute.", name))
		}
		return result
	}

	log.Printf("[ERROR] Model requested unknown tool: %s", name)
	return toolFailure(
		fmt.Sprintf("unknown tool: %s", name),
		fmt.Sprintf("Tool is not available. Available tools: %s.", strings.Join(r.Names(), ", ")),
	)
}
