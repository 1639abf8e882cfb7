package dataquery

import (
	"context"
	"encoding/json"

	"github.com/quicksuite-labs/agentgateway/gateway"
)

// Tool names as advertised through the gateway target.
const (
	ToolListTables    = "list_tables"
	ToolDescribeTable = "describe_table"
	ToolRunQuery      = "run_query"
)

type describeTableArgs struct {
	Table string `json:"table"`
}

type runQueryArgs struct {
	Query string `json:"query"`
	// NaturalLanguageDescription is accepted for agent convenience but does
	// not affect execution.
	NaturalLanguageDescription string `json:"natural_language_description,omitempty"`
}

// Register wires the data query tools into the registry.
func Register(registry *gateway.ToolRegistry, svc *Service) {
	registry.MustRegister(gateway.ToolDef{
		Name:        ToolListTables,
		Description: "List tables available in the analytics database.",
		InputSchema: emptySchema,
	}, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return svc.ListTables(ctx)
	})

	registry.MustRegister(gateway.ToolDef{
		Name:        ToolDescribeTable,
		Description: "Describe the columns and storage of a table in the analytics database.",
		InputSchema: describeTableSchema,
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var in describeTableArgs
		if len(args) > 0 {
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, gateway.NewToolError(gateway.CodeValidationError, "arguments must be a JSON object")
			}
		}
		return svc.DescribeTable(ctx, in.Table)
	})

	registry.MustRegister(gateway.ToolDef{
		Name:        ToolRunQuery,
		Description: "Run a SQL query against the analytics database and stage the results for analysis. Returns a session_id for follow-up tools.",
		InputSchema: runQuerySchema,
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var in runQueryArgs
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, gateway.NewToolError(gateway.CodeValidationError, "arguments must be a JSON object with query")
		}
		return svc.RunQuery(ctx, in.Query)
	})
}

var emptySchema = json.RawMessage(`{
  "type": "object",
  "properties": {}
}`)

var describeTableSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "table": {
      "type": "string",
      "description": "Table name; defaults to the claims table"
    }
  }
}`)

var runQuerySchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "query": {
      "type": "string",
      "description": "SQL SELECT statement to execute"
    },
    "natural_language_description": {
      "type": "string",
      "description": "Optional plain-language description of the query"
    }
  },
  "required": ["query"]
}`)
