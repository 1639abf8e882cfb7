package redshift

import (
	"context"
	"encoding/json"

	"github.com/quicksuite-labs/agentgateway/gateway"
)

// Tool names as advertised through the gateway target.
const (
	ToolListDatabases = "redshift_list_databases"
	ToolListSchemas   = "redshift_list_schemas"
	ToolListTables    = "redshift_list_tables"
	ToolExecuteQuery  = "redshift_execute_query"
)

type listSchemasArgs struct {
	Database string `json:"database"`
}

type listTablesArgs struct {
	Database string `json:"database"`
	Schema   string `json:"schema"`
}

type executeQueryArgs struct {
	SQL string `json:"sql"`
}

// Register wires the Redshift tools into the registry.
func Register(registry *gateway.ToolRegistry, svc *Service) {
	registry.MustRegister(gateway.ToolDef{
		Name:        ToolListDatabases,
		Description: "List databases in the Redshift warehouse.",
		InputSchema: emptySchema,
	}, func(ctx context.Context, _ json.RawMessage) (any, error) {
		databases, err := svc.ListDatabases(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"databases": databases}, nil
	})

	registry.MustRegister(gateway.ToolDef{
		Name:        ToolListSchemas,
		Description: "List schemas in a Redshift database.",
		InputSchema: listSchemasSchema,
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var in listSchemasArgs
		if len(args) > 0 {
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, gateway.NewToolError(gateway.CodeValidationError, "arguments must be a JSON object")
			}
		}
		schemas, err := svc.ListSchemas(ctx, in.Database)
		if err != nil {
			return nil, err
		}
		return map[string]any{"schemas": schemas}, nil
	})

	registry.MustRegister(gateway.ToolDef{
		Name:        ToolListTables,
		Description: "List tables in a Redshift schema.",
		InputSchema: listTablesSchema,
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var in listTablesArgs
		if len(args) > 0 {
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, gateway.NewToolError(gateway.CodeValidationError, "arguments must be a JSON object")
			}
		}
		tables, err := svc.ListTables(ctx, in.Database, in.Schema)
		if err != nil {
			return nil, err
		}
		return map[string]any{"tables": tables}, nil
	})

	registry.MustRegister(gateway.ToolDef{
		Name:        ToolExecuteQuery,
		Description: "Execute a SQL statement against the Redshift warehouse and return the rows.",
		InputSchema: executeQuerySchema,
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var in executeQueryArgs
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, gateway.NewToolError(gateway.CodeValidationError, "arguments must be a JSON object with sql")
		}
		return svc.ExecuteQuery(ctx, in.SQL)
	})
}

var emptySchema = json.RawMessage(`{
  "type": "object",
  "properties": {}
}`)

var listSchemasSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "database": {
      "type": "string",
      "description": "Database name; defaults to the configured database"
    }
  }
}`)

var listTablesSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "database": {
      "type": "string",
      "description": "Database name; defaults to the configured database"
    },
    "schema": {
      "type": "string",
      "description": "Restrict the listing to one schema"
    }
  }
}`)

var executeQuerySchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "sql": {
      "type": "string",
      "description": "SQL statement to execute"
    }
  },
  "required": ["sql"]
}`)
