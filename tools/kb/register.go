package kb

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/quicksuite-labs/agentgateway/gateway"
)

// Tool names as advertised through the gateway target.
const (
	ToolListKnowledgeBases  = "ListKnowledgeBases"
	ToolQueryKnowledgeBases = "QueryKnowledgeBases"
)

// queryArgs accepts the historical aliases agents use for the query text and
// knowledge base identifier.
type queryArgs struct {
	Query              string   `json:"query"`
	Text               string   `json:"text"`
	KnowledgeBaseID    string   `json:"knowledge_base_id"`
	KnowledgeBaseIDAlt string   `json:"knowledgeBaseId"`
	KBID               string   `json:"kb_id"`
	NumberOfResults    int      `json:"number_of_results"`
	Reranking          bool     `json:"reranking"`
	RerankingModelName string   `json:"reranking_model_name"`
	DataSourceIDs      []string `json:"data_source_ids"`
}

func (a queryArgs) params() QueryParams {
	query := a.Query
	if query == "" {
		query = a.Text
	}
	kbID := a.KnowledgeBaseID
	if kbID == "" {
		kbID = a.KnowledgeBaseIDAlt
	}
	if kbID == "" {
		kbID = a.KBID
	}
	return QueryParams{
		Query:              query,
		KnowledgeBaseID:    kbID,
		NumberOfResults:    a.NumberOfResults,
		Reranking:          a.Reranking,
		RerankingModelName: a.RerankingModelName,
		DataSourceIDs:      a.DataSourceIDs,
	}
}

// Register wires the knowledge base tools into the registry.
func Register(registry *gateway.ToolRegistry, svc *Service) {
	registry.MustRegister(gateway.ToolDef{
		Name:        ToolListKnowledgeBases,
		Description: "List available knowledge bases and their data sources.",
		InputSchema: emptySchema,
	}, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return svc.ListKnowledgeBases(ctx)
	})

	registry.MustRegister(gateway.ToolDef{
		Name:        ToolQueryKnowledgeBases,
		Description: "Query a knowledge base with natural language. Returns newline-separated JSON documents with content, location, and score.",
		InputSchema: querySchema,
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var in queryArgs
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, gateway.NewToolError(gateway.CodeValidationError, "arguments must be a JSON object with query and knowledge_base_id")
		}
		documents, err := svc.QueryKnowledgeBases(ctx, in.params())
		if err != nil {
			return nil, err
		}
		return EncodeDocuments(documents)
	})
}

// EncodeDocuments renders retrieval hits as newline-separated JSON objects,
// the format downstream agents parse.
func EncodeDocuments(documents []Document) (string, error) {
	lines := make([]string, len(documents))
	for i, doc := range documents {
		encoded, err := json.Marshal(doc)
		if err != nil {
			return "", gateway.NewToolError(gateway.CodeInternalError, "failed to encode documents")
		}
		lines[i] = string(encoded)
	}
	return strings.Join(lines, "\n"), nil
}

var emptySchema = json.RawMessage(`{
  "type": "object",
  "properties": {}
}`)

var querySchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "query": {
      "type": "string",
      "description": "Natural language query"
    },
    "knowledge_base_id": {
      "type": "string",
      "description": "Knowledge base identifier"
    },
    "number_of_results": {
      "type": "integer",
      "description": "Results to return, capped at 100",
      "default": 10
    },
    "reranking": {
      "type": "boolean",
      "description": "Rerank results with a Bedrock reranking model"
    },
    "reranking_model_name": {
      "type": "string",
      "enum": ["AMAZON", "COHERE"],
      "description": "Reranking model to use"
    },
    "data_source_ids": {
      "type": "array",
      "items": {"type": "string"},
      "description": "Restrict retrieval to these data sources"
    }
  },
  "required": ["query", "knowledge_base_id"]
}`)
