// Package kb implements the Bedrock knowledge base tools: listing knowledge
// bases with their data sources and running natural language retrieval
// queries with optional reranking.
package kb

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/document"
	runtimetypes "github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"

	"github.com/quicksuite-labs/agentgateway/gateway"
)

const (
	// MaxResults caps numberOfResults regardless of what the caller asks for.
	MaxResults     = 100
	DefaultResults = 10
)

// rerankModels maps the friendly model names agents use to foundation model
// identifiers.
var rerankModels = map[string]string{
	"AMAZON": "amazon.rerank-v1:0",
	"COHERE": "cohere.rerank-v3-5:0",
}

type agentAPI interface {
	ListKnowledgeBases(ctx context.Context, in *bedrockagent.ListKnowledgeBasesInput, opts ...func(*bedrockagent.Options)) (*bedrockagent.ListKnowledgeBasesOutput, error)
	ListDataSources(ctx context.Context, in *bedrockagent.ListDataSourcesInput, opts ...func(*bedrockagent.Options)) (*bedrockagent.ListDataSourcesOutput, error)
}

type runtimeAPI interface {
	Retrieve(ctx context.Context, in *bedrockagentruntime.RetrieveInput, opts ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveOutput, error)
}

// Service backs the knowledge base tools.
type Service struct {
	agent   agentAPI
	runtime runtimeAPI
	region  string

	// defaultKBID is used when a query names no knowledge base.
	defaultKBID string
}

type Option func(*Service)

// WithDefaultKnowledgeBase pins queries to one KB when the caller omits one.
func WithDefaultKnowledgeBase(id string) Option {
	return func(s *Service) { s.defaultKBID = id }
}

func NewService(agent agentAPI, runtime runtimeAPI, region string, opts ...Option) *Service {
	s := &Service{agent: agent, runtime: runtime, region: region}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DataSourceInfo identifies one data source of a knowledge base.
type DataSourceInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// KnowledgeBaseInfo describes one knowledge base and its data sources.
type KnowledgeBaseInfo struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	DataSources []DataSourceInfo `json:"data_sources"`
}

// Document is one retrieval hit. Location is an HTTPS URL when the source
// lives in S3.
type Document struct {
	Content  string  `json:"content"`
	Location string  `json:"location"`
	Score    float64 `json:"score"`
}

// QueryParams are the retrieval knobs for QueryKnowledgeBases.
type QueryParams struct {
	Query              string
	KnowledgeBaseID    string
	NumberOfResults    int
	Reranking          bool
	RerankingModelName string
	DataSourceIDs      []string
}

// ListKnowledgeBases enumerates every knowledge base in the account along
// with its data sources. A failure listing one KB's data sources does not
// fail the call; that KB is returned with an empty data source list.
func (s *Service) ListKnowledgeBases(ctx context.Context) (map[string]KnowledgeBaseInfo, error) {
	result := make(map[string]KnowledgeBaseInfo)

	var next *string
	for {
		page, err := s.agent.ListKnowledgeBases(ctx, &bedrockagent.ListKnowledgeBasesInput{NextToken: next})
		if err != nil {
			return nil, gateway.NewToolError(gateway.CodeQueryFailed, "failed to list knowledge bases")
		}

		for _, kb := range page.KnowledgeBaseSummaries {
			kbID := aws.ToString(kb.KnowledgeBaseId)
			info := KnowledgeBaseInfo{
				Name:        aws.ToString(kb.Name),
				Description: aws.ToString(kb.Description),
				DataSources: []DataSourceInfo{},
			}
			if sources, err := s.listDataSources(ctx, kbID); err == nil {
				info.DataSources = sources
			}
			result[kbID] = info
		}

		if page.NextToken == nil {
			return result, nil
		}
		next = page.NextToken
	}
}

func (s *Service) listDataSources(ctx context.Context, kbID string) ([]DataSourceInfo, error) {
	sources := []DataSourceInfo{}
	var next *string
	for {
		page, err := s.agent.ListDataSources(ctx, &bedrockagent.ListDataSourcesInput{
			KnowledgeBaseId: aws.String(kbID),
			NextToken:       next,
		})
		if err != nil {
			return nil, err
		}
		for _, ds := range page.DataSourceSummaries {
			sources = append(sources, DataSourceInfo{
				ID:   aws.ToString(ds.DataSourceId),
				Name: aws.ToString(ds.Name),
			})
		}
		if page.NextToken == nil {
			return sources, nil
		}
		next = page.NextToken
	}
}

// QueryKnowledgeBases retrieves documents matching a natural language query.
func (s *Service) QueryKnowledgeBases(ctx context.Context, params QueryParams) ([]Document, error) {
	if params.Query == "" {
		return nil, gateway.NewToolError(gateway.CodeValidationError, "query is required")
	}
	kbID := params.KnowledgeBaseID
	if kbID == "" {
		kbID = s.defaultKBID
	}
	if kbID == "" {
		return nil, gateway.NewToolError(gateway.CodeValidationError, "knowledge_base_id is required")
	}

	results := params.NumberOfResults
	if results <= 0 {
		results = DefaultResults
	}
	if results > MaxResults {
		results = MaxResults
	}

	vectorSearch := &runtimetypes.KnowledgeBaseVectorSearchConfiguration{
		NumberOfResults: aws.Int32(int32(results)),
	}

	if len(params.DataSourceIDs) > 0 {
		vectorSearch.Filter = &runtimetypes.RetrievalFilterMemberIn{
			Value: runtimetypes.FilterAttribute{
				Key:   aws.String("x-amz-bedrock-kb-data-source-id"),
				Value: document.NewLazyDocument(params.DataSourceIDs),
			},
		}
	}

	if params.Reranking {
		modelName := strings.ToUpper(params.RerankingModelName)
		if modelName == "" {
			modelName = "AMAZON"
		}
		model, ok := rerankModels[modelName]
		if !ok {
			return nil, gateway.NewToolError(gateway.CodeValidationError,
				"reranking_model_name must be AMAZON or COHERE")
		}
		vectorSearch.RerankingConfiguration = &runtimetypes.VectorSearchRerankingConfiguration{
			Type: runtimetypes.VectorSearchRerankingConfigurationTypeBedrockRerankingModel,
			BedrockRerankingConfiguration: &runtimetypes.VectorSearchBedrockRerankingConfiguration{
				ModelConfiguration: &runtimetypes.VectorSearchBedrockRerankingModelConfiguration{
					ModelArn: aws.String(fmt.Sprintf("arn:aws:bedrock:%s::foundation-model/%s", s.region, model)),
				},
			},
		}
	}

	out, err := s.runtime.Retrieve(ctx, &bedrockagentruntime.RetrieveInput{
		KnowledgeBaseId: aws.String(kbID),
		RetrievalQuery:  &runtimetypes.KnowledgeBaseQuery{Text: aws.String(params.Query)},
		RetrievalConfiguration: &runtimetypes.KnowledgeBaseRetrievalConfiguration{
			VectorSearchConfiguration: vectorSearch,
		},
	})
	if err != nil {
		return nil, gateway.NewToolError(gateway.CodeQueryFailed, "failed to query knowledge base")
	}

	documents := make([]Document, 0, len(out.RetrievalResults))
	for _, hit := range out.RetrievalResults {
		doc := Document{Score: aws.ToFloat64(hit.Score)}
		if hit.Content != nil {
			doc.Content = aws.ToString(hit.Content.Text)
		}
		if hit.Location != nil && hit.Location.S3Location != nil {
			doc.Location = s.sourceURL(aws.ToString(hit.Location.S3Location.Uri))
		}
		documents = append(documents, doc)
	}
	return documents, nil
}

// sourceURL rewrites s3:// URIs into browsable HTTPS URLs.
func (s *Service) sourceURL(uri string) string {
	if !strings.HasPrefix(uri, "s3://") {
		return uri
	}
	parts := strings.SplitN(uri[len("s3://"):], "/", 2)
	if len(parts) != 2 {
		return uri
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", parts[0], s.region, parts[1])
}
