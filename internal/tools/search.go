package tools

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/tools/duckduckgo"
)

// Searcher is the slice of the DuckDuckGo client the search tool uses.
type Searcher interface {
	Call(ctx context.Context, input string) (string, error)
}

type SearchTool struct {
	client Searcher
}

func NewSearchTool() (*SearchTool, error) {
	ddg, err := duckduckgo.New(10, duckduckgo.DefaultUserAgent)
	if err != nil {
		return nil, err
	}
	return &SearchTool{client: ddg}, nil
}

func (s *SearchTool) Name() string {
	return "web_search"
}

func (s *SearchTool) Description() string {
	return "Search the web using DuckDuckGo."
}

func (s *SearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query to look up",
			},
		},
		"required": []string{"query"},
	}
}

func (s *SearchTool) Execute(ctx context.Context, params Params) Result {
	query := params.String("query")
	res, err := s.client.Call(ctx, query)
	if err != nil {
		return Failure(KindExecution, "search failed: %v", err)
	}
	return Success(fmt.Sprintf("Search results for %q", query), map[string]any{"query": query, "results": res})
}
