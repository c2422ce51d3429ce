package capabilities

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/tools/duckduckgo"

	"github.com/nsharma/weft/internal/engine"
)

type WebSearcher struct {
	client *duckduckgo.Tool
}

func NewWebSearcher() (*WebSearcher, error) {
	ddg, err := duckduckgo.New(10, duckduckgo.DefaultUserAgent)
	if err != nil {
		return nil, err
	}
	return &WebSearcher{client: ddg}, nil
}

func (w *WebSearcher) Capability() *engine.Capability {
	return &engine.Capability{
		Name:        "search_web",
		Description: "Search the web using DuckDuckGo for real-time information.",
		Required:    []string{"query"},
		OutputKeys:  map[string]string{"results": "search_results"},
		Invoke:      w.invoke,
	}
}

func (w *WebSearcher) invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, &engine.CapabilityError{Message: "query must be a non-empty string"}
	}

	res, err := w.client.Call(ctx, query)
	if err != nil {
		return nil, &engine.CapabilityError{Message: fmt.Sprintf("search failed: %v", err)}
	}
	return map[string]any{
		"results": res,
		"query":   query,
	}, nil
}
