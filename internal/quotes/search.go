package quotes

import (
	"context"
	"net/url"
	"strings"

	"github.com/rickgao/stockdesk/internal/model"
)

// MaxSearchResults caps the number of search hits returned.
const MaxSearchResults = 8

// Search looks up symbols matching query. A blank query returns nothing; a
// failed request falls back to filtering the offline dataset.
func (c *Client) Search(ctx context.Context, query string) []model.SearchResult {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	if c.Offline() {
		return limit(c.fallback.Search(query))
	}

	var resp SearchResponse
	if err := c.get(ctx, "/search", url.Values{"q": {query}}, &resp); err != nil {
		c.logger.Debug("search failed", "query", query, "error", err)
		return limit(c.fallback.Search(query))
	}

	out := make([]model.SearchResult, 0, min(len(resp.Result), MaxSearchResults))
	for _, r := range resp.Result {
		if len(out) == MaxSearchResults {
			break
		}
		name := r.Description
		if name == "" {
			name = r.DisplaySymbol
		}
		out = append(out, model.SearchResult{Symbol: r.Symbol, Name: name, Type: r.Type})
	}
	return out
}

func limit(results []model.SearchResult) []model.SearchResult {
	if len(results) > MaxSearchResults {
		return results[:MaxSearchResults]
	}
	return results
}
