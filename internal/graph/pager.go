package graph

import (
	"context"
	"fmt"
	"log/slog"
)

// page is the Graph collection envelope. nextLink absent means last page.
type page[T any] struct {
	NextLink string `json:"@odata.nextLink,omitempty"`
	Value    []T    `json:"value"`
}

// FetchAll follows @odata.nextLink from url until the collection is
// exhausted. Any page failure aborts the whole fetch, partial results are
// never returned.
func FetchAll[T any](ctx context.Context, c *Client, url string) ([]T, error) {
	var (
		items []T
		pages int
	)

	for url != "" {
		var p page[T]
		if err := c.Get(ctx, url, &p); err != nil {
			return nil, fmt.Errorf("fetch page %d (%d pages succeeded): %w", pages+1, pages, err)
		}
		pages++
		items = append(items, p.Value...)
		url = p.NextLink
	}

	slog.Debug("fetched paged collection", "pages", pages, "items", len(items))
	return items, nil
}
