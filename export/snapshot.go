package export

import (
	"context"
	"log/slog"

	"github.com/luansfranca/sopromocoes/models"
	"github.com/luansfranca/sopromocoes/storefront"
)

// Collect walks c through each slug and feeds the products it shows into p.
// An empty slug collects the uncategorised page. It returns how many products
// were submitted, duplicates included.
func Collect(ctx context.Context, c *storefront.Controller, slugs []string, p *Pipeline) (int, error) {
	submitted := 0
	for _, slug := range slugs {
		if err := ctx.Err(); err != nil {
			return submitted, err
		}
		c.SelectCategory(ctx, slug)
		v := c.View()
		if v.Unavailable {
			slog.Warn("catalog unavailable, snapshot incomplete", slog.String("category", slug))
		}

		products := make([]*models.Product, 0, len(v.Featured)+len(v.Other))
		for i := range v.Featured {
			products = append(products, &v.Featured[i])
		}
		for i := range v.Other {
			products = append(products, &v.Other[i])
		}
		if err := p.Process(products...); err != nil {
			return submitted, err
		}
		submitted += len(products)
		slog.Debug("collected category", slog.String("category", slug), slog.Int("products", len(products)))
	}
	return submitted, nil
}

// CollectSearch submits the results of one search.
func CollectSearch(ctx context.Context, c *storefront.Controller, query string, p *Pipeline) (int, error) {
	c.Search(ctx, query)
	v := c.View()
	products := make([]*models.Product, 0, len(v.SearchResults))
	for i := range v.SearchResults {
		products = append(products, &v.SearchResults[i])
	}
	if err := p.Process(products...); err != nil {
		return 0, err
	}
	return len(products), nil
}
