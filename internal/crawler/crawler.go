// Package crawler discovers same-origin page URLs breadth-first from a seed.
package crawler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pagesnap/pagesnap/internal/capture"
)

// Crawler performs bounded same-origin BFS discovery. Link extraction is
// delegated to a LinkSource, typically the renderer's navigation capability.
type Crawler struct {
	links  capture.LinkSource
	logger *zap.Logger
}

// New constructs a Crawler.
func New(links capture.LinkSource, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{links: links, logger: logger}
}

// Discover returns up to budget same-origin page URLs in BFS order, seed
// first. A budget of 1 short-circuits to the seed without any navigation.
// Failing to extract links from the seed itself is fatal; extraction
// failures on later pages are logged and skipped, with the page still
// counted since it was appended before extraction.
func (c *Crawler) Discover(ctx context.Context, seedURL string, budget int) ([]string, error) {
	if budget < 1 {
		return nil, fmt.Errorf("page budget must be >= 1, got %d", budget)
	}
	if budget == 1 {
		return []string{seedURL}, nil
	}

	seedKey, err := capture.NormalizeURL(seedURL)
	if err != nil {
		return nil, fmt.Errorf("normalize seed: %w", err)
	}

	visited := map[string]bool{seedKey: true}
	queue := []string{seedURL}
	result := make([]string, 0, budget)

	for len(queue) > 0 && len(result) < budget {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("discover interrupted: %w", err)
		}

		pageURL := queue[0]
		queue = queue[1:]
		result = append(result, pageURL)
		if len(result) >= budget {
			break
		}

		hrefs, err := c.links.ExtractLinks(ctx, pageURL)
		if err != nil {
			if len(result) == 1 {
				return nil, fmt.Errorf("seed unreachable: %w", err)
			}
			c.logger.Warn("link extraction failed, continuing crawl",
				zap.String("url", pageURL),
				zap.Error(err),
			)
			continue
		}

		for _, href := range hrefs {
			if !capture.SameOrigin(seedURL, href) {
				continue
			}
			key, err := capture.NormalizeURL(href)
			if err != nil {
				continue
			}
			if visited[key] {
				continue
			}
			visited[key] = true
			queue = append(queue, href)
		}
	}

	return result, nil
}
