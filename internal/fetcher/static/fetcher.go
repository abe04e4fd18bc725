// Package static implements link extraction over plain HTTP using gocolly,
// for crawl discovery on sites that do not need client-side rendering.
package static

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements capture.LinkSource with a non-JS HTTP fetch. It is the
// cheaper alternative to renderer-based extraction; pages that build their
// navigation client-side will yield fewer links here.
type Fetcher struct {
	cfg Config
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Fetcher{cfg: cfg}
}

// ExtractLinks fetches pageURL once and returns every anchor href resolved
// to an absolute URL.
func (f *Fetcher) ExtractLinks(ctx context.Context, pageURL string) ([]string, error) {
	collector := colly.NewCollector(colly.Async(false))
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(f.cfg.Timeout)
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.Context = ctx

	var (
		hrefs    []string
		fetchErr error
	)
	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		if abs := e.Request.AbsoluteURL(e.Attr("href")); abs != "" {
			hrefs = append(hrefs, abs)
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := collector.Visit(pageURL); err != nil {
		return nil, fmt.Errorf("visit %s: %w", pageURL, err)
	}
	collector.Wait()
	if fetchErr != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, fetchErr)
	}
	return hrefs, nil
}
