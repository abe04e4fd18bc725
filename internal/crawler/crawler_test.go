package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLinkSource struct {
	mu    sync.Mutex
	links map[string][]string
	errs  map[string]error
	calls []string
}

func (f *fakeLinkSource) ExtractLinks(_ context.Context, pageURL string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pageURL)
	if err := f.errs[pageURL]; err != nil {
		return nil, err
	}
	return f.links[pageURL], nil
}

func (f *fakeLinkSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestDiscover_BudgetOneSkipsNavigation(t *testing.T) {
	t.Parallel()

	src := &fakeLinkSource{}
	c := New(src, zap.NewNop())

	urls, err := c.Discover(context.Background(), "https://example.com", 1)
	require.NoError(t, err)
	require.Equal(t, []string{"https://example.com"}, urls)
	require.Zero(t, src.callCount())
}

func TestDiscover_RespectsBudget(t *testing.T) {
	t.Parallel()

	// A site with far more reachable pages than the budget.
	links := make(map[string][]string)
	var all []string
	for i := 1; i <= 12; i++ {
		all = append(all, fmt.Sprintf("https://example.com/p%d", i))
	}
	links["https://example.com"] = all

	c := New(&fakeLinkSource{links: links}, zap.NewNop())
	urls, err := c.Discover(context.Background(), "https://example.com", 5)
	require.NoError(t, err)
	require.Len(t, urls, 5)
	require.Equal(t, "https://example.com", urls[0])
}

func TestDiscover_BFSOrderAndSameOriginOnly(t *testing.T) {
	t.Parallel()

	links := map[string][]string{
		"https://example.com": {
			"https://example.com/a",
			"https://other.com/elsewhere",
			"https://example.com/b",
		},
		"https://example.com/a": {"https://example.com/c"},
		"https://example.com/b": {},
	}
	c := New(&fakeLinkSource{links: links}, zap.NewNop())

	urls, err := c.Discover(context.Background(), "https://example.com", 10)
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://example.com",
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/c",
	}, urls)
}

func TestDiscover_NormalizationDedup(t *testing.T) {
	t.Parallel()

	links := map[string][]string{
		"https://x.com": {
			"https://x.com/a?ref=1",
			"https://x.com/a#frag",
			"https://x.com/a",
		},
		"https://x.com/a?ref=1": {},
	}
	c := New(&fakeLinkSource{links: links}, zap.NewNop())

	urls, err := c.Discover(context.Background(), "https://x.com", 10)
	require.NoError(t, err)
	// The three variants collapse to one visited node.
	require.Equal(t, []string{"https://x.com", "https://x.com/a?ref=1"}, urls)
}

func TestDiscover_SeedUnreachableIsFatal(t *testing.T) {
	t.Parallel()

	src := &fakeLinkSource{errs: map[string]error{
		"https://example.com": errors.New("dns failure"),
	}}
	c := New(src, zap.NewNop())

	_, err := c.Discover(context.Background(), "https://example.com", 3)
	require.ErrorContains(t, err, "seed unreachable")
}

func TestDiscover_SecondaryExtractionFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	links := map[string][]string{
		"https://example.com": {
			"https://example.com/broken",
			"https://example.com/ok",
		},
		"https://example.com/ok": {},
	}
	src := &fakeLinkSource{
		links: links,
		errs:  map[string]error{"https://example.com/broken": errors.New("nav timeout")},
	}
	c := New(src, zap.NewNop())

	urls, err := c.Discover(context.Background(), "https://example.com", 10)
	require.NoError(t, err)
	// The broken page is still counted; crawl continues past it.
	require.Equal(t, []string{
		"https://example.com",
		"https://example.com/broken",
		"https://example.com/ok",
	}, urls)
}

func TestDiscover_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(&fakeLinkSource{}, zap.NewNop())
	_, err := c.Discover(ctx, "https://example.com", 5)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDiscover_InvalidBudget(t *testing.T) {
	t.Parallel()

	c := New(&fakeLinkSource{}, zap.NewNop())
	_, err := c.Discover(context.Background(), "https://example.com", 0)
	require.Error(t, err)
}
