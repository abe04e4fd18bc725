package renderer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pagesnap/pagesnap/internal/capture"
)

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	require.Equal(t, 60*time.Second, cfg.navigationTimeout())
	require.Equal(t, 1500*time.Millisecond, cfg.settleDelay())

	cfg.NavigationTimeout = 5 * time.Second
	cfg.SettleDelay = 100 * time.Millisecond
	require.Equal(t, 5*time.Second, cfg.navigationTimeout())
	require.Equal(t, 100*time.Millisecond, cfg.settleDelay())
}

func TestPopupSuppressionJS_CoversHeuristics(t *testing.T) {
	t.Parallel()

	// The script is evaluated verbatim in the page; guard against edits
	// dropping either the curated list or the stacking-order pass.
	require.Contains(t, popupSuppressionJS, "#onetrust-consent-sdk")
	require.Contains(t, popupSuppressionJS, "backdrop")
	require.Contains(t, popupSuppressionJS, "overlay")
	require.Contains(t, popupSuppressionJS, "Z_THRESHOLD")
	require.Contains(t, popupSuppressionJS, "'fixed'")
	require.Contains(t, popupSuppressionJS, "'absolute'")
}

func TestSessionClose_NilSafe(t *testing.T) {
	t.Parallel()

	var s *Session
	require.NoError(t, s.Close(context.Background()))
}

func TestSession_RenderAndExtractLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<!doctype html><html><body>
			<a href="/a">a</a><a href="/b">b</a>
			<script>document.body.insertAdjacentHTML('beforeend', '<div id="late">late</div>');</script>
		</body></html>`)
	}))
	defer srv.Close()

	session, err := NewSession(Config{
		NavigationTimeout: 10 * time.Second,
		SettleDelay:       200 * time.Millisecond,
	}, zap.NewNop())
	if err != nil {
		t.Skipf("chromedp unavailable: %v", err)
	}
	defer session.Close(context.Background())

	shot, err := session.Render(context.Background(), srv.URL, capture.DeviceMobile, true)
	if err != nil {
		t.Skipf("render failed: %v", err)
	}
	require.NotEmpty(t, shot)

	links, err := session.ExtractLinks(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, links, 2)
	require.True(t, strings.HasSuffix(links[0], "/a"))
}
