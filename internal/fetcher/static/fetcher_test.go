package static

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExtractLinks_ResolvesRelativeHrefs(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<a href="/about">about</a>
			<a href="contact">contact</a>
			<a href="https://external.example/x">ext</a>
		</body></html>`)
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "pagesnap-test", Timeout: 5 * time.Second})
	links, err := f.ExtractLinks(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, links, 3)
	require.Equal(t, srv.URL+"/about", links[0])
	require.Equal(t, srv.URL+"/contact", links[1])
	require.Equal(t, "https://external.example/x", links[2])
}

func TestExtractLinks_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New(Config{})
	_, err := f.ExtractLinks(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestNew_DefaultTimeout(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	require.Equal(t, 15*time.Second, f.cfg.Timeout)
}
