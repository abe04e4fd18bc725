package capture

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL_StripsQueryAndFragment(t *testing.T) {
	t.Parallel()

	a, err := NormalizeURL("https://x.com/a?ref=1")
	require.NoError(t, err)
	b, err := NormalizeURL("https://x.com/a#frag")
	require.NoError(t, err)

	require.Equal(t, "https://x.com/a", a)
	require.Equal(t, a, b)
}

func TestNormalizeURL_LowercasesAndDropsDefaultPorts(t *testing.T) {
	t.Parallel()

	got, err := NormalizeURL("HTTPS://Example.COM:443/Path")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/Path", got)

	got, err = NormalizeURL("http://example.com:80")
	require.NoError(t, err)
	require.Equal(t, "http://example.com/", got)
}

func TestNormalizeURL_RejectsNonHTTP(t *testing.T) {
	t.Parallel()

	_, err := NormalizeURL("ftp://example.com/file")
	require.Error(t, err)

	_, err = NormalizeURL("mailto:a@example.com")
	require.Error(t, err)
}

func TestSameOrigin(t *testing.T) {
	t.Parallel()

	require.True(t, SameOrigin("https://x.com/a", "https://X.com/b?q=1"))
	require.False(t, SameOrigin("https://x.com/a", "https://y.com/a"))
	require.False(t, SameOrigin("https://x.com/a", "http://x.com/a"))
}

func TestValidateSeedURL(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateSeedURL("https://example.com"))
	require.Error(t, ValidateSeedURL("example.com"))
	require.Error(t, ValidateSeedURL("file:///etc/passwd"))
	require.Error(t, ValidateSeedURL("https://"))
}
