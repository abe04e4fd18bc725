package capture

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ArtifactFilename builds the stored object name for one rendered unit:
// device plus a uniqueness token of UTC milliseconds and the unit sequence.
func ArtifactFilename(device Device, capturedAt time.Time, seq int) string {
	return fmt.Sprintf("%s_%d_%03d.%s", device, capturedAt.UTC().UnixMilli(), seq, ImageExt)
}

// ArtifactPath joins the job namespace and filename into the full object key.
func ArtifactPath(job Job, filename string) string {
	return fmt.Sprintf("%s/%s", job.StoragePrefix(), filename)
}

// ArchiveFilename derives the download filename from the seed URL's host and
// a short job identifier.
func ArchiveFilename(job Job) string {
	host := "site"
	if u, err := url.Parse(job.SeedURL); err == nil && u.Hostname() != "" {
		host = strings.ReplaceAll(u.Hostname(), ".", "_")
	}
	short := job.ID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("screenshots_%s_%s.zip", host, short)
}
